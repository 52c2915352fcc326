package annotation

import (
	"encoding/base64"
	"mime"
	"net/http"
	"path/filepath"
)

const defaultContentType = "application/octet-stream"

// Upload is a freshly chosen image file
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// EncodeDataURL turns an upload into a self contained data url.
// Any file is accepted as is, no format validation is applied.
func EncodeDataURL(u *Upload) string {
	return "data:" + contentType(u) + ";base64," + base64.StdEncoding.EncodeToString(u.Data)
}

// contentType prefers the declared type, then the file extension, then sniffing
func contentType(u *Upload) string {
	for _, candidate := range []string{u.ContentType, mime.TypeByExtension(filepath.Ext(u.Name))} {
		if candidate == "" {
			continue
		}
		// generic declarations carry no information
		if mediaType, _, err := mime.ParseMediaType(candidate); err == nil && mediaType != defaultContentType {
			return mediaType
		}
	}
	if len(u.Data) == 0 {
		return defaultContentType
	}
	if mediaType, _, err := mime.ParseMediaType(http.DetectContentType(u.Data)); err == nil {
		return mediaType
	}
	return defaultContentType
}
