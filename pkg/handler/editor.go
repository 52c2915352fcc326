package handler

import (
	"embed"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/foomo/annotationserver/pkg/annotation"
	"github.com/foomo/annotationserver/pkg/metrics"
	"github.com/foomo/annotationserver/pkg/session"
	"github.com/foomo/annotationserver/pkg/title"
	httputils "github.com/foomo/keel/utils/net/http"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	//go:embed templates/*.html
	templateFS embed.FS
	//go:embed static/popup.js
	popupJS []byte

	templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))
)

type editorData struct {
	BasePath  string
	Heading   string
	ExpandURL string
	Image     template.URL
	Session   session.Snapshot
}

// ------------------------------------------------------------------------------------------------
// ~ Popup
// ------------------------------------------------------------------------------------------------

func (h *HTTP) popup(w http.ResponseWriter, r *http.Request) {
	key, ok := h.itemParam(w, r)
	if !ok {
		return
	}
	snapshot := h.sessions.Open(r.Context(), session.ModePopup, key)
	expandURL, err := snapshot.Expand(h.pageURL())
	if err != nil {
		httputils.ServerError(h.l, w, r, http.StatusInternalServerError, err)
		return
	}
	h.render(w, r, "popup", snapshot, expandURL)
}

func (h *HTTP) popupSave(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(r); err != nil {
		httputils.BadRequestServerError(h.l, w, r, err)
		return
	}
	upload, err := readUpload(r)
	if err != nil {
		httputils.BadRequestServerError(h.l, w, r, err)
		return
	}
	id := r.PostForm.Get("session")
	_, found, err := h.sessions.Save(r.Context(), session.ModePopup, id, r.PostForm.Get("text"), upload)
	if err != nil {
		metrics.SaveCounter.WithLabelValues("popup", "error").Inc()
		httputils.ServerError(h.l, w, r, errorStatus(err), err)
		return
	}
	if found {
		metrics.SaveCounter.WithLabelValues("popup", "success").Inc()
	} else {
		h.l.Debug("save without open popup session", zap.String("session", id))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) popupClose(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(r); err != nil {
		httputils.BadRequestServerError(h.l, w, r, err)
		return
	}
	if !h.sessions.Close(session.ModePopup, r.PostForm.Get("session")) {
		h.l.Debug("close without open popup session", zap.String("session", r.PostForm.Get("session")))
	}
	w.WriteHeader(http.StatusNoContent)
}

// ------------------------------------------------------------------------------------------------
// ~ Page
// ------------------------------------------------------------------------------------------------

func (h *HTTP) page(w http.ResponseWriter, r *http.Request) {
	key, ok := h.itemParam(w, r)
	if !ok {
		return
	}
	snapshot := h.sessions.Open(r.Context(), session.ModePage, key)
	h.render(w, r, "page", snapshot, "")
}

func (h *HTTP) pageSave(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(r); err != nil {
		httputils.BadRequestServerError(h.l, w, r, err)
		return
	}
	upload, err := readUpload(r)
	if err != nil {
		httputils.BadRequestServerError(h.l, w, r, err)
		return
	}
	snapshot, found, err := h.sessions.Save(r.Context(), session.ModePage, r.PostForm.Get("session"), r.PostForm.Get("text"), upload)
	if err != nil {
		metrics.SaveCounter.WithLabelValues("page", "error").Inc()
		httputils.ServerError(h.l, w, r, errorStatus(err), err)
		return
	}
	if !found {
		// nothing is open, start over without writing
		h.restartPage(w, r)
		return
	}
	metrics.SaveCounter.WithLabelValues("page", "success").Inc()
	h.render(w, r, "page", snapshot, "")
}

// ------------------------------------------------------------------------------------------------
// ~ Static
// ------------------------------------------------------------------------------------------------

func (h *HTTP) static(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	_, _ = w.Write(popupJS)
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

// restartPage redirects to a fresh page editor for the posted item
func (h *HTTP) restartPage(w http.ResponseWriter, r *http.Request) {
	key := r.PostForm.Get("item")
	if err := annotation.ValidateKey(key); err != nil {
		httputils.BadRequestServerError(h.l, w, r, err)
		return
	}
	target, err := session.ExpandURL(h.pageURL(), key)
	if err != nil {
		httputils.ServerError(h.l, w, r, http.StatusInternalServerError, err)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *HTTP) itemParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.URL.Query().Get("item")
	if err := annotation.ValidateKey(key); err != nil {
		httputils.BadRequestServerError(h.l, w, r, err)
		return "", false
	}
	return key, true
}

func (h *HTTP) parseMultipart(r *http.Request) error {
	err := r.ParseMultipartForm(h.maxMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	return errors.Wrap(err, "failed to parse form")
}

func (h *HTTP) render(w http.ResponseWriter, r *http.Request, name string, snapshot session.Snapshot, expandURL string) {
	data := editorData{
		BasePath:  h.basePath,
		Heading:   title.Heading(snapshot.Key),
		ExpandURL: expandURL,
		Image:     imageURL(snapshot.Image),
		Session:   snapshot,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		h.l.Error("failed to render template", zap.String("template", name), zap.Error(err))
	}
}

// readUpload returns nil when no file was chosen
func readUpload(r *http.Request) (*annotation.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to read image")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read image")
	}
	if header.Filename == "" && len(data) == 0 {
		return nil, nil
	}
	return &annotation.Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// imageURL marks stored data urls as safe for src attributes
func imageURL(image string) template.URL {
	if strings.HasPrefix(image, "data:") {
		return template.URL(image) //nolint:gosec
	}
	return ""
}
