package annotation

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// KeyPrefix namespaces record keys in the shared storage
const KeyPrefix = "explanation_"

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary

	ErrInvalidKey    = errors.New("invalid item key")
	ErrImageTooLarge = errors.New("image exceeds size limit")
)

// Record is the note and optional image stored for one item.
// Image holds a data url and is empty when no image is attached.
type Record struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// HasImage reports whether an image is attached
func (r Record) HasImage() bool {
	return r.Image != ""
}

// Status describes where a loaded record came from
type Status string

const (
	// StatusMissing nothing was ever saved for the key
	StatusMissing Status = "missing"
	// StatusFound a stored record was read
	StatusFound Status = "found"
	// StatusCorrupt a stored payload exists but could not be parsed
	StatusCorrupt Status = "corrupt"
	// StatusFailed the key was invalid or the storage could not be read
	StatusFailed Status = "failed"
)

// Result of a load. Record is always usable, for every status other than
// StatusFound it is the empty default.
type Result struct {
	Record Record
	Status Status
	// Raw contains the unparseable payload for StatusCorrupt
	Raw []byte
	Err error
}

// StorageKey returns the namespaced storage key for an item key
func StorageKey(key string) string {
	return KeyPrefix + key
}

// ValidateKey rejects keys that can not be stored safely in every backend
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return errors.Wrap(ErrInvalidKey, "empty key")
	case strings.ContainsAny(key, `/\`), strings.Contains(key, ".."):
		return errors.Wrapf(ErrInvalidKey, "key %q contains a path element", key)
	}
	return nil
}

func encodeRecord(r Record) ([]byte, error) {
	return json.Marshal(r)
}

func decodeRecord(data []byte) (Record, error) {
	var r *Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, err
	} else if r == nil {
		return Record{}, errors.New("record is null")
	}
	return *r, nil
}
