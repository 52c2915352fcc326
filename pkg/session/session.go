// Package session implements the editing lifecycle of a single item record.
//
// A Session is opened for one item key, collects local edits and writes them
// back through a Store. Sessions are independent of each other, any number of
// editors may be open at the same time. Two sessions saving the same key
// overwrite each other, the last write wins.
package session

import (
	"context"
	"net/url"

	"github.com/foomo/annotationserver/pkg/annotation"
	"github.com/google/uuid"
)

// Confirmation is shown after a successful save in the full page editor
const Confirmation = "Explanation saved!"

type (
	// Mode is the surface a session is edited in
	Mode string
	// State of an editing session
	State string
)

const (
	ModePopup Mode = "popup"
	ModePage  Mode = "page"
)

const (
	StateClosed  State = "closed"
	StateLoaded  State = "loaded"
	StateDirty   State = "dirty"
	StatePending State = "pending"
	StateSaved   State = "saved"
)

// Store is what a session needs to load and persist its record
type Store interface {
	Load(ctx context.Context, key string) annotation.Result
	Save(ctx context.Context, key, text string, upload *annotation.Upload, previousImage string) (annotation.Record, error)
}

// Session is not safe for concurrent use, see Manager.
type Session struct {
	id         string
	key        string
	mode       Mode
	state      State
	store      Store
	loadStatus annotation.Status
	text       string
	image      string
	upload     *annotation.Upload
}

// Snapshot is a read only copy of the visible session fields
type Snapshot struct {
	ID           string
	Key          string
	Mode         Mode
	State        State
	Text         string
	Image        string
	LoadStatus   annotation.Status
	Confirmation string
}

// HasImage reports whether the image preview is shown
func (s Snapshot) HasImage() bool {
	return s.Image != ""
}

// Expand returns the full page editor url for the session's key.
// The session itself is left untouched.
func (s Snapshot) Expand(pageURL string) (string, error) {
	return ExpandURL(pageURL, s.Key)
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// Open loads the record for key and populates the session fields
func Open(ctx context.Context, store Store, mode Mode, key string) *Session {
	res := store.Load(ctx, key)
	return &Session{
		id:         uuid.New().String(),
		key:        key,
		mode:       mode,
		state:      StateLoaded,
		store:      store,
		loadStatus: res.Status,
		text:       res.Record.Text,
		image:      res.Record.Image,
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Key() string {
	return s.key
}

func (s *Session) Mode() Mode {
	return s.mode
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) IsOpen() bool {
	return s.state != StateClosed
}

func (s *Session) Snapshot() Snapshot {
	snapshot := Snapshot{
		ID:         s.id,
		Key:        s.key,
		Mode:       s.mode,
		State:      s.state,
		Text:       s.text,
		Image:      s.image,
		LoadStatus: s.loadStatus,
	}
	if s.state == StateSaved {
		snapshot.Confirmation = Confirmation
	}
	return snapshot
}

// SetText replaces the edited text
func (s *Session) SetText(text string) {
	if !s.IsOpen() {
		return
	}
	s.text = text
	s.state = StateDirty
}

// ChooseFile selects a new image to be encoded on the next save.
// A nil upload means no file was chosen and leaves the session untouched.
func (s *Session) ChooseFile(upload *annotation.Upload) {
	if !s.IsOpen() || upload == nil {
		return
	}
	s.upload = upload
	s.state = StateDirty
}

// Save writes the current fields. Saving a closed session is a no-op.
// Without a newly chosen file the currently displayed image is kept.
// A popup session closes after saving, a page session stays open.
func (s *Session) Save(ctx context.Context) error {
	if !s.IsOpen() {
		return nil
	}

	previous := s.state
	s.state = StatePending
	record, err := s.store.Save(ctx, s.key, s.text, s.upload, s.image)
	if err != nil {
		s.state = previous
		return err
	}

	s.text = record.Text
	s.image = record.Image
	s.upload = nil
	s.loadStatus = annotation.StatusFound

	if s.mode == ModePopup {
		s.Close()
	} else {
		s.state = StateSaved
	}
	return nil
}

// Close discards unsaved edits. Closing a closed session is a no-op.
func (s *Session) Close() {
	if !s.IsOpen() {
		return
	}
	s.state = StateClosed
	s.text = ""
	s.image = ""
	s.upload = nil
}

// ExpandURL adds key as the item query parameter to pageURL
func ExpandURL(pageURL, key string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("item", key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
