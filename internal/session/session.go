// Package session owns the user-visible state of one upload-through-reset
// interaction cycle and the legal transitions between states.
//
// A session moves through five states derived from its fields: idle (no
// image), ready (image loaded), requesting (generation outstanding),
// succeeded (filter present), failed (error present). Ready, succeeded, and
// failed permit the same actions (a new request or a reset) and differ only
// in what gets rendered.
package session

import (
	"sync"
	"time"

	"github.com/fpang/filter-studio/internal/ingest"
	"github.com/rs/zerolog/log"
)

// State names as rendered to the presentation layer.
const (
	StateIdle       = "idle"
	StateReady      = "ready"
	StateRequesting = "requesting"
	StateSucceeded  = "succeeded"
	StateFailed     = "failed"
)

// Session is the single mutable unit of state for one interaction cycle.
// All mutation goes through the event methods below; the mutex makes the
// transitions atomic with respect to the concurrent completion goroutine.
type Session struct {
	mu sync.Mutex

	id         string
	createdAt  time.Time
	lastActive time.Time

	image   *ingest.Image
	filter  string
	errMsg  string
	pending bool

	// seq is the token of the most recent generation request. A completion
	// carrying any other token is stale (its request was superseded or the
	// session was reset) and is discarded.
	seq uint64
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Image returns the currently loaded image handle, or nil in idle state.
func (s *Session) Image() *ingest.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image
}

// ImageLoaded installs a freshly ingested image, clearing any previous
// filter and error. The pending flag is untouched: an in-flight request for
// the previous image keeps its token and will be discarded on completion
// only if a reset or a new request intervenes first.
func (s *Session) ImageLoaded(img *ingest.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.image = img
	s.filter = ""
	s.errMsg = ""
	s.touch()

	log.Debug().
		Str("session", s.id).
		Str("file", img.Name).
		Msg("Image loaded into session")
}

// RequestFilter begins a generation request. It returns the token the
// eventual completion must present, and ok=false when the event is a no-op:
// from idle (no image to filter) or while a request is already outstanding.
func (s *Session) RequestFilter() (token uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.image == nil || s.pending {
		return 0, false
	}

	s.seq++
	s.pending = true
	s.filter = ""
	s.errMsg = ""
	s.touch()

	log.Debug().
		Str("session", s.id).
		Uint64("token", s.seq).
		Msg("Filter request started")

	return s.seq, true
}

// RequestSucceeded completes a generation request with a filter descriptor.
// Returns false when the completion is stale and was discarded.
func (s *Session) RequestSucceeded(token uint64, descriptor string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending || token != s.seq {
		log.Debug().
			Str("session", s.id).
			Uint64("token", token).
			Uint64("current", s.seq).
			Msg("Discarding stale generation result")
		return false
	}

	s.filter = descriptor
	s.errMsg = ""
	s.pending = false
	s.touch()

	log.Info().
		Str("session", s.id).
		Str("filter", descriptor).
		Msg("Filter generation succeeded")
	return true
}

// RequestFailed completes a generation request with an error message.
// Returns false when the completion is stale and was discarded.
func (s *Session) RequestFailed(token uint64, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending || token != s.seq {
		log.Debug().
			Str("session", s.id).
			Uint64("token", token).
			Uint64("current", s.seq).
			Msg("Discarding stale generation failure")
		return false
	}

	s.errMsg = message
	s.filter = ""
	s.pending = false
	s.touch()

	log.Warn().
		Str("session", s.id).
		Str("error", message).
		Msg("Filter generation failed")
	return true
}

// Reset returns the session to the empty idle state, discarding the image,
// filter, and error together. The token bump orphans any in-flight request:
// its completion will not match and is ignored.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.image = nil
	s.filter = ""
	s.errMsg = ""
	s.pending = false
	s.seq++
	s.touch()

	log.Debug().Str("session", s.id).Msg("Session reset")
}

// touch records activity for idle sweeping. Callers hold s.mu.
func (s *Session) touch() {
	s.lastActive = time.Now()
}

// Snapshot is a value copy of the renderable session state, safe to use
// after the session has moved on.
type Snapshot struct {
	ID       string
	State    string
	HasImage bool
	Filter   string
	Pending  bool
	Error    string

	ImageName string
	ImageMIME string
	Meta      *ingest.Meta
}

// Snapshot returns the current renderable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:       s.id,
		State:    s.stateLocked(),
		HasImage: s.image != nil,
		Filter:   s.filter,
		Pending:  s.pending,
		Error:    s.errMsg,
	}
	if s.image != nil {
		snap.ImageName = s.image.Name
		snap.ImageMIME = s.image.MIMEType
		if s.image.Meta != nil {
			metaCopy := *s.image.Meta
			snap.Meta = &metaCopy
		}
	}
	return snap
}

// stateLocked derives the state name from the fields. Callers hold s.mu.
func (s *Session) stateLocked() string {
	switch {
	case s.image == nil:
		return StateIdle
	case s.pending:
		return StateRequesting
	case s.filter != "":
		return StateSucceeded
	case s.errMsg != "":
		return StateFailed
	default:
		return StateReady
	}
}
