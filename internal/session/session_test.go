package session

import (
	"testing"
	"time"

	"github.com/fpang/filter-studio/internal/ingest"
)

func testImage() *ingest.Image {
	return &ingest.Image{
		Name:            "photo.jpg",
		MIMEType:        "image/jpeg",
		Data:            []byte{0xff, 0xd8},
		Preview:         []byte{0xff, 0xd8},
		PreviewMIMEType: "image/jpeg",
	}
}

// checkInvariant verifies the field invariant that must hold after every
// event: pending and filter never both set, filter and error never both set.
func checkInvariant(t *testing.T, s *Session) {
	t.Helper()
	snap := s.Snapshot()
	if snap.Pending && snap.Filter != "" {
		t.Errorf("invariant violated: pending with filter set (%+v)", snap)
	}
	if snap.Filter != "" && snap.Error != "" {
		t.Errorf("invariant violated: filter and error both set (%+v)", snap)
	}
	if !snap.HasImage && snap.State != StateIdle {
		t.Errorf("invariant violated: no image but state %s", snap.State)
	}
}

func TestNewSessionIsIdle(t *testing.T) {
	s := NewManager().Create()

	snap := s.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("expected idle, got %s", snap.State)
	}
	if snap.HasImage || snap.Filter != "" || snap.Error != "" || snap.Pending {
		t.Errorf("new session should be empty: %+v", snap)
	}
}

func TestImageLoadedMovesToReady(t *testing.T) {
	s := NewManager().Create()
	s.ImageLoaded(testImage())
	checkInvariant(t, s)

	snap := s.Snapshot()
	if snap.State != StateReady {
		t.Errorf("expected ready, got %s", snap.State)
	}
	if !snap.HasImage {
		t.Error("image should be set")
	}
	if snap.Filter != "" || snap.Error != "" {
		t.Error("filter and error should be unset after load")
	}
}

func TestRequestFilterFromIdleIsNoOp(t *testing.T) {
	s := NewManager().Create()

	before := s.Snapshot()
	if _, ok := s.RequestFilter(); ok {
		t.Fatal("request from idle should be refused")
	}
	checkInvariant(t, s)
	if after := s.Snapshot(); after != before {
		t.Errorf("idle session changed: before=%+v after=%+v", before, after)
	}
}

func TestRequestFilterWhilePendingIsNoOp(t *testing.T) {
	s := NewManager().Create()
	s.ImageLoaded(testImage())

	token, ok := s.RequestFilter()
	if !ok {
		t.Fatal("first request should start")
	}

	if _, ok := s.RequestFilter(); ok {
		t.Fatal("second request while pending should be refused")
	}
	checkInvariant(t, s)

	snap := s.Snapshot()
	if snap.State != StateRequesting || !snap.Pending {
		t.Errorf("session should still be requesting: %+v", snap)
	}

	// The original request still completes normally.
	if !s.RequestSucceeded(token, "sepia(0.3)") {
		t.Error("original completion should be accepted")
	}
}

func TestRequestLifecycleSuccess(t *testing.T) {
	s := NewManager().Create()
	s.ImageLoaded(testImage())

	token, ok := s.RequestFilter()
	if !ok {
		t.Fatal("request should start from ready")
	}
	checkInvariant(t, s)

	if snap := s.Snapshot(); snap.State != StateRequesting {
		t.Errorf("expected requesting, got %s", snap.State)
	}

	if !s.RequestSucceeded(token, "saturate(1.2) contrast(1.1)") {
		t.Fatal("completion should be accepted")
	}
	checkInvariant(t, s)

	snap := s.Snapshot()
	if snap.State != StateSucceeded {
		t.Errorf("expected succeeded, got %s", snap.State)
	}
	if snap.Filter != "saturate(1.2) contrast(1.1)" {
		t.Errorf("unexpected filter: %q", snap.Filter)
	}
	if snap.Pending || snap.Error != "" {
		t.Errorf("pending/error should be clear: %+v", snap)
	}
}

func TestRequestLifecycleFailure(t *testing.T) {
	s := NewManager().Create()
	s.ImageLoaded(testImage())

	token, _ := s.RequestFilter()
	if !s.RequestFailed(token, "service timeout") {
		t.Fatal("failure should be accepted")
	}
	checkInvariant(t, s)

	snap := s.Snapshot()
	if snap.State != StateFailed {
		t.Errorf("expected failed, got %s", snap.State)
	}
	if snap.Error != "service timeout" {
		t.Errorf("unexpected error: %q", snap.Error)
	}
	if snap.Filter != "" {
		t.Error("filter must stay unset on failure")
	}
}

func TestNewRequestClearsPreviousOutcome(t *testing.T) {
	s := NewManager().Create()
	s.ImageLoaded(testImage())

	token, _ := s.RequestFilter()
	s.RequestFailed(token, "boom")

	token2, ok := s.RequestFilter()
	if !ok {
		t.Fatal("retry from failed should start")
	}
	checkInvariant(t, s)

	snap := s.Snapshot()
	if snap.Error != "" {
		t.Error("error should be cleared at request start")
	}

	s.RequestSucceeded(token2, "contrast(1.1)")
	token3, _ := s.RequestFilter()
	if snap := s.Snapshot(); snap.Filter != "" {
		t.Error("filter should be cleared at request start")
	}
	s.RequestSucceeded(token3, "sepia(0.2)")
}

func TestResetFromEveryState(t *testing.T) {
	m := NewManager()

	prepare := map[string]func(*Session){
		"idle":  func(s *Session) {},
		"ready": func(s *Session) { s.ImageLoaded(testImage()) },
		"requesting": func(s *Session) {
			s.ImageLoaded(testImage())
			s.RequestFilter()
		},
		"succeeded": func(s *Session) {
			s.ImageLoaded(testImage())
			tok, _ := s.RequestFilter()
			s.RequestSucceeded(tok, "sepia(0.4)")
		},
		"failed": func(s *Session) {
			s.ImageLoaded(testImage())
			tok, _ := s.RequestFilter()
			s.RequestFailed(tok, "nope")
		},
	}

	for name, setup := range prepare {
		s := m.Create()
		setup(s)
		s.Reset()
		checkInvariant(t, s)

		snap := s.Snapshot()
		if snap.State != StateIdle {
			t.Errorf("%s: expected idle after reset, got %s", name, snap.State)
		}
		if snap.HasImage || snap.Filter != "" || snap.Error != "" || snap.Pending {
			t.Errorf("%s: reset left residue: %+v", name, snap)
		}
	}
}

func TestStaleCompletionAfterResetIsDiscarded(t *testing.T) {
	s := NewManager().Create()
	s.ImageLoaded(testImage())

	token, _ := s.RequestFilter()
	s.Reset()

	if s.RequestSucceeded(token, "sepia(1)") {
		t.Error("completion after reset must be discarded")
	}
	if s.RequestFailed(token, "late failure") {
		t.Error("failure after reset must be discarded")
	}

	snap := s.Snapshot()
	if snap.State != StateIdle || snap.Filter != "" || snap.Error != "" {
		t.Errorf("reset session mutated by stale completion: %+v", snap)
	}
}

func TestStaleCompletionAfterSupersedingRequestIsDiscarded(t *testing.T) {
	s := NewManager().Create()
	s.ImageLoaded(testImage())

	first, _ := s.RequestFilter()

	// The first request fails at the transport level, freeing the session,
	// then the user retries before the late duplicate completion arrives.
	s.RequestFailed(first, "timeout")
	second, _ := s.RequestFilter()

	if s.RequestSucceeded(first, "grayscale(1)") {
		t.Error("superseded completion must be discarded")
	}

	if !s.RequestSucceeded(second, "contrast(1.2)") {
		t.Error("current completion should be accepted")
	}
	if snap := s.Snapshot(); snap.Filter != "contrast(1.2)" {
		t.Errorf("unexpected filter: %q", snap.Filter)
	}
}

func TestEventSequenceInvariant(t *testing.T) {
	s := NewManager().Create()

	// An arbitrary event soup; the invariant must hold after every event.
	steps := []func(){
		func() { s.RequestFilter() },
		func() { s.ImageLoaded(testImage()) },
		func() {
			if tok, ok := s.RequestFilter(); ok {
				s.RequestSucceeded(tok, "sepia(0.1)")
			}
		},
		func() { s.RequestFilter() },
		func() { s.Reset() },
		func() { s.ImageLoaded(testImage()) },
		func() {
			if tok, ok := s.RequestFilter(); ok {
				s.RequestFailed(tok, "oops")
			}
		},
		func() { s.Reset() },
	}

	for i, step := range steps {
		step()
		snap := s.Snapshot()
		if snap.Pending && snap.Filter != "" {
			t.Fatalf("step %d: pending with filter set", i)
		}
		if snap.Filter != "" && snap.Error != "" {
			t.Fatalf("step %d: filter and error both set", i)
		}
	}
}

func TestManagerGetAndRemove(t *testing.T) {
	m := NewManager()
	s := m.Create()

	if got := m.Get(s.ID()); got != s {
		t.Error("Get should return the created session")
	}
	if got := m.Get("missing"); got != nil {
		t.Error("Get of unknown ID should return nil")
	}

	m.Remove(s.ID())
	if got := m.Get(s.ID()); got != nil {
		t.Error("removed session should be gone")
	}
}

func TestManagerSweep(t *testing.T) {
	m := NewManager()
	stale := m.Create()
	fresh := m.Create()

	stale.mu.Lock()
	stale.lastActive = time.Now().Add(-2 * time.Hour)
	stale.mu.Unlock()

	removed := m.Sweep(time.Hour)
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if m.Get(stale.ID()) != nil {
		t.Error("stale session should be swept")
	}
	if m.Get(fresh.ID()) == nil {
		t.Error("fresh session should survive")
	}
}

func TestManagerSweepKeepsPending(t *testing.T) {
	m := NewManager()
	s := m.Create()
	s.ImageLoaded(testImage())
	s.RequestFilter()

	s.mu.Lock()
	s.lastActive = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()

	if removed := m.Sweep(time.Hour); removed != 0 {
		t.Errorf("pending session must not be swept, removed %d", removed)
	}
}
