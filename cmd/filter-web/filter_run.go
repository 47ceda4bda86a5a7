package main

import (
	"context"
	"net/http"
	"time"

	"github.com/fpang/filter-studio/internal/ingest"
	"github.com/fpang/filter-studio/internal/session"
	"github.com/rs/zerolog/log"
)

// generationTimeout bounds a single filter-generation call. There is no
// cancellation primitive at the session level; an abandoned request simply
// completes against a token nobody holds anymore.
const generationTimeout = 2 * time.Minute

// POST /api/session/{id}/filter
//
// The boundary guard: while a request is outstanding the trigger returns 409,
// and the state machine's own no-op rule catches anything that slips past.
func handleFilterRequest(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	token, ok := sess.RequestFilter()
	if !ok {
		// Refused either because no image is loaded or because a request is
		// already outstanding; consult fresh state to report the right one.
		if !sess.Snapshot().HasImage {
			httpError(w, http.StatusConflict, "no photo loaded")
		} else {
			httpError(w, http.StatusConflict, "a filter request is already in progress")
		}
		return
	}

	go runFilterGeneration(sess, token)

	respondJSON(w, http.StatusAccepted, snapshotResponse(sess.Snapshot()))
}

// runFilterGeneration performs the generation call off the request goroutine
// and feeds the outcome back into the state machine. A stale token (the
// session was reset or the request superseded) makes the completion a no-op.
func runFilterGeneration(sess *session.Session, token uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), generationTimeout)
	defer cancel()

	var photo *ingest.Image
	if withImageFlag {
		photo = sess.Image()
	}

	descriptor, err := generator.Generate(ctx, photo)
	if err != nil {
		if !sess.RequestFailed(token, err.Error()) {
			log.Debug().Str("session", sess.ID()).Msg("Generation failure arrived after session moved on")
		}
		return
	}

	if !sess.RequestSucceeded(token, descriptor) {
		log.Debug().Str("session", sess.ID()).Msg("Generation result arrived after session moved on")
	}
}
