package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/fpang/filter-studio/internal/ingest"
	"github.com/fpang/filter-studio/internal/session"
	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

// POST /api/session
func handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sess := sessions.Create()
	respondJSON(w, http.StatusCreated, snapshotResponse(sess.Snapshot()))
}

// Routes under /api/session/{id} and /api/session/{id}/{action}
func handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/session/"), "/")
	if len(parts) == 0 || parts[0] == "" || len(parts) > 2 {
		httpError(w, http.StatusNotFound, "not found")
		return
	}

	sess := sessions.Get(parts[0])
	if sess == nil {
		httpError(w, http.StatusNotFound, "session not found")
		return
	}

	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch action {
	case "":
		handleSessionState(w, r, sess)
	case "image":
		handleSessionImage(w, r, sess)
	case "pick":
		handleSessionPick(w, r, sess)
	case "filter":
		handleFilterRequest(w, r, sess)
	case "reset":
		handleSessionReset(w, r, sess)
	default:
		httpError(w, http.StatusNotFound, "not found")
	}
}

// GET /api/session/{id}
func handleSessionState(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	respondJSON(w, http.StatusOK, snapshotResponse(sess.Snapshot()))
}

// POST /api/session/{id}/image: multipart photo upload (the drop/browse path).
// GET  /api/session/{id}/image: serve the preview rendition for display.
func handleSessionImage(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	switch r.Method {
	case http.MethodPost:
		handleImageUpload(w, r, sess)
	case http.MethodGet:
		handleImageServe(w, r, sess)
	default:
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func handleImageUpload(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := r.ParseMultipartForm(ingest.MaxUploadBytes); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}

	// Only the first file of a multi-file selection is considered.
	file, header, err := r.FormFile("photo")
	if err != nil {
		httpError(w, http.StatusBadRequest, "no photo in upload")
		return
	}
	defer file.Close()

	img, err := ingest.Load(header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		// Ingestion failure never touches the session image; the message is
		// shown by the alert region and the session keeps its prior state.
		respondIngestError(w, err)
		return
	}

	sess.ImageLoaded(img)
	respondJSON(w, http.StatusOK, snapshotResponse(sess.Snapshot()))
}

func handleImageServe(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	img := sess.Image()
	if img == nil {
		httpError(w, http.StatusNotFound, "no photo loaded")
		return
	}

	w.Header().Set("Content-Type", img.PreviewMIMEType)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(img.Preview)
}

// POST /api/session/{id}/pick
// Opens a native OS file picker dialog on the host and ingests the selection.
func handleSessionPick(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	selected, err := zenity.SelectFile(
		zenity.Title("Select a photo"),
		zenity.FileFilters{
			{
				Name:     "Photos",
				Patterns: []string{"*.jpg", "*.jpeg", "*.png", "*.gif", "*.webp", "*.heic", "*.heif"},
			},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"canceled": true,
			})
			return
		}
		log.Error().Err(err).Msg("File picker failed")
		httpError(w, http.StatusInternalServerError, "file picker failed")
		return
	}

	img, err := ingest.LoadFile(selected)
	if err != nil {
		respondIngestError(w, err)
		return
	}

	sess.ImageLoaded(img)
	log.Info().Str("file", img.Name).Msg("Photo picked via native dialog")
	respondJSON(w, http.StatusOK, snapshotResponse(sess.Snapshot()))
}

// POST /api/session/{id}/reset
func handleSessionReset(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sess.Reset()
	respondJSON(w, http.StatusOK, snapshotResponse(sess.Snapshot()))
}

func respondIngestError(w http.ResponseWriter, err error) {
	var unreadable *ingest.UnreadableFileError
	if errors.As(err, &unreadable) {
		httpError(w, http.StatusBadRequest, unreadable.Error())
		return
	}
	httpError(w, http.StatusInternalServerError, err.Error())
}

// snapshotResponse shapes a session snapshot for the frontend.
func snapshotResponse(snap session.Snapshot) map[string]interface{} {
	resp := map[string]interface{}{
		"id":       snap.ID,
		"state":    snap.State,
		"hasImage": snap.HasImage,
		"filter":   snap.Filter,
		"pending":  snap.Pending,
	}
	if snap.Error != "" {
		resp["error"] = snap.Error
	}
	if snap.HasImage {
		imageInfo := map[string]interface{}{
			"name":     snap.ImageName,
			"mimeType": snap.ImageMIME,
		}
		if snap.Meta != nil {
			camera := strings.TrimSpace(snap.Meta.CameraMake + " " + snap.Meta.CameraModel)
			if camera != "" {
				imageInfo["camera"] = camera
			}
			if snap.Meta.HasDate {
				imageInfo["taken"] = snap.Meta.DateTaken.Format("January 2, 2006")
			}
		}
		resp["image"] = imageInfo
	}
	return resp
}
