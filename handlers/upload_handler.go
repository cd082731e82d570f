package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"popchat-backend/repository"
	"popchat-backend/services"

	"github.com/rs/zerolog/log"
)

type UploadHandler struct {
	svc      *services.UploadService
	maxBytes int64
}

func NewUploadHandler(svc *services.UploadService, maxBytes int64) *UploadHandler {
	return &UploadHandler{svc: svc, maxBytes: maxBytes}
}

// Upload handles POST /uploads with multipart fields "room" and "file".
// Success answers {filePath, fileName}; failures are plain text so the
// client can show them as-is.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "use POST", http.StatusMethodNotAllowed)
		return
	}

	// A little slack over the file ceiling for the multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+(1<<20))

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid args", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	room := r.FormValue("room")
	ref, err := h.svc.Bind(room, header.Filename, file)
	switch {
	case errors.Is(err, repository.ErrRoomNotFound):
		http.Error(w, "invalid args", http.StatusBadRequest)
	case errors.Is(err, services.ErrFileTooLarge):
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
	case err != nil:
		log.Error().Err(err).Str("room", room).Msg("upload failed")
		http.Error(w, "upload failed", http.StatusInternalServerError)
	default:
		log.Info().Str("room", room).Str("file", ref.FileName).Int64("size", header.Size).Msg("file uploaded")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ref)
	}
}
