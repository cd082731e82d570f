package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"popchat-backend/metrics"
	"popchat-backend/models"
	"popchat-backend/repository"
)

var (
	ErrFileTooLarge = errors.New("file too large")
	ErrMissingFile  = errors.New("missing file")
)

// UploadService binds uploaded files to a room's lifetime. Files live under
// <dir>/<roomID>/<contentHash><ext> and are deleted when the room is reaped;
// no per-file expiry bookkeeping exists.
type UploadService struct {
	store    *repository.RoomStore
	dir      string
	maxBytes int64
}

func NewUploadService(store *repository.RoomStore, dir string, maxBytes int64) *UploadService {
	return &UploadService{store: store, dir: dir, maxBytes: maxBytes}
}

// Reset wipes the upload tree. The tree is reconstructable garbage relative
// to in-memory room state, so this is safe at process start.
func (s *UploadService) Reset() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("reset uploads: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("reset uploads: %w", err)
	}
	return nil
}

// Bind validates the room, stores the bytes under a content-hash name and
// returns the path reference to embed in a message body. Identical uploads
// resolve to the same path, so concurrent or repeated uploads never collide
// or duplicate storage. Bind never touches room locks and never publishes.
func (s *UploadService) Bind(roomID, originalName string, src io.Reader) (*models.UploadedFile, error) {
	roomDir, err := s.roomDir(roomID)
	if err != nil || !s.store.Exists(roomID) {
		return nil, repository.ErrRoomNotFound
	}

	data, err := io.ReadAll(io.LimitReader(src, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrFileTooLarge
	}

	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:]) + safeExt(originalName)

	if err := os.MkdirAll(roomDir, 0o755); err != nil {
		return nil, fmt.Errorf("create room dir: %w", err)
	}
	path := filepath.Join(roomDir, name)
	if _, err := os.Stat(path); err != nil {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write upload: %w", err)
		}
	}

	metrics.UploadsTotal.Inc()
	return &models.UploadedFile{
		FilePath: "/uploads/" + roomID + "/" + name,
		FileName: name,
	}, nil
}

// RemoveRoomFiles deletes everything uploaded to a room. Missing directories
// are not an error.
func (s *UploadService) RemoveRoomFiles(roomID string) error {
	roomDir, err := s.roomDir(roomID)
	if err != nil {
		// Nothing can have been stored under an unsafe id.
		return nil
	}
	if err := os.RemoveAll(roomDir); err != nil {
		return fmt.Errorf("remove room files: %w", err)
	}
	return nil
}

// roomDir rejects ids that would escape the upload tree. Room ids are
// opaque client-supplied strings and must never become path traversal.
func (s *UploadService) roomDir(roomID string) (string, error) {
	if roomID == "" || roomID != filepath.Base(roomID) || strings.Contains(roomID, "..") {
		return "", repository.ErrRoomNotFound
	}
	return filepath.Join(s.dir, roomID), nil
}

// safeExt keeps the original extension when it is short and alphanumeric,
// so repeated identical uploads keep a stable, harmless name.
func safeExt(name string) string {
	ext := filepath.Ext(filepath.Base(name))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return ""
		}
	}
	return strings.ToLower(ext)
}
