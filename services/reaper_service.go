package services

import (
	"context"
	"time"

	"popchat-backend/metrics"
	"popchat-backend/repository"

	"github.com/rs/zerolog/log"
)

// Reaper periodically evicts idle rooms from the store and deletes their
// upload directories. No failure in a single room's cleanup stops the loop.
type Reaper struct {
	store    *repository.RoomStore
	uploads  *UploadService
	interval time.Duration
}

// NewReaper builds a reaper sweeping at the given interval; pass zero for
// the default of a tenth of the room TTL.
func NewReaper(store *repository.RoomStore, uploads *UploadService, interval time.Duration) *Reaper {
	if interval <= 0 {
		// A degenerate TTL must not produce a zero interval; the ticker
		// would panic.
		interval = store.TTL() / 10
		if interval < time.Second {
			interval = time.Second
		}
	}
	return &Reaper{store: store, uploads: uploads, interval: interval}
}

// Run blocks until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	log.Info().Dur("interval", r.interval).Msg("reaper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reaper stopped")
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Reaper) sweep() {
	for _, roomID := range r.store.Sweep() {
		if err := r.uploads.RemoveRoomFiles(roomID); err != nil {
			// A leaked directory beats a stuck reaper.
			log.Warn().Err(err).Str("room", roomID).Msg("reap cleanup failed")
		}
		metrics.RoomsReaped.Inc()
		log.Info().Str("room", roomID).Msg("room reaped")
	}
}
