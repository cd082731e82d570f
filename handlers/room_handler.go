package handlers

import (
	"net/http"

	"popchat-backend/utils"

	"github.com/rs/zerolog/log"
)

type RoomHandler struct{}

func NewRoomHandler() *RoomHandler {
	return &RoomHandler{}
}

// Home redirects visitors to a freshly generated room. Rooms only come into
// existence when the first member enters over the socket, so handing out a
// token costs nothing.
func (h *RoomHandler) Home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	token, err := utils.NewRoomToken()
	if err != nil {
		log.Error().Err(err).Msg("room token generation failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/r/"+token, http.StatusTemporaryRedirect)
}
