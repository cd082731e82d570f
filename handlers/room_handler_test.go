package handlers

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHomeRedirectsToFreshRoom(t *testing.T) {
	h := NewRoomHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	h.Home(rec, req)

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	loc := rec.Header().Get("Location")
	assert.Regexp(t, regexp.MustCompile(`^/r/[1-9a-z]{6}$`), loc)
}

func TestHomeIgnoresOtherPaths(t *testing.T) {
	h := NewRoomHandler()

	req := httptest.NewRequest(http.MethodGet, "/favicon.ico", nil)
	rec := httptest.NewRecorder()

	h.Home(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
