package controller

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/groovesync/server/internal/mediaproxy"
	"github.com/groovesync/server/internal/service/room"
	"github.com/groovesync/server/pkg/rest"
)

func (c *controller) Health(w http.ResponseWriter, r *http.Request) {
	rest.WriteJSON(w, http.StatusOK, rest.Envelope{
		"status":    "ok",
		"rooms":     c.roomService.RoomCount(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (c *controller) Ready(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (c *controller) RoomInfo(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room-id")

	info, err := c.roomService.RoomInfo(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "room not found"})
			return
		}
		c.logger.WarnContext(r.Context(), "failed to get room info", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{
		"roomId":          info.RoomID,
		"mediaRef":        info.MediaRef,
		"isPlaying":       info.IsPlaying,
		"positionSeconds": info.PositionSeconds,
		"memberCount":     info.MemberCount,
	})
}

// bearerToken extracts an optional per-user token forwarded to the
// upstream media api.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}

	return ""
}

func limitParam(r *http.Request, def, max int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}

	return limit
}

func (c *controller) SearchMedia(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"error": "q is required"})
		return
	}

	result, err := c.mediaProxy.Search(r.Context(), query, limitParam(r, 20, 50), bearerToken(r))
	if err != nil {
		c.logger.WarnContext(r.Context(), "media search failed", "error", err)
		rest.WriteJSON(w, http.StatusBadGateway, rest.Envelope{"error": "media search failed"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(result)
}

func (c *controller) ResolveMedia(w http.ResponseWriter, r *http.Request) {
	mediaURL := r.URL.Query().Get("url")
	if mediaURL == "" {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"error": "url is required"})
		return
	}

	result, err := c.mediaProxy.Resolve(r.Context(), mediaURL, bearerToken(r))
	if err != nil {
		c.logger.WarnContext(r.Context(), "media resolve failed", "error", err)
		rest.WriteJSON(w, http.StatusBadGateway, rest.Envelope{"error": "media resolve failed"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(result)
}

func (c *controller) MediaCharts(w http.ResponseWriter, r *http.Request) {
	result, err := c.mediaProxy.Charts(r.Context(), r.URL.Query().Get("genre"), limitParam(r, 20, 50), bearerToken(r))
	if err != nil {
		c.logger.WarnContext(r.Context(), "media charts failed", "error", err)
		rest.WriteJSON(w, http.StatusBadGateway, rest.Envelope{"error": "media charts failed"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(result)
}

type exchangeTokenInput struct {
	Code         string `json:"code" validate:"required"`
	CodeVerifier string `json:"codeVerifier" validate:"required"`
	RedirectURI  string `json:"redirectUri" validate:"required"`
}

func (c *controller) ExchangeToken(w http.ResponseWriter, r *http.Request) {
	var input exchangeTokenInput
	if err := rest.ReadJSON(r, &input); err != nil {
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(input); !ok {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	token, err := c.mediaProxy.ExchangeCode(r.Context(), &mediaproxy.ExchangeCodeParams{
		Code:         input.Code,
		CodeVerifier: input.CodeVerifier,
		RedirectURI:  input.RedirectURI,
	})
	if err != nil {
		c.logger.WarnContext(r.Context(), "token exchange failed", "error", err)
		rest.WriteJSON(w, http.StatusBadGateway, rest.Envelope{"error": "token exchange failed"})
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": token})
}
