package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cwrk-planet/classroom-service/internal/domain"
	"github.com/cwrk-planet/classroom-service/internal/presence"
	"github.com/cwrk-planet/classroom-service/internal/token"
	"github.com/cwrk-planet/classroom-service/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

type Handler struct {
	minter *token.Minter
	dir    *presence.Directory
}

func NewHandler(minter *token.Minter, dir *presence.Directory) *Handler {
	return &Handler{minter: minter, dir: dir}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type TokenResponse struct {
	ParticipantID string `json:"participant_id"`
	Token         string `json:"token,omitempty"`
	ExpiresAtUnix int64  `json:"expires_at_unix,omitempty"`
	Degraded      bool   `json:"degraded,omitempty"`
}

type ParticipantItem struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	JoinedAtUnix  int64  `json:"joined_at_unix"`
}

type ParticipantsResponse struct {
	Channel string            `json:"channel"`
	Items   []ParticipantItem `json:"items"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /token?channel=
// Отсутствие ключа подписи — не повод отказывать: сессия продолжается
// degraded, с локальным fallback id без credential-а.
func (h *Handler) GetToken(w http.ResponseWriter, r *http.Request) {
	channel := strings.TrimSpace(r.URL.Query().Get("channel"))
	if channel == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "channel is required"})
		return
	}

	cred, err := h.minter.Mint(channel)
	if err != nil {
		if !errors.Is(err, token.ErrCredentialUnavailable) {
			slog.Error("handler.GetToken:", slog.Any("err", err))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		slog.Warn("credential unavailable, degraded session", logger.Channel(channel), slog.Any("err", err))
		writeJSON(w, http.StatusOK, TokenResponse{
			ParticipantID: cred.ParticipantID,
			Degraded:      true,
		})
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		ParticipantID: cred.ParticipantID,
		Token:         cred.Token,
		ExpiresAtUnix: cred.ExpiresAt.Unix(),
	})
}

// GET /channels/{name}/participants
func (h *Handler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "name")
	roster := h.dir.Roster(channel)

	writeJSON(w, http.StatusOK, ParticipantsResponse{
		Channel: channel,
		Items: lo.Map(roster, func(p domain.Participant, _ int) ParticipantItem {
			return ParticipantItem{
				ParticipantID: p.ID,
				Name:          p.Name,
				Role:          string(p.Role),
				JoinedAtUnix:  p.JoinedAt.Unix(),
			}
		}),
	})
}
