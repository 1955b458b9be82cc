package router

import (
	"encoding/json"
	"log/slog"

	"github.com/cwrk-planet/classroom-service/internal/domain"
	"github.com/cwrk-planet/classroom-service/internal/presence"
	"github.com/cwrk-planet/classroom-service/internal/registry"
	"github.com/cwrk-planet/classroom-service/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Router классифицирует входящие сообщения и раздает их нужному
// подмножеству соединений. Порядок сообщений одного отправителя
// сохраняется (Dispatch зовется из последовательного read loop-а),
// глобального порядка между отправителями нет.
type Router struct {
	reg      *registry.Registry
	dir      *presence.Directory
	validate *validator.Validate
}

func New(reg *registry.Registry, dir *presence.Directory) *Router {
	return &Router{
		reg:      reg,
		dir:      dir,
		validate: validator.New(),
	}
}

// Dispatch обрабатывает одно сырое сообщение от соединения.
// Кривой payload просто отбрасывается, соединение остается открытым.
func (rt *Router) Dispatch(srcConnID string, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		slog.Debug("malformed message dropped", "conn", srcConnID, "err", err)
		return
	}

	switch msg.Type {
	case TypeAnnounce:
		rt.handleAnnounce(srcConnID, msg.Payload)
	case TypeEngagement:
		rt.handleEngagement(srcConnID, msg.Payload)
	default:
		rt.relay(srcConnID, raw)
	}
}

func (rt *Router) handleAnnounce(srcConnID string, payload json.RawMessage) {
	var p AnnouncePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		slog.Debug("malformed announce dropped", "conn", srcConnID, "err", err)
		return
	}
	if err := rt.validate.Struct(p); err != nil {
		slog.Debug("invalid announce dropped", "conn", srcConnID, "err", err)
		return
	}
	role, err := domain.ParseRole(p.Role)
	if err != nil {
		slog.Debug("invalid announce role", "conn", srcConnID, "role", p.Role)
		return
	}

	part := rt.dir.Announce(srcConnID, p.Channel, p.ParticipantID, p.Name, role)
	slog.Info("participant announced",
		logger.Channel(part.Channel), logger.Participant(part.ID),
		slog.String("role", string(part.Role)), logger.Conn(srcConnID))

	// свежему участнику — снапшот roster-а
	rt.sendTo(srcConnID, encode(TypeState, rt.stateSnapshot(p.Channel)))
}

func (rt *Router) stateSnapshot(channel string) StatePayload {
	roster := rt.dir.Roster(channel)
	return StatePayload{
		Channel: channel,
		Participants: lo.Map(roster, func(p domain.Participant, _ int) ParticipantStateItem {
			return ParticipantStateItem{
				ParticipantID: p.ID,
				Name:          p.Name,
				Role:          string(p.Role),
				JoinedAt:      p.JoinedAt.Unix(),
			}
		}),
	}
}

// handleEngagement доставляет sample всем соединениям учителей канала.
// Без учителя sample отбрасывается: протухшие данные не имеют ценности,
// очереди здесь не место.
func (rt *Router) handleEngagement(srcConnID string, payload json.RawMessage) {
	var p EngagementPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		slog.Debug("malformed engagement sample dropped", "conn", srcConnID, "err", err)
		return
	}
	if err := rt.validate.Struct(p); err != nil {
		slog.Debug("invalid engagement sample dropped", "conn", srcConnID, "err", err)
		return
	}

	src, ok := rt.dir.Binding(srcConnID)
	if !ok || src.Channel != p.Channel {
		// с момента отправки участник мог уйти — молча дропаем
		slog.Debug("engagement sample from unknown participant dropped",
			"conn", srcConnID, "channel", p.Channel)
		return
	}

	teachers := lo.Filter(rt.dir.Roster(p.Channel), func(m domain.Participant, _ int) bool {
		return m.Role == domain.RoleTeacher && m.ConnID != srcConnID
	})
	if len(teachers) == 0 {
		slog.Debug("engagement sample dropped, no teacher in channel", "channel", p.Channel)
		return
	}

	data := encode(TypeEngagement, p)
	for _, tch := range teachers {
		rt.sendTo(tch.ConnID, data)
	}
}

// relay ретранслирует произвольное событие всем остальным соединениям
// канала отправителя. Анонимные соединения (до announce) не относятся
// ни к какому каналу — их сообщения дропаются.
func (rt *Router) relay(srcConnID string, raw []byte) {
	src, ok := rt.dir.Binding(srcConnID)
	if !ok {
		slog.Debug("relay from unannounced connection dropped", "conn", srcConnID)
		return
	}

	for _, m := range rt.dir.Roster(src.Channel) {
		if m.ConnID == srcConnID {
			continue // никогда не эхо самому себе
		}
		rt.sendTo(m.ConnID, raw)
	}
}

// sendTo — best-effort доставка одному получателю. Отказ (закрылся,
// буфер забит) логируется и не прерывает доставку остальным.
func (rt *Router) sendTo(connID string, data []byte) {
	c, ok := rt.reg.Get(connID)
	if !ok {
		return
	}
	if err := c.Send(data); err != nil {
		slog.Warn("delivery failed", logger.Conn(connID), slog.Any("err", err),
			slog.Uint64("dropped_total", c.Dropped()))
	}
}

// HandlePresence транслирует события Directory в peer_joined/peer_left
// для остальных участников канала. Вызывается как слушатель Directory,
// поэтому работает только со снапшотом из события.
func (rt *Router) HandlePresence(ev presence.Event) {
	typ := TypePeerJoined
	if ev.Kind == presence.EventDeparted {
		typ = TypePeerLeft
	}

	data := encode(typ, PeerEventPayload{
		Channel:       ev.Participant.Channel,
		ParticipantID: ev.Participant.ID,
		Name:          ev.Participant.Name,
		Role:          string(ev.Participant.Role),
	})
	for _, connID := range ev.Peers {
		rt.sendTo(connID, data)
	}
}

// EncodeEngagement собирает wire-сообщение из доменного sample-а.
// Используется публикующей стороной (sampler → event bus).
func EncodeEngagement(s domain.EngagementSample) []byte {
	return encode(TypeEngagement, EngagementPayload{
		Channel:       s.Channel,
		ParticipantID: s.ParticipantID,
		Label:         s.Label,
		Confidence:    s.Confidence,
		TSUnix:        s.CapturedAt.Unix(),
	})
}
