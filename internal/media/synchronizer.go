package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cwrk-planet/classroom-service/internal/presence"
)

type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// SDK — граница с внешним real-time media SDK. Core не занимается
// кодеками и транспортом, он только командует подписками и playback-ом.
type SDK interface {
	Subscribe(ctx context.Context, participantID string, kind Kind) error
	Play(participantID, target string) error
	Detach(participantID, target string) error
}

type SubState string

const (
	StateUnsubscribed SubState = "unsubscribed"
	StateSubscribing  SubState = "subscribing"
	StateSubscribed   SubState = "subscribed"
)

type mediaState struct {
	state SubState
	epoch uint64 // инвалидация stale-завершений после left
}

// Synchronizer держит локальное playback/subscription-состояние в
// согласии с roster-ом и publish/unpublish-сигналами SDK.
// На одного участника никогда не идут две конкурентные подписки:
// повторный published в Subscribing/Subscribed коалесцируется.
type Synchronizer struct {
	sdk    SDK
	target func(participantID string) string

	mu     sync.Mutex
	states map[string]*mediaState
}

type Option func(*Synchronizer)

// WithTarget задает naming UI-плейсхолдеров для playback-а.
func WithTarget(fn func(participantID string) string) Option {
	return func(s *Synchronizer) { s.target = fn }
}

func NewSynchronizer(sdk SDK, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		sdk:    sdk,
		states: make(map[string]*mediaState),
		target: func(id string) string { return fmt.Sprintf("player-%s", id) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State — текущее состояние подписки на участника.
func (s *Synchronizer) State(participantID string) SubState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[participantID]; ok {
		return st.state
	}
	return StateUnsubscribed
}

// HandlePublished реагирует на внешний published-сигнал.
// Unsubscribed → Subscribing → Subscribed, с attach playback-а.
func (s *Synchronizer) HandlePublished(ctx context.Context, participantID string, kind Kind) {
	s.mu.Lock()
	st, ok := s.states[participantID]
	if !ok {
		st = &mediaState{state: StateUnsubscribed}
		s.states[participantID] = st
	}
	if st.state != StateUnsubscribed {
		// уже подписываемся или подписаны — коалесцируем
		s.mu.Unlock()
		return
	}
	st.state = StateSubscribing
	epoch := st.epoch
	s.mu.Unlock()

	err := s.sdk.Subscribe(ctx, participantID, kind)

	s.mu.Lock()
	st, ok = s.states[participantID]
	if !ok || st.epoch != epoch || st.state != StateSubscribing {
		// участник ушел, пока мы подписывались
		s.mu.Unlock()
		return
	}
	if err != nil {
		st.state = StateUnsubscribed
		s.mu.Unlock()
		slog.Warn("media subscribe failed", "participant", participantID, "kind", kind, "err", err)
		return
	}
	st.state = StateSubscribed
	// attach под тем же локом: release не должен вклиниться между
	// переходом в Subscribed и запуском playback-а
	playErr := s.sdk.Play(participantID, s.target(participantID))
	s.mu.Unlock()

	if playErr != nil {
		slog.Warn("media play failed", "participant", participantID, "err", playErr)
	}
}

// HandleUnpublished — идемпотентный переход в Unsubscribed с detach-ом.
func (s *Synchronizer) HandleUnpublished(participantID string, kind Kind) {
	s.release(participantID, false)
}

// HandleLeft убирает участника целиком; повторные вызовы — no-op.
func (s *Synchronizer) HandleLeft(participantID string) {
	s.release(participantID, true)
}

func (s *Synchronizer) release(participantID string, gone bool) {
	s.mu.Lock()
	st, ok := s.states[participantID]
	if !ok {
		s.mu.Unlock()
		return
	}
	wasSubscribed := st.state == StateSubscribed
	st.state = StateUnsubscribed
	st.epoch++
	if gone {
		delete(s.states, participantID)
	}
	s.mu.Unlock()

	if wasSubscribed {
		if err := s.sdk.Detach(participantID, s.target(participantID)); err != nil {
			slog.Debug("media detach failed", "participant", participantID, "err", err)
		}
	}
}

// WatchDirectory подписывает синхронизатор на departed-события roster-а:
// уход участника снимает подписку даже без unpublished от SDK.
// Возвращенный handle снимает подписку детерминированно.
func (s *Synchronizer) WatchDirectory(dir *presence.Directory) (unsubscribe func()) {
	return dir.Subscribe(func(ev presence.Event) {
		if ev.Kind == presence.EventDeparted {
			s.HandleLeft(ev.Participant.ID)
		}
	})
}
