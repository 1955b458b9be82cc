package router

import "encoding/json"

// Типы событий wire-протокола. Всё, что не перечислено здесь,
// считается opaque relay и ретранслируется внутри канала.
const (
	TypeAnnounce   = "identity-announce" // клиент → core, не ретранслируется
	TypeEngagement = "engagement-sample" // клиент → core, адресная доставка учителям
	TypeState      = "state"             // core → клиент, снапшот roster-а после announce
	TypePeerJoined = "peer_joined"       // core → клиенты канала
	TypePeerLeft   = "peer_left"         // core → клиенты канала
)

type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type AnnouncePayload struct {
	Channel       string `json:"channel" validate:"required"`
	ParticipantID string `json:"participant_id" validate:"required"`
	Name          string `json:"name,omitempty"`
	Role          string `json:"role" validate:"required,oneof=student teacher"`
}

type EngagementPayload struct {
	Channel       string  `json:"channel" validate:"required"`
	ParticipantID string  `json:"participant_id" validate:"required"`
	Label         string  `json:"label" validate:"required"`
	Confidence    float64 `json:"confidence" validate:"gte=0,lte=1"`
	TSUnix        int64   `json:"ts_unix"`
}

type StatePayload struct {
	Channel      string                 `json:"channel"`
	Participants []ParticipantStateItem `json:"participants"`
}

type ParticipantStateItem struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	JoinedAt      int64  `json:"joined_at_unix"`
}

type PeerEventPayload struct {
	Channel       string `json:"channel"`
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Role          string `json:"role"`
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err) // только свои типы, не бывает
	}
	return b
}

func encode(typ string, payload any) []byte {
	b, err := json.Marshal(Message{Type: typ, Payload: mustMarshal(payload)})
	if err != nil {
		panic(err)
	}
	return b
}
