package domain

import "time"

// EngagementSample — эфемерная запись, никогда не персистится.
// Наблюдателю важен только последний sample на участника.
type EngagementSample struct {
	Channel       string
	ParticipantID string
	Label         string
	Confidence    float64 // [0,1]
	CapturedAt    time.Time
}
