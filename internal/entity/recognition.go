package entity

import "time"

// Recognition records one decoded image. The image itself is never stored, only its digest.
type Recognition struct {
	ID        string    `db:"id"`
	RequestID string    `db:"request_id"`
	ImageHash string    `db:"image_hash"`
	Text      string    `db:"text"`
	Source    string    `db:"source"`
	Timesteps int       `db:"timesteps"`
	Cached    bool      `db:"cached"`
	LatencyMs int64     `db:"latency_ms"`
	CreatedAt time.Time `db:"created_at"`
}
