package models

import "time"

// VoteType is the direction of a vote.
type VoteType string

const (
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
)

// Valid reports whether v is up or down.
func (v VoteType) Valid() bool {
	return v == VoteUp || v == VoteDown
}

// Vote is keyed by (user, complaint). The composite primary key is the
// storage-level guarantee of at most one vote per pair.
type Vote struct {
	UserID      string    `gorm:"primaryKey" json:"user_id"`
	ComplaintID string    `gorm:"primaryKey;index" json:"complaint_id"`
	VoteType    VoteType  `gorm:"type:text;not null" json:"vote_type"`
	CreatedAt   time.Time `json:"created_at"`
}
