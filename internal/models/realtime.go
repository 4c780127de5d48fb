package models

import "time"

// FeedEventType names what changed about a complaint.
type FeedEventType string

const (
	EventComplaintCreated FeedEventType = "complaint_created"
	EventVotesChanged     FeedEventType = "votes_changed"
	EventStatusChanged    FeedEventType = "status_changed"
	EventReplyPosted      FeedEventType = "reply_posted"
)

// FeedEvent is an invalidation signal: subscribers re-fetch the complaint
// instead of applying a delta.
type FeedEvent struct {
	Type        FeedEventType `json:"type"`
	ComplaintID string        `json:"complaint_id"`
	Category    string        `json:"category"`
	At          time.Time     `json:"at"`
}
