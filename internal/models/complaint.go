package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ComplaintStatus is the lifecycle state an admin assigns to a complaint.
type ComplaintStatus string

const (
	StatusOpen       ComplaintStatus = "open"
	StatusInProgress ComplaintStatus = "in_progress"
	StatusResolved   ComplaintStatus = "resolved"
)

// Valid reports whether s is one of the known statuses.
func (s ComplaintStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

// Complaint is a post scoped to one category.
// Upvotes and Downvotes are aggregates recomputed from the votes table.
type Complaint struct {
	ID          string          `gorm:"primaryKey" json:"id"`
	UserID      string          `gorm:"not null;index" json:"-"`
	Category    string          `gorm:"not null;index" json:"category"`
	Title       string          `gorm:"not null" json:"title"`
	Description string          `gorm:"type:text;not null" json:"description"`
	ImageURL    *string         `json:"image_url,omitempty"`
	IsAnonymous bool            `gorm:"not null;default:false" json:"is_anonymous"`
	Upvotes     int             `gorm:"not null;default:0" json:"upvotes"`
	Downvotes   int             `gorm:"not null;default:0" json:"downvotes"`
	Status      ComplaintStatus `gorm:"type:text;not null;default:open;index" json:"status"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
}

// BeforeCreate assigns a UUID when the ID is empty.
func (c *Complaint) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = StatusOpen
	}
	return
}

// Author is the public identity shown next to a non-anonymous complaint.
type Author struct {
	Name               string `json:"name"`
	RegistrationNumber string `json:"registration_number"`
}

// ComplaintView is the only shape in which a complaint leaves the service
// layer. Author stays nil for anonymous complaints.
type ComplaintView struct {
	ID          string          `json:"id"`
	Category    string          `json:"category"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	ImageURL    *string         `json:"image_url,omitempty"`
	IsAnonymous bool            `json:"is_anonymous"`
	Author      *Author         `json:"author,omitempty"`
	Upvotes     int             `json:"upvotes"`
	Downvotes   int             `json:"downvotes"`
	Status      ComplaintStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UserVote    VoteType        `json:"user_vote,omitempty"`
}

// NewComplaintView builds a view of c. The author profile is consulted only
// when the complaint is not anonymous.
func NewComplaintView(c *Complaint, author *Profile, userVote VoteType) ComplaintView {
	v := ComplaintView{
		ID:          c.ID,
		Category:    c.Category,
		Title:       c.Title,
		Description: c.Description,
		ImageURL:    c.ImageURL,
		IsAnonymous: c.IsAnonymous,
		Upvotes:     c.Upvotes,
		Downvotes:   c.Downvotes,
		Status:      c.Status,
		CreatedAt:   c.CreatedAt,
		UserVote:    userVote,
	}
	if !c.IsAnonymous && author != nil {
		v.Author = &Author{Name: author.Name, RegistrationNumber: author.RegistrationNumber}
	}
	return v
}

// ComplaintDetail is a complaint together with its admin replies.
type ComplaintDetail struct {
	Complaint ComplaintView `json:"complaint"`
	Replies   []Reply       `json:"replies"`
}
