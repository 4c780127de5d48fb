package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reply is an append-only admin response to a complaint.
type Reply struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	ComplaintID string    `gorm:"not null;index" json:"complaint_id"`
	AdminID     string    `gorm:"not null" json:"-"`
	ReplyText   string    `gorm:"type:text;not null" json:"reply_text"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// TableName keeps the table name used by the web client.
func (Reply) TableName() string {
	return "complaint_replies"
}

// BeforeCreate assigns a UUID when the ID is empty.
func (r *Reply) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}
