package models

import "time"

// Profile is the forum-facing record of an authenticated user.
// ID is the identity issued by the authentication service.
type Profile struct {
	ID                 string    `gorm:"primaryKey" json:"id"`
	Name               string    `gorm:"not null" json:"name"`
	RegistrationNumber string    `gorm:"uniqueIndex;not null" json:"registration_number"`
	// Hostel is derived once from the registration number and is nil when the
	// number is not in the hostel directory.
	Hostel    *string   `json:"hostel"`
	CreatedAt time.Time `json:"created_at"`
}

// HostelCategory returns the assigned hostel or "" when there is none.
func (p *Profile) HostelCategory() string {
	if p == nil || p.Hostel == nil {
		return ""
	}
	return *p.Hostel
}
