package config

import "time"

const (
	// Complaint input limits, counted in runes after trimming.
	TitleMinLength       = 5
	TitleMaxLength       = 200
	DescriptionMinLength = 10
	DescriptionMaxLength = 2000

	// Profile input limits.
	NameMaxLength = 100

	// Images
	MaxImageBytes = 5 * 1024 * 1024

	// Vote-state cache
	DefaultVoteCacheTTL = 10 * time.Minute

	// Notifications
	NotifierQueueSize = 64
)
