// Package analysis computes the dashboard statistics shown on the forum
// home page.
package analysis

import (
	"context"

	"queryforum/backend/internal/apperrors"
	"queryforum/backend/internal/hostel"
	"queryforum/backend/internal/models"
	"queryforum/backend/internal/storage"
)

// Counter aggregates complaints in storage.
type Counter interface {
	CountComplaints(ctx context.Context) (*storage.ComplaintCounts, error)
}

// CategoryCount is the number of complaints in one category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// Stats summarises every complaint on the forum.
type Stats struct {
	Total      int64           `json:"total"`
	Open       int64           `json:"open"`
	InProgress int64           `json:"in_progress"`
	Resolved   int64           `json:"resolved"`
	ByCategory []CategoryCount `json:"by_category"`
}

// Service computes Stats.
type Service struct {
	counter   Counter
	directory *hostel.Directory
}

// NewService creates a stats service.
func NewService(counter Counter, directory *hostel.Directory) *Service {
	return &Service{counter: counter, directory: directory}
}

// Stats returns the forum-wide counts. Categories are listed in directory
// order, including empty ones; categories no longer in the directory are
// appended at the end.
func (s *Service) Stats(ctx context.Context, sess *models.Session) (*Stats, error) {
	if !sess.Authenticated() {
		return nil, apperrors.ErrUnauthorized
	}
	counts, err := s.counter.CountComplaints(ctx)
	if err != nil {
		return nil, err
	}
	return Summarize(counts, s.directory), nil
}

// Summarize shapes raw counts for the dashboard.
func Summarize(counts *storage.ComplaintCounts, directory *hostel.Directory) *Stats {
	stats := &Stats{
		Total:      counts.Total,
		Open:       counts.ByStatus[models.StatusOpen],
		InProgress: counts.ByStatus[models.StatusInProgress],
		Resolved:   counts.ByStatus[models.StatusResolved],
	}

	listed := make(map[string]bool)
	for _, category := range directory.All() {
		listed[category] = true
		stats.ByCategory = append(stats.ByCategory, CategoryCount{Category: category, Count: counts.ByCategory[category]})
	}
	for category, n := range counts.ByCategory {
		if !listed[category] {
			stats.ByCategory = append(stats.ByCategory, CategoryCount{Category: category, Count: n})
		}
	}
	return stats
}
