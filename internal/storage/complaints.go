package storage

import (
	"context"
	"errors"
	"fmt"

	"queryforum/backend/internal/apperrors"
	"queryforum/backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SortOrder selects how a category listing is ordered.
type SortOrder string

const (
	SortRecent  SortOrder = "recent"
	SortPopular SortOrder = "popular"
)

// Valid reports whether o is a known ordering.
func (o SortOrder) Valid() bool {
	return o == SortRecent || o == SortPopular
}

// ComplaintFilter narrows ListComplaints.
type ComplaintFilter struct {
	Category string
	Sort     SortOrder
	Limit    int
}

// ComplaintCounts aggregates complaints for the dashboard.
type ComplaintCounts struct {
	Total      int64
	ByStatus   map[models.ComplaintStatus]int64
	ByCategory map[string]int64
}

func (s *Service) CreateComplaint(ctx context.Context, complaint *models.Complaint) error {
	if err := s.DB.WithContext(ctx).Create(complaint).Error; err != nil {
		return s.writeError("create complaint", err,
			zap.String("user_id", complaint.UserID),
			zap.String("category", complaint.Category),
		)
	}
	return nil
}

// GetComplaint returns apperrors.ErrNotFound when no complaint has id.
func (s *Service) GetComplaint(ctx context.Context, id string) (*models.Complaint, error) {
	var complaint models.Complaint
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&complaint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("complaint %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, s.readError("get complaint", err, zap.String("complaint_id", id))
	}
	return &complaint, nil
}

func (s *Service) ListComplaints(ctx context.Context, filter ComplaintFilter) ([]models.Complaint, error) {
	tx := s.DB.WithContext(ctx).Model(&models.Complaint{})
	if filter.Category != "" {
		tx = tx.Where("category = ?", filter.Category)
	}
	switch filter.Sort {
	case SortPopular:
		tx = tx.Order("upvotes DESC").Order("created_at DESC")
	default:
		tx = tx.Order("created_at DESC")
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}

	var complaints []models.Complaint
	if err := tx.Find(&complaints).Error; err != nil {
		return nil, s.readError("list complaints", err, zap.String("category", filter.Category))
	}
	return complaints, nil
}

// UpdateComplaintStatus overwrites the status unconditionally.
func (s *Service) UpdateComplaintStatus(ctx context.Context, id string, status models.ComplaintStatus) error {
	res := s.DB.WithContext(ctx).Model(&models.Complaint{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return s.writeError("update complaint status", res.Error, zap.String("complaint_id", id))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("complaint %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (s *Service) CountComplaints(ctx context.Context) (*ComplaintCounts, error) {
	counts := &ComplaintCounts{
		ByStatus:   make(map[models.ComplaintStatus]int64),
		ByCategory: make(map[string]int64),
	}

	var byStatus []struct {
		Status models.ComplaintStatus
		Count  int64
	}
	if err := s.DB.WithContext(ctx).Model(&models.Complaint{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, s.readError("count complaints by status", err)
	}
	for _, row := range byStatus {
		counts.ByStatus[row.Status] = row.Count
		counts.Total += row.Count
	}

	var byCategory []struct {
		Category string
		Count    int64
	}
	if err := s.DB.WithContext(ctx).Model(&models.Complaint{}).
		Select("category, COUNT(*) AS count").
		Group("category").
		Scan(&byCategory).Error; err != nil {
		return nil, s.readError("count complaints by category", err)
	}
	for _, row := range byCategory {
		counts.ByCategory[row.Category] = row.Count
	}
	return counts, nil
}
