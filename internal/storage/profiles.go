package storage

import (
	"context"
	"errors"

	"queryforum/backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateProfile inserts a profile. A duplicate user ID or registration
// number yields apperrors.ErrConflict.
func (s *Service) CreateProfile(ctx context.Context, profile *models.Profile) error {
	if err := s.DB.WithContext(ctx).Create(profile).Error; err != nil {
		return s.writeError("create profile", err, zap.String("user_id", profile.ID))
	}
	s.Logger.Info("profile created",
		zap.String("user_id", profile.ID),
		zap.Bool("has_hostel", profile.Hostel != nil),
	)
	return nil
}

// GetProfile returns nil without an error when the user has no profile.
func (s *Service) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.readError("get profile", err, zap.String("user_id", userID))
	}
	return &profile, nil
}

// GetProfiles loads several profiles keyed by user ID. Missing users are
// simply absent from the map.
func (s *Service) GetProfiles(ctx context.Context, userIDs []string) (map[string]*models.Profile, error) {
	out := make(map[string]*models.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []models.Profile
	if err := s.DB.WithContext(ctx).Where("id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, s.readError("get profiles", err, zap.Int("count", len(userIDs)))
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}
