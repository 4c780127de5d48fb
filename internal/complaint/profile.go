package complaint

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"queryforum/backend/internal/apperrors"
	"queryforum/backend/internal/config"
	"queryforum/backend/internal/hostel"
	"queryforum/backend/internal/models"
)

// RegisterProfile creates the caller's forum profile. The hostel is looked
// up once here and never changes afterwards.
func (s *Service) RegisterProfile(ctx context.Context, sess *models.Session, name, registrationNumber string) (*models.Profile, error) {
	if !sess.Authenticated() {
		return nil, apperrors.ErrUnauthorized
	}
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > config.NameMaxLength {
		return nil, apperrors.Invalid("name", fmt.Sprintf("must be between 1 and %d characters", config.NameMaxLength))
	}
	reg := hostel.NormalizeRegistration(registrationNumber)
	if reg == "" {
		return nil, apperrors.Invalid("registration_number", "is required")
	}

	profile := &models.Profile{
		ID:                 sess.UserID,
		Name:               name,
		RegistrationNumber: reg,
		CreatedAt:          s.now().UTC(),
	}
	if h, ok := s.guard.Directory().HostelFor(reg); ok {
		profile.Hostel = &h
	}
	if err := s.Storage.CreateProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// GetProfile returns the caller's profile or ErrNotFound.
func (s *Service) GetProfile(ctx context.Context, sess *models.Session) (*models.Profile, error) {
	if !sess.Authenticated() {
		return nil, apperrors.ErrUnauthorized
	}
	profile, err := s.Storage.GetProfile(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("profile %s: %w", sess.UserID, apperrors.ErrNotFound)
	}
	return profile, nil
}

// AccessibleCategories lists the categories the caller can view and post
// into.
func (s *Service) AccessibleCategories(ctx context.Context, sess *models.Session) ([]string, error) {
	actor, err := s.guard.Actor(ctx, sess)
	if err != nil {
		return nil, err
	}
	return s.guard.Accessible(actor), nil
}
