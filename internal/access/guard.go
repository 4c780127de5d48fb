// Package access turns an explicit session into an actor with a resolved
// hostel and gates every category read and write through one predicate.
package access

import (
	"context"
	"fmt"

	"queryforum/backend/internal/apperrors"
	"queryforum/backend/internal/hostel"
	"queryforum/backend/internal/models"
)

// ProfileLookup finds the forum profile of a user. It returns nil without an
// error when the user has not registered.
type ProfileLookup interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// Actor is a session resolved against the profile store.
type Actor struct {
	UserID  string
	IsAdmin bool
	// Hostel is "" when the user has no profile or an unmapped
	// registration number.
	Hostel  string
	Profile *models.Profile
}

// Guard resolves actors and checks category access.
type Guard struct {
	directory *hostel.Directory
	profiles  ProfileLookup
}

// NewGuard creates a guard over the given directory and profile store.
func NewGuard(directory *hostel.Directory, profiles ProfileLookup) *Guard {
	return &Guard{directory: directory, profiles: profiles}
}

// Directory returns the hostel directory the guard checks against.
func (g *Guard) Directory() *hostel.Directory {
	return g.directory
}

// Actor resolves sess. A nil or empty session yields ErrUnauthorized.
func (g *Guard) Actor(ctx context.Context, sess *models.Session) (*Actor, error) {
	if !sess.Authenticated() {
		return nil, apperrors.ErrUnauthorized
	}
	profile, err := g.profiles.GetProfile(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	return &Actor{
		UserID:  sess.UserID,
		IsAdmin: sess.IsAdmin,
		Hostel:  profile.HostelCategory(),
		Profile: profile,
	}, nil
}

// CanAccess reports whether actor may view or post into category.
func (g *Guard) CanAccess(actor *Actor, category string) bool {
	if actor == nil {
		return false
	}
	return g.directory.CanAccess(actor.Hostel, category, actor.IsAdmin)
}

// Authorize returns ErrForbidden when actor may not view or post into
// category.
func (g *Guard) Authorize(actor *Actor, category string) error {
	if actor == nil {
		return apperrors.ErrUnauthorized
	}
	if !g.CanAccess(actor, category) {
		return fmt.Errorf("category %q: %w", category, apperrors.ErrForbidden)
	}
	return nil
}

// Accessible lists the categories actor may reach, ladies hostels first,
// then men's hostels, then common sections.
func (g *Guard) Accessible(actor *Actor) []string {
	if actor == nil {
		return nil
	}
	return g.directory.Accessible(actor.Hostel, actor.IsAdmin)
}

// RequireAdmin checks the admin capability of sess without touching the
// profile store.
func RequireAdmin(sess *models.Session) error {
	if !sess.Authenticated() {
		return apperrors.ErrUnauthorized
	}
	if !sess.IsAdmin {
		return apperrors.ErrForbidden
	}
	return nil
}
