// Package complaint provides the forum operations around complaints:
// profiles, posting, listing, reading, and the admin-only status and reply
// actions.
package complaint

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"queryforum/backend/internal/access"
	"queryforum/backend/internal/apperrors"
	"queryforum/backend/internal/config"
	"queryforum/backend/internal/imagestore"
	"queryforum/backend/internal/logging"
	"queryforum/backend/internal/metrics"
	"queryforum/backend/internal/models"
	"queryforum/backend/internal/storage"

	"go.uber.org/zap"
)

// Publisher receives feed invalidation events.
type Publisher interface {
	Publish(ctx context.Context, event models.FeedEvent)
}

// Notifier tells admins about forum activity. Implementations must not
// block the caller.
type Notifier interface {
	ComplaintPosted(view models.ComplaintView)
	StatusChanged(view models.ComplaintView, previous models.ComplaintStatus)
}

// Deps are the collaborators of Service. Images, Publisher, Notifier and
// Metrics are optional.
type Deps struct {
	Storage   storage.Storage
	Guard     *access.Guard
	Images    imagestore.Store
	Publisher Publisher
	Notifier  Notifier
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// Service handles the business logic for complaints.
type Service struct {
	Storage storage.Storage

	guard     *access.Guard
	images    imagestore.Store
	publisher Publisher
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new complaint service.
func NewService(deps Deps) *Service {
	return &Service{
		Storage:   deps.Storage,
		guard:     deps.Guard,
		images:    deps.Images,
		publisher: deps.Publisher,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    logging.OrNop(deps.Logger).Named("complaint"),
		now:       time.Now,
	}
}

// NewComplaint is the input of PostComplaint.
type NewComplaint struct {
	Category    string
	Title       string
	Description string
	IsAnonymous bool
	Image       *imagestore.Upload
}

// PostComplaint validates and stores a complaint in a category the caller
// can access. Validation happens before the image is uploaded.
func (s *Service) PostComplaint(ctx context.Context, sess *models.Session, in NewComplaint) (*models.ComplaintView, error) {
	actor, err := s.guard.Actor(ctx, sess)
	if err != nil {
		return nil, err
	}

	title, description, err := s.validateComplaint(&in)
	if err != nil {
		return nil, err
	}
	if actor.Profile == nil && !actor.IsAdmin {
		return nil, fmt.Errorf("profile required to post: %w", apperrors.ErrForbidden)
	}
	if err := s.guard.Authorize(actor, in.Category); err != nil {
		return nil, err
	}

	var imageURL *string
	var objectPath string
	if in.Image != nil {
		objectPath = imagestore.ObjectPath(actor.UserID, in.Image.Filename, s.now())
		url, err := s.uploadImage(ctx, objectPath, *in.Image)
		if err != nil {
			return nil, err
		}
		imageURL = &url
	}

	c := &models.Complaint{
		UserID:      actor.UserID,
		Category:    in.Category,
		Title:       title,
		Description: description,
		ImageURL:    imageURL,
		IsAnonymous: in.IsAnonymous,
		Status:      models.StatusOpen,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.Storage.CreateComplaint(ctx, c); err != nil {
		if imageURL != nil {
			s.discardImage(ctx, objectPath)
		}
		return nil, err
	}

	view := models.NewComplaintView(c, actor.Profile, "")
	s.publish(ctx, models.EventComplaintCreated, c)
	if s.notifier != nil {
		s.notifier.ComplaintPosted(view)
	}
	s.metrics.ComplaintPosted(c.Category)
	s.logger.Info("complaint posted",
		zap.String("complaint_id", c.ID),
		zap.String("category", c.Category),
		zap.Bool("anonymous", c.IsAnonymous),
		zap.Bool("has_image", imageURL != nil),
	)
	return &view, nil
}

func (s *Service) validateComplaint(in *NewComplaint) (string, string, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)

	if in.Category == "" {
		return "", "", apperrors.Invalid("category", "is required")
	}
	if !s.guard.Directory().IsKnown(in.Category) {
		return "", "", apperrors.Invalid("category", fmt.Sprintf("unknown category %q", in.Category))
	}
	if n := utf8.RuneCountInString(title); n < config.TitleMinLength || n > config.TitleMaxLength {
		return "", "", apperrors.Invalid("title",
			fmt.Sprintf("must be between %d and %d characters", config.TitleMinLength, config.TitleMaxLength))
	}
	if n := utf8.RuneCountInString(description); n < config.DescriptionMinLength || n > config.DescriptionMaxLength {
		return "", "", apperrors.Invalid("description",
			fmt.Sprintf("must be between %d and %d characters", config.DescriptionMinLength, config.DescriptionMaxLength))
	}
	if in.Image != nil {
		if err := imagestore.Validate(*in.Image); err != nil {
			return "", "", err
		}
	}
	return title, description, nil
}

func (s *Service) uploadImage(ctx context.Context, objectPath string, upload imagestore.Upload) (string, error) {
	if s.images == nil {
		return "", apperrors.Invalid("image", "image uploads are disabled")
	}
	return s.images.Put(ctx, objectPath, upload)
}

// discardImage removes an upload whose complaint was never stored. It runs
// even when ctx is already cancelled.
func (s *Service) discardImage(ctx context.Context, objectPath string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.images.Delete(ctx, objectPath); err != nil {
		s.logger.Warn("failed to delete orphaned image", zap.String("path", objectPath), zap.Error(err))
	}
}

// ListComplaints returns the complaints of one category the caller can
// access, each with the caller's own vote.
func (s *Service) ListComplaints(ctx context.Context, sess *models.Session, category string, sort storage.SortOrder) ([]models.ComplaintView, error) {
	actor, err := s.guard.Actor(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !s.guard.Directory().IsKnown(category) {
		return nil, apperrors.Invalid("category", fmt.Sprintf("unknown category %q", category))
	}
	if sort == "" {
		sort = storage.SortRecent
	}
	if !sort.Valid() {
		return nil, apperrors.Invalid("sort", "must be recent or popular")
	}
	if err := s.guard.Authorize(actor, category); err != nil {
		return nil, err
	}

	complaints, err := s.Storage.ListComplaints(ctx, storage.ComplaintFilter{Category: category, Sort: sort})
	if err != nil {
		return nil, err
	}
	return s.views(ctx, actor.UserID, complaints)
}

// GetComplaint returns one complaint with its replies, newest first.
func (s *Service) GetComplaint(ctx context.Context, sess *models.Session, id string) (*models.ComplaintDetail, error) {
	actor, err := s.guard.Actor(ctx, sess)
	if err != nil {
		return nil, err
	}
	c, err := s.Storage.GetComplaint(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(actor, c.Category); err != nil {
		return nil, err
	}

	views, err := s.views(ctx, actor.UserID, []models.Complaint{*c})
	if err != nil {
		return nil, err
	}
	replies, err := s.Storage.ListReplies(ctx, id)
	if err != nil {
		return nil, err
	}
	if replies == nil {
		replies = []models.Reply{}
	}
	return &models.ComplaintDetail{Complaint: views[0], Replies: replies}, nil
}

// views resolves authors of non-anonymous complaints and the viewer's votes.
// Profiles of anonymous authors are never loaded.
func (s *Service) views(ctx context.Context, viewerID string, complaints []models.Complaint) ([]models.ComplaintView, error) {
	var authorIDs []string
	seen := make(map[string]bool)
	for _, c := range complaints {
		if !c.IsAnonymous && !seen[c.UserID] {
			seen[c.UserID] = true
			authorIDs = append(authorIDs, c.UserID)
		}
	}
	authors, err := s.Storage.GetProfiles(ctx, authorIDs)
	if err != nil {
		return nil, err
	}
	votes, err := s.Storage.GetUserVotes(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	views := make([]models.ComplaintView, 0, len(complaints))
	for i := range complaints {
		c := &complaints[i]
		var author *models.Profile
		if !c.IsAnonymous {
			author = authors[c.UserID]
		}
		views = append(views, models.NewComplaintView(c, author, votes[c.ID]))
	}
	return views, nil
}

func (s *Service) publish(ctx context.Context, eventType models.FeedEventType, c *models.Complaint) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, models.FeedEvent{
		Type:        eventType,
		ComplaintID: c.ID,
		Category:    c.Category,
		At:          s.now().UTC(),
	})
}
