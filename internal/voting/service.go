package voting

import (
	"context"
	"errors"
	"time"

	"queryforum/backend/internal/access"
	"queryforum/backend/internal/apperrors"
	"queryforum/backend/internal/logging"
	"queryforum/backend/internal/metrics"
	"queryforum/backend/internal/models"
	"queryforum/backend/internal/storage"

	"go.uber.org/zap"
)

// Store is the persistence the vote service needs.
type Store interface {
	GetComplaint(ctx context.Context, id string) (*models.Complaint, error)
	GetVote(ctx context.Context, userID, complaintID string) (*models.Vote, error)
	ApplyVote(ctx context.Context, op storage.VoteOp, vote *models.Vote) (*models.Complaint, error)
	GetUserVotes(ctx context.Context, userID string) (map[string]models.VoteType, error)
	RefreshUserVotes(ctx context.Context, userID string) (map[string]models.VoteType, error)
}

// Publisher receives an invalidation event after every applied transition.
type Publisher interface {
	Publish(ctx context.Context, event models.FeedEvent)
}

// Result is the stored truth after a vote was cast.
type Result struct {
	ComplaintID string          `json:"complaint_id"`
	Upvotes     int             `json:"upvotes"`
	Downvotes   int             `json:"downvotes"`
	UserVote    models.VoteType `json:"user_vote"`
	Action      Action          `json:"action"`
}

// Service applies vote transitions.
type Service struct {
	store     Store
	guard     *access.Guard
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a vote service. publisher and m may be nil.
func NewService(store Store, guard *access.Guard, publisher Publisher, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		guard:     guard,
		publisher: publisher,
		metrics:   m,
		logger:    logging.OrNop(logger).Named("voting"),
		now:       time.Now,
	}
}

// Cast toggles the caller's vote on a complaint. Without a session it
// returns ErrUnauthorized before reading or writing anything. A concurrent
// vote on the same pair surfaces as ErrConflict from storage. After the
// transition the tallies and the caller's vote state are re-read from
// storage rather than adjusted locally.
func (s *Service) Cast(ctx context.Context, sess *models.Session, complaintID string, requested models.VoteType) (*Result, error) {
	actor, err := s.guard.Actor(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !requested.Valid() {
		return nil, apperrors.Invalid("vote_type", "must be up or down")
	}

	complaint, err := s.store.GetComplaint(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(actor, complaint.Category); err != nil {
		return nil, err
	}

	current := NoVote
	existing, err := s.store.GetVote(ctx, actor.UserID, complaintID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		current = existing.VoteType
	}

	transition, err := Reconcile(current, requested)
	if err != nil {
		return nil, err
	}
	// The row write and the recount commit together, so a failure here
	// leaves both the vote and the tallies as they were.
	refreshed, err := s.store.ApplyVote(ctx, storageOp(transition.Action), &models.Vote{
		UserID:      actor.UserID,
		ComplaintID: complaintID,
		VoteType:    transition.To,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			s.metrics.VoteConflict()
		}
		return nil, err
	}
	s.metrics.VoteTransition(string(transition.Action))

	// Committed. A failed cache refresh is logged, not returned.
	userVote := transition.To
	votes, err := s.store.RefreshUserVotes(ctx, actor.UserID)
	if err != nil {
		s.logger.Warn("failed to refresh vote state after commit",
			zap.String("user_id", actor.UserID),
			zap.String("complaint_id", complaintID),
			zap.Error(err))
	} else {
		userVote = votes[complaintID]
	}

	if s.publisher != nil {
		s.publisher.Publish(ctx, models.FeedEvent{
			Type:        models.EventVotesChanged,
			ComplaintID: complaintID,
			Category:    complaint.Category,
			At:          s.now().UTC(),
		})
	}

	s.logger.Debug("vote applied",
		zap.String("user_id", actor.UserID),
		zap.String("complaint_id", complaintID),
		zap.String("action", string(transition.Action)),
		zap.String("from", string(transition.From)),
		zap.String("to", string(transition.To)),
	)

	return &Result{
		ComplaintID: complaintID,
		Upvotes:     refreshed.Upvotes,
		Downvotes:   refreshed.Downvotes,
		UserVote:    userVote,
		Action:      transition.Action,
	}, nil
}

func storageOp(a Action) storage.VoteOp {
	switch a {
	case ActionUpdate:
		return storage.VoteUpdate
	case ActionDelete:
		return storage.VoteDelete
	}
	return storage.VoteInsert
}

// UserVotes returns the caller's vote state keyed by complaint ID.
func (s *Service) UserVotes(ctx context.Context, sess *models.Session) (map[string]models.VoteType, error) {
	if !sess.Authenticated() {
		return nil, apperrors.ErrUnauthorized
	}
	return s.store.GetUserVotes(ctx, sess.UserID)
}
