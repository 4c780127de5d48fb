package complaint

import (
	"context"
	"strings"

	"queryforum/backend/internal/access"
	"queryforum/backend/internal/apperrors"
	"queryforum/backend/internal/models"

	"go.uber.org/zap"
)

// SetStatus overwrites a complaint's status. Any status may follow any
// other.
func (s *Service) SetStatus(ctx context.Context, sess *models.Session, id string, status models.ComplaintStatus) (*models.ComplaintView, error) {
	if err := access.RequireAdmin(sess); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperrors.Invalid("status", "must be open, in_progress or resolved")
	}

	c, err := s.Storage.GetComplaint(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := c.Status
	if err := s.Storage.UpdateComplaintStatus(ctx, id, status); err != nil {
		return nil, err
	}
	c.Status = status

	// The status is committed. Failing to decorate the view only costs the
	// author and vote fields; it is not reported as a failed write.
	var view models.ComplaintView
	if views, err := s.views(ctx, sess.UserID, []models.Complaint{*c}); err == nil {
		view = views[0]
	} else {
		s.logger.Warn("failed to build view after status change",
			zap.String("complaint_id", id), zap.Error(err))
		view = models.NewComplaintView(c, nil, "")
	}

	s.publish(ctx, models.EventStatusChanged, c)
	if s.notifier != nil && previous != status {
		s.notifier.StatusChanged(view, previous)
	}
	s.metrics.StatusChanged(string(status))
	s.logger.Info("status changed",
		zap.String("complaint_id", id),
		zap.String("admin_id", sess.UserID),
		zap.String("from", string(previous)),
		zap.String("to", string(status)),
	)
	return &view, nil
}

// PostReply appends an admin reply to a complaint.
func (s *Service) PostReply(ctx context.Context, sess *models.Session, id, text string) (*models.Reply, error) {
	if err := access.RequireAdmin(sess); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.Invalid("reply_text", "must not be empty")
	}

	c, err := s.Storage.GetComplaint(ctx, id)
	if err != nil {
		return nil, err
	}
	reply := &models.Reply{
		ComplaintID: id,
		AdminID:     sess.UserID,
		ReplyText:   text,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.Storage.CreateReply(ctx, reply); err != nil {
		return nil, err
	}

	s.publish(ctx, models.EventReplyPosted, c)
	s.metrics.ReplyPosted()
	s.logger.Info("reply posted",
		zap.String("complaint_id", id),
		zap.String("reply_id", reply.ID),
		zap.String("admin_id", sess.UserID),
	)
	return reply, nil
}

// ListReplies returns the replies of a complaint the caller can read,
// newest first.
func (s *Service) ListReplies(ctx context.Context, sess *models.Session, id string) ([]models.Reply, error) {
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
	return s.Storage.ListReplies(ctx, id)
}
