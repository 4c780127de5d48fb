package storage

import (
	"context"

	"queryforum/backend/internal/models"

	"go.uber.org/zap"
)

func (s *Service) CreateReply(ctx context.Context, reply *models.Reply) error {
	if err := s.DB.WithContext(ctx).Create(reply).Error; err != nil {
		return s.writeError("create reply", err, zap.String("complaint_id", reply.ComplaintID))
	}
	return nil
}

// ListReplies returns a complaint's replies, newest first.
func (s *Service) ListReplies(ctx context.Context, complaintID string) ([]models.Reply, error) {
	var replies []models.Reply
	err := s.DB.WithContext(ctx).
		Where("complaint_id = ?", complaintID).
		Order("created_at DESC").
		Find(&replies).Error
	if err != nil {
		return nil, s.readError("list replies", err, zap.String("complaint_id", complaintID))
	}
	return replies, nil
}
