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

// GetVote returns the user's vote on a complaint, or nil when there is none.
func (s *Service) GetVote(ctx context.Context, userID, complaintID string) (*models.Vote, error) {
	var vote models.Vote
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND complaint_id = ?", userID, complaintID).
		First(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.readError("get vote", err,
			zap.String("user_id", userID),
			zap.String("complaint_id", complaintID),
		)
	}
	return &vote, nil
}

// VoteOp is the row operation behind one vote transition.
type VoteOp string

const (
	VoteInsert VoteOp = "insert"
	VoteUpdate VoteOp = "update"
	VoteDelete VoteOp = "delete"
)

// ApplyVote performs op for vote and recomputes the complaint's tallies in
// the same transaction, returning the refreshed complaint. When any step
// fails nothing is written. Losing a race on the (user, complaint) key, or
// updating or deleting a row that disappeared since it was read, yields
// apperrors.ErrConflict.
func (s *Service) ApplyVote(ctx context.Context, op VoteOp, vote *models.Vote) (*models.Complaint, error) {
	fields := []zap.Field{
		zap.String("op", string(op)),
		zap.String("user_id", vote.UserID),
		zap.String("complaint_id", vote.ComplaintID),
	}
	if op != VoteInsert && op != VoteUpdate && op != VoteDelete {
		return nil, fmt.Errorf("unknown vote operation %q", op)
	}

	var complaint models.Complaint
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		switch op {
		case VoteInsert:
			err = insertVote(tx, vote)
		case VoteUpdate:
			err = updateVoteType(tx, vote.UserID, vote.ComplaintID, vote.VoteType)
		case VoteDelete:
			err = deleteVote(tx, vote.UserID, vote.ComplaintID)
		}
		if err != nil {
			return err
		}
		if err := recountVotes(tx, vote.ComplaintID); err != nil {
			return err
		}
		return tx.Where("id = ?", vote.ComplaintID).First(&complaint).Error
	})
	if err != nil {
		return nil, s.voteError("apply vote", err, fields...)
	}
	return &complaint, nil
}

// InsertVote creates a vote row without touching the tallies.
func (s *Service) InsertVote(ctx context.Context, vote *models.Vote) error {
	if err := insertVote(s.DB.WithContext(ctx), vote); err != nil {
		return s.voteError("insert vote", err,
			zap.String("user_id", vote.UserID),
			zap.String("complaint_id", vote.ComplaintID),
		)
	}
	return nil
}

// RecountVotes recomputes the complaint's upvote and downvote totals from the
// votes table and returns the refreshed complaint.
func (s *Service) RecountVotes(ctx context.Context, complaintID string) (*models.Complaint, error) {
	if err := recountVotes(s.DB.WithContext(ctx), complaintID); err != nil {
		return nil, s.voteError("recount votes", err, zap.String("complaint_id", complaintID))
	}
	return s.GetComplaint(ctx, complaintID)
}

// voteError passes conflicts and missing rows through and classifies
// everything else as a failed write.
func (s *Service) voteError(op string, err error, fields ...zap.Field) error {
	if errors.Is(err, apperrors.ErrConflict) || errors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, apperrors.ErrNotFound)
	}
	return s.writeError(op, err, fields...)
}

func insertVote(db *gorm.DB, vote *models.Vote) error {
	return db.Create(vote).Error
}

func updateVoteType(db *gorm.DB, userID, complaintID string, voteType models.VoteType) error {
	res := db.Model(&models.Vote{}).
		Where("user_id = ? AND complaint_id = ?", userID, complaintID).
		Update("vote_type", voteType)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update vote: %w", apperrors.ErrConflict)
	}
	return nil
}

func deleteVote(db *gorm.DB, userID, complaintID string) error {
	res := db.Where("user_id = ? AND complaint_id = ?", userID, complaintID).
		Delete(&models.Vote{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete vote: %w", apperrors.ErrConflict)
	}
	return nil
}

// recountVotes sets both tallies from the votes table in one statement.
// The counters are never adjusted incrementally.
func recountVotes(db *gorm.DB, complaintID string) error {
	res := db.Model(&models.Complaint{}).
		Where("id = ?", complaintID).
		Updates(map[string]any{
			"upvotes": gorm.Expr(
				"(SELECT COUNT(*) FROM votes WHERE complaint_id = ? AND vote_type = ?)",
				complaintID, models.VoteUp,
			),
			"downvotes": gorm.Expr(
				"(SELECT COUNT(*) FROM votes WHERE complaint_id = ? AND vote_type = ?)",
				complaintID, models.VoteDown,
			),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("complaint %s: %w", complaintID, apperrors.ErrNotFound)
	}
	return nil
}

func (s *Service) loadUserVotes(ctx context.Context, userID string) (map[string]models.VoteType, error) {
	var rows []models.Vote
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, s.readError("load user votes", err, zap.String("user_id", userID))
	}
	votes := make(map[string]models.VoteType, len(rows))
	for _, row := range rows {
		votes[row.ComplaintID] = row.VoteType
	}
	return votes, nil
}
