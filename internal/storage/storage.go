package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"queryforum/backend/internal/apperrors"
	"queryforum/backend/internal/config"
	"queryforum/backend/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Storage is the persistence contract used by the services.
type Storage interface {
	CreateProfile(ctx context.Context, profile *models.Profile) error
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	GetProfiles(ctx context.Context, userIDs []string) (map[string]*models.Profile, error)

	CreateComplaint(ctx context.Context, complaint *models.Complaint) error
	GetComplaint(ctx context.Context, id string) (*models.Complaint, error)
	ListComplaints(ctx context.Context, filter ComplaintFilter) ([]models.Complaint, error)
	UpdateComplaintStatus(ctx context.Context, id string, status models.ComplaintStatus) error
	CountComplaints(ctx context.Context) (*ComplaintCounts, error)

	GetVote(ctx context.Context, userID, complaintID string) (*models.Vote, error)
	ApplyVote(ctx context.Context, op VoteOp, vote *models.Vote) (*models.Complaint, error)
	InsertVote(ctx context.Context, vote *models.Vote) error
	RecountVotes(ctx context.Context, complaintID string) (*models.Complaint, error)
	GetUserVotes(ctx context.Context, userID string) (map[string]models.VoteType, error)
	RefreshUserVotes(ctx context.Context, userID string) (map[string]models.VoteType, error)

	CreateReply(ctx context.Context, reply *models.Reply) error
	ListReplies(ctx context.Context, complaintID string) ([]models.Reply, error)
}

// Service implements Storage on PostgreSQL (through gorm) with Redis as a
// cache and event bus. Redis may be nil, in which case caching and
// publishing are skipped.
type Service struct {
	DB           *gorm.DB
	Redis        *redis.Client
	Logger       *zap.Logger
	VoteCacheTTL time.Duration
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		DB:           db,
		Redis:        rdb,
		Logger:       logger.Named("storage"),
		VoteCacheTTL: config.DefaultVoteCacheTTL,
	}
}

// Open connects to PostgreSQL. Driver errors are translated so that unique
// violations surface as gorm.ErrDuplicatedKey.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the forum tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Profile{},
		&models.Complaint{},
		&models.Vote{},
		&models.Reply{},
	)
}

// Close releases the database and Redis connections.
func (s *Service) Close() error {
	var errs []error
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	return errors.Join(errs...)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// writeError classifies a failed write and logs anything that is not a
// constraint violation.
func (s *Service) writeError(op string, err error, fields ...zap.Field) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, apperrors.ErrConflict)
	}
	s.Logger.Error("write failed", append(fields, zap.String("op", op), zap.Error(err))...)
	return apperrors.Transient(op, err)
}

func (s *Service) readError(op string, err error, fields ...zap.Field) error {
	s.Logger.Error("read failed", append(fields, zap.String("op", op), zap.Error(err))...)
	return apperrors.Transient(op, err)
}
