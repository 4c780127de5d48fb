package voting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"queryforum/backend/internal/access"
	"queryforum/backend/internal/apperrors"
	"queryforum/backend/internal/hostel"
	"queryforum/backend/internal/metrics"
	"queryforum/backend/internal/models"
	"queryforum/backend/internal/storage"
	"queryforum/backend/internal/storage/storagetest"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.FeedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event models.FeedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Events() []models.FeedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.FeedEvent(nil), p.events...)
}

type fixture struct {
	store     *storage.Service
	service   *Service
	publisher *recordingPublisher
	registry  *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, _ := storagetest.NewService(t)
	registry := prometheus.NewRegistry()
	publisher := &recordingPublisher{}
	guard := access.NewGuard(hostel.Default(), store)
	return &fixture{
		store:     store,
		service:   NewService(store, guard, publisher, metrics.New(registry), zap.NewNop()),
		publisher: publisher,
		registry:  registry,
	}
}

func (f *fixture) profile(t *testing.T, id, hostelName string) *models.Session {
	t.Helper()
	p := &models.Profile{ID: id, Name: id, RegistrationNumber: "REG-" + id}
	if hostelName != "" {
		p.Hostel = &hostelName
	}
	require.NoError(t, f.store.CreateProfile(context.Background(), p))
	return &models.Session{UserID: id}
}

func (f *fixture) complaint(t *testing.T, category string) *models.Complaint {
	t.Helper()
	c := &models.Complaint{
		UserID:      "author",
		Category:    category,
		Title:       "Water cooler broken",
		Description: "The cooler on floor two has been broken for a week.",
	}
	require.NoError(t, f.store.CreateComplaint(context.Background(), c))
	return c
}

func TestCast_FullCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.profile(t, "u1", "LH1")
	c := f.complaint(t, "LH1")

	// NoVote -> Up
	res, err := f.service.Cast(ctx, sess, c.ID, models.VoteUp)
	require.NoError(t, err)
	assert.Equal(t, ActionInsert, res.Action)
	assert.Equal(t, 1, res.Upvotes)
	assert.Equal(t, 0, res.Downvotes)
	assert.Equal(t, models.VoteUp, res.UserVote)

	// Up -> Down
	res, err = f.service.Cast(ctx, sess, c.ID, models.VoteDown)
	require.NoError(t, err)
	assert.Equal(t, ActionUpdate, res.Action)
	assert.Equal(t, 0, res.Upvotes)
	assert.Equal(t, 1, res.Downvotes)
	assert.Equal(t, models.VoteDown, res.UserVote)

	// Down -> NoVote
	res, err = f.service.Cast(ctx, sess, c.ID, models.VoteDown)
	require.NoError(t, err)
	assert.Equal(t, ActionDelete, res.Action)
	assert.Equal(t, 0, res.Upvotes)
	assert.Equal(t, 0, res.Downvotes)
	assert.Equal(t, NoVote, res.UserVote)

	votes, err := f.service.UserVotes(ctx, sess)
	require.NoError(t, err)
	assert.Empty(t, votes)

	events := f.publisher.Events()
	require.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, models.EventVotesChanged, e.Type)
		assert.Equal(t, c.ID, e.ComplaintID)
		assert.Equal(t, "LH1", e.Category)
	}

	count, err := testutil.GatherAndCount(f.registry, "query_vote_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 3.0, counterSum(t, f.registry, "query_vote_transitions_total"))
}

func TestCast_TalliesAcrossUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.complaint(t, "AB1")
	alice := f.profile(t, "alice", "LH1")
	bob := f.profile(t, "bob", "MH2")
	carol := f.profile(t, "carol", "")

	_, err := f.service.Cast(ctx, alice, c.ID, models.VoteUp)
	require.NoError(t, err)
	_, err = f.service.Cast(ctx, bob, c.ID, models.VoteUp)
	require.NoError(t, err)
	res, err := f.service.Cast(ctx, carol, c.ID, models.VoteDown)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Upvotes)
	assert.Equal(t, 1, res.Downvotes)

	stored, err := f.store.GetComplaint(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Upvotes)
	assert.Equal(t, 1, stored.Downvotes)
}

func TestCast_CacheFollowsTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.profile(t, "u1", "MH3")
	c := f.complaint(t, "MH3")

	// Warm the cache with the empty state first.
	votes, err := f.service.UserVotes(ctx, sess)
	require.NoError(t, err)
	assert.Empty(t, votes)

	_, err = f.service.Cast(ctx, sess, c.ID, models.VoteUp)
	require.NoError(t, err)

	votes, err = f.service.UserVotes(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, models.VoteUp, votes[c.ID])
}

func TestCast_AccessDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.profile(t, "u1", "LH1")
	c := f.complaint(t, "MH2")

	_, err := f.service.Cast(ctx, sess, c.ID, models.VoteUp)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	v, err := f.store.GetVote(ctx, "u1", c.ID)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Empty(t, f.publisher.Events())
}

func TestCast_AdminVotesAnywhere(t *testing.T) {
	f := newFixture(t)
	c := f.complaint(t, "MH6")

	res, err := f.service.Cast(context.Background(), &models.Session{UserID: "admin", IsAdmin: true}, c.ID, models.VoteDown)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Downvotes)
}

func TestCast_FailedRecountLeavesNothingWritten(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.profile(t, "u1", "LH1")
	c := f.complaint(t, "LH1")

	// Fail the tally UPDATE that follows the vote insert.
	callbacks := f.store.DB.Callback().Update()
	require.NoError(t, callbacks.Before("gorm:update").Register("test:fail_tally_update", func(db *gorm.DB) {
		if db.Statement.Table == "complaints" {
			_ = db.AddError(errors.New("temporary storage failure"))
		}
	}))

	_, err := f.service.Cast(ctx, sess, c.ID, models.VoteUp)
	require.ErrorIs(t, err, apperrors.ErrTransient)

	v, err := f.store.GetVote(ctx, "u1", c.ID)
	require.NoError(t, err)
	assert.Nil(t, v, "vote row must be rolled back with the failed recount")

	stored, err := f.store.GetComplaint(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Upvotes)

	votes, err := f.service.UserVotes(ctx, sess)
	require.NoError(t, err)
	assert.Empty(t, votes)
	assert.Empty(t, f.publisher.Events())

	// Retrying the same click once storage recovers is a fresh upvote.
	require.NoError(t, callbacks.Remove("test:fail_tally_update"))
	res, err := f.service.Cast(ctx, sess, c.ID, models.VoteUp)
	require.NoError(t, err)
	assert.Equal(t, ActionInsert, res.Action)
	assert.Equal(t, 1, res.Upvotes)
	assert.Equal(t, models.VoteUp, res.UserVote)
}

func TestCast_UnknownComplaint(t *testing.T) {
	f := newFixture(t)
	sess := f.profile(t, "u1", "LH1")

	_, err := f.service.Cast(context.Background(), sess, "missing", models.VoteUp)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCast_InvalidDirection(t *testing.T) {
	f := newFixture(t)
	sess := f.profile(t, "u1", "LH1")
	c := f.complaint(t, "LH1")

	_, err := f.service.Cast(context.Background(), sess, c.ID, "sideways")
	assert.True(t, apperrors.IsValidation(err))
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetComplaint(ctx context.Context, id string) (*models.Complaint, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*models.Complaint)
	return c, args.Error(1)
}

func (m *MockStore) GetVote(ctx context.Context, userID, complaintID string) (*models.Vote, error) {
	args := m.Called(ctx, userID, complaintID)
	v, _ := args.Get(0).(*models.Vote)
	return v, args.Error(1)
}

func (m *MockStore) ApplyVote(ctx context.Context, op storage.VoteOp, vote *models.Vote) (*models.Complaint, error) {
	args := m.Called(ctx, op, vote)
	c, _ := args.Get(0).(*models.Complaint)
	return c, args.Error(1)
}

func (m *MockStore) GetUserVotes(ctx context.Context, userID string) (map[string]models.VoteType, error) {
	args := m.Called(ctx, userID)
	v, _ := args.Get(0).(map[string]models.VoteType)
	return v, args.Error(1)
}

func (m *MockStore) RefreshUserVotes(ctx context.Context, userID string) (map[string]models.VoteType, error) {
	args := m.Called(ctx, userID)
	v, _ := args.Get(0).(map[string]models.VoteType)
	return v, args.Error(1)
}

type MockProfiles struct {
	mock.Mock
}

func (m *MockProfiles) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).(*models.Profile)
	return p, args.Error(1)
}

func TestCast_UnauthenticatedDoesNothing(t *testing.T) {
	// Arrange
	store := new(MockStore)
	profiles := new(MockProfiles)
	publisher := &recordingPublisher{}
	svc := NewService(store, access.NewGuard(hostel.Default(), profiles), publisher, nil, nil)

	// Act
	_, err := svc.Cast(context.Background(), nil, "c1", models.VoteUp)

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	store.AssertNotCalled(t, "GetComplaint", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "ApplyVote", mock.Anything, mock.Anything, mock.Anything)
	profiles.AssertNotCalled(t, "GetProfile", mock.Anything, mock.Anything)
	assert.Empty(t, publisher.Events())

	_, err = svc.UserVotes(context.Background(), &models.Session{})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestCast_LostRaceIsConflict(t *testing.T) {
	// Arrange: the vote row disappears between the read and the update.
	ctx := context.Background()
	store := new(MockStore)
	profiles := new(MockProfiles)
	registry := prometheus.NewRegistry()
	svc := NewService(store, access.NewGuard(hostel.Default(), profiles), nil, metrics.New(registry), nil)

	profiles.On("GetProfile", ctx, "u1").Return(nil, nil)
	store.On("GetComplaint", ctx, "c1").Return(&models.Complaint{ID: "c1", Category: "AB1"}, nil)
	store.On("GetVote", ctx, "u1", "c1").Return(&models.Vote{UserID: "u1", ComplaintID: "c1", VoteType: models.VoteUp, CreatedAt: time.Now()}, nil)
	store.On("ApplyVote", ctx, storage.VoteUpdate, &models.Vote{UserID: "u1", ComplaintID: "c1", VoteType: models.VoteDown}).
		Return(nil, apperrors.ErrConflict)

	// Act
	_, err := svc.Cast(ctx, &models.Session{UserID: "u1"}, "c1", models.VoteDown)

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	store.AssertNotCalled(t, "RefreshUserVotes", mock.Anything, mock.Anything)
	store.AssertExpectations(t)

	assert.Equal(t, 1.0, counterSum(t, registry, "query_vote_conflicts_total"))
}

func counterSum(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	var sum float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}
