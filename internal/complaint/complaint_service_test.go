package complaint

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"queryforum/backend/internal/access"
	"queryforum/backend/internal/apperrors"
	"queryforum/backend/internal/config"
	"queryforum/backend/internal/hostel"
	"queryforum/backend/internal/imagestore"
	"queryforum/backend/internal/models"
	"queryforum/backend/internal/storage"
	"queryforum/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeImages struct {
	mu      sync.Mutex
	paths   []string
	deleted []string
	err     error
}

func (f *fakeImages) Put(_ context.Context, objectPath string, _ imagestore.Upload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.paths = append(f.paths, objectPath)
	return "https://images.example/" + objectPath, nil
}

func (f *fakeImages) Delete(_ context.Context, objectPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, objectPath)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.FeedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event models.FeedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []models.FeedEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.FeedEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) ComplaintPosted(view models.ComplaintView) {
	m.Called(view)
}

func (m *MockNotifier) StatusChanged(view models.ComplaintView, previous models.ComplaintStatus) {
	m.Called(view, previous)
}

type fixture struct {
	store     *storage.Service
	service   *Service
	images    *fakeImages
	publisher *recordingPublisher
	notifier  *MockNotifier
}

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, _ := storagetest.NewService(t)
	f := &fixture{
		store:     store,
		images:    &fakeImages{},
		publisher: &recordingPublisher{},
		notifier:  new(MockNotifier),
	}
	f.service = NewService(Deps{
		Storage:   store,
		Guard:     access.NewGuard(hostel.Default(), store),
		Images:    f.images,
		Publisher: f.publisher,
		Notifier:  f.notifier,
		Logger:    zap.NewNop(),
	})
	f.service.now = func() time.Time { return fixedNow }
	return f
}

// register creates a profile through the service; reg decides the hostel.
func (f *fixture) register(t *testing.T, userID, name, reg string) *models.Session {
	t.Helper()
	sess := &models.Session{UserID: userID}
	_, err := f.service.RegisterProfile(context.Background(), sess, name, reg)
	require.NoError(t, err)
	return sess
}

func validComplaint(category string) NewComplaint {
	return NewComplaint{
		Category:    category,
		Title:       "Leaking tap in washroom",
		Description: "The tap on the second floor has been leaking since Monday.",
	}
}

var admin = &models.Session{UserID: "admin-1", IsAdmin: true}

func TestRegisterProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("known registration gets its hostel", func(t *testing.T) {
		p, err := f.service.RegisterProfile(ctx, &models.Session{UserID: "u1"}, "  Asha  ", " 23bce8594 ")
		require.NoError(t, err)
		assert.Equal(t, "Asha", p.Name)
		assert.Equal(t, "23BCE8594", p.RegistrationNumber)
		assert.Equal(t, "LH1", p.HostelCategory())
	})

	t.Run("unknown registration has no hostel", func(t *testing.T) {
		p, err := f.service.RegisterProfile(ctx, &models.Session{UserID: "u2"}, "Ravi", "99XYZ0001")
		require.NoError(t, err)
		assert.Nil(t, p.Hostel)
	})

	t.Run("duplicate registration conflicts", func(t *testing.T) {
		_, err := f.service.RegisterProfile(ctx, &models.Session{UserID: "u3"}, "Copy", "23BCE8594")
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := f.service.RegisterProfile(ctx, &models.Session{UserID: "u4"}, "   ", "1")
		assert.True(t, apperrors.IsValidation(err))
		_, err = f.service.RegisterProfile(ctx, &models.Session{UserID: "u4"}, strings.Repeat("n", config.NameMaxLength+1), "1")
		assert.True(t, apperrors.IsValidation(err))
		_, err = f.service.RegisterProfile(ctx, &models.Session{UserID: "u4"}, "Name", " ")
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("requires a session", func(t *testing.T) {
		_, err := f.service.RegisterProfile(ctx, nil, "Name", "1")
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("get own profile", func(t *testing.T) {
		p, err := f.service.GetProfile(ctx, &models.Session{UserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, "Asha", p.Name)

		_, err = f.service.GetProfile(ctx, &models.Session{UserID: "nobody"})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestAccessibleCategories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := hostel.Default()

	sess := f.register(t, "u1", "Asha", "23BCE8594")
	got, err := f.service.AccessibleCategories(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, append([]string{"LH1"}, dir.CommonSections()...), got)

	got, err = f.service.AccessibleCategories(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, dir.All(), got)

	_, err = f.service.AccessibleCategories(ctx, nil)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestPostComplaint(t *testing.T) {
	ctx := context.Background()

	t.Run("stored open with zero tallies", func(t *testing.T) {
		f := newFixture(t)
		sess := f.register(t, "u1", "Asha", "23BCE8594")
		f.notifier.On("ComplaintPosted", mock.AnythingOfType("models.ComplaintView")).Once()

		view, err := f.service.PostComplaint(ctx, sess, validComplaint("LH1"))
		require.NoError(t, err)

		assert.Equal(t, models.StatusOpen, view.Status)
		assert.Zero(t, view.Upvotes)
		assert.Zero(t, view.Downvotes)
		require.NotNil(t, view.Author)
		assert.Equal(t, "Asha", view.Author.Name)
		assert.Equal(t, []models.FeedEventType{models.EventComplaintCreated}, f.publisher.types())
		f.notifier.AssertExpectations(t)
	})

	t.Run("image uploaded under user and timestamp", func(t *testing.T) {
		f := newFixture(t)
		sess := f.register(t, "u1", "Asha", "23BCE8594")
		f.notifier.On("ComplaintPosted", mock.Anything)

		in := validComplaint("AB1")
		in.Image = &imagestore.Upload{Filename: "leak.JPG", ContentType: "image/jpeg", Size: 2048, Body: strings.NewReader("jpeg")}
		view, err := f.service.PostComplaint(ctx, sess, in)
		require.NoError(t, err)

		wantPath := "u1/" + "1777896000000" + ".jpg"
		assert.Equal(t, []string{wantPath}, f.images.paths)
		require.NotNil(t, view.ImageURL)
		assert.Equal(t, "https://images.example/"+wantPath, *view.ImageURL)
	})

	t.Run("oversized image rejected before upload", func(t *testing.T) {
		f := newFixture(t)
		sess := f.register(t, "u1", "Asha", "23BCE8594")

		in := validComplaint("AB1")
		in.Image = &imagestore.Upload{Filename: "big.png", ContentType: "image/png", Size: config.MaxImageBytes + 1, Body: strings.NewReader("")}
		_, err := f.service.PostComplaint(ctx, sess, in)
		assert.True(t, apperrors.IsValidation(err))
		assert.Empty(t, f.images.paths)
	})

	t.Run("upload failure stores nothing", func(t *testing.T) {
		f := newFixture(t)
		sess := f.register(t, "u1", "Asha", "23BCE8594")
		f.images.err = apperrors.Transient("upload image", errors.New("bucket unavailable"))

		in := validComplaint("AB1")
		in.Image = &imagestore.Upload{Filename: "a.png", ContentType: "image/png", Size: 10, Body: strings.NewReader("x")}
		_, err := f.service.PostComplaint(ctx, sess, in)
		assert.ErrorIs(t, err, apperrors.ErrTransient)

		list, err := f.store.ListComplaints(ctx, storage.ComplaintFilter{Category: "AB1"})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("validation errors", func(t *testing.T) {
		f := newFixture(t)
		sess := f.register(t, "u1", "Asha", "23BCE8594")

		cases := map[string]NewComplaint{
			"short title":       {Category: "AB1", Title: " abc ", Description: "long enough description"},
			"long title":        {Category: "AB1", Title: strings.Repeat("t", config.TitleMaxLength+1), Description: "long enough description"},
			"short description": {Category: "AB1", Title: "Valid title", Description: "too short"},
			"long description":  {Category: "AB1", Title: "Valid title", Description: strings.Repeat("d", config.DescriptionMaxLength+1)},
			"missing category":  {Title: "Valid title", Description: "long enough description"},
			"unknown category":  {Category: "Library", Title: "Valid title", Description: "long enough description"},
		}
		for name, in := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := f.service.PostComplaint(ctx, sess, in)
				assert.True(t, apperrors.IsValidation(err), "got %v", err)
			})
		}
		assert.Empty(t, f.publisher.types())
	})

	t.Run("other hostel forbidden", func(t *testing.T) {
		f := newFixture(t)
		sess := f.register(t, "u1", "Asha", "23BCE8594")

		_, err := f.service.PostComplaint(ctx, sess, validComplaint("MH2"))
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("profile required for students", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.PostComplaint(ctx, &models.Session{UserID: "ghost"}, validComplaint("AB1"))
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("admin posts anywhere", func(t *testing.T) {
		f := newFixture(t)
		f.notifier.On("ComplaintPosted", mock.Anything)
		view, err := f.service.PostComplaint(ctx, admin, validComplaint("MH6"))
		require.NoError(t, err)
		assert.Nil(t, view.Author)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.PostComplaint(ctx, nil, validComplaint("AB1"))
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})
}

func TestAnonymousComplaintNeverExposesAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := f.register(t, "u1", "Secret Name", "23BCE8594")
	reader := f.register(t, "u2", "Reader", "23BCE8588")
	f.notifier.On("ComplaintPosted", mock.Anything)
	f.notifier.On("StatusChanged", mock.Anything, mock.Anything)

	in := validComplaint("AB2")
	in.IsAnonymous = true
	posted, err := f.service.PostComplaint(ctx, author, in)
	require.NoError(t, err)

	list, err := f.service.ListComplaints(ctx, reader, "AB2", storage.SortRecent)
	require.NoError(t, err)
	detail, err := f.service.GetComplaint(ctx, reader, posted.ID)
	require.NoError(t, err)
	updated, err := f.service.SetStatus(ctx, admin, posted.ID, models.StatusInProgress)
	require.NoError(t, err)

	for _, view := range []models.ComplaintView{*posted, list[0], detail.Complaint, *updated} {
		assert.Nil(t, view.Author)
		raw, err := json.Marshal(view)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "Secret Name")
		assert.NotContains(t, string(raw), "23BCE8594")
		assert.NotContains(t, string(raw), "u1")
	}
}

func TestListComplaints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.On("ComplaintPosted", mock.Anything)
	sess := f.register(t, "u1", "Asha", "23BCE8594")

	first, err := f.service.PostComplaint(ctx, sess, validComplaint("LH1"))
	require.NoError(t, err)
	f.service.now = func() time.Time { return fixedNow.Add(time.Minute) }
	second, err := f.service.PostComplaint(ctx, sess, validComplaint("LH1"))
	require.NoError(t, err)

	require.NoError(t, f.store.InsertVote(ctx, &models.Vote{UserID: "u1", ComplaintID: first.ID, VoteType: models.VoteUp}))
	_, err = f.store.RecountVotes(ctx, first.ID)
	require.NoError(t, err)
	_, err = f.store.RefreshUserVotes(ctx, "u1")
	require.NoError(t, err)

	t.Run("recent", func(t *testing.T) {
		list, err := f.service.ListComplaints(ctx, sess, "LH1", "")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, second.ID, list[0].ID)
		assert.Equal(t, models.VoteType(""), list[0].UserVote)
		assert.Equal(t, models.VoteUp, list[1].UserVote)
	})

	t.Run("popular", func(t *testing.T) {
		list, err := f.service.ListComplaints(ctx, sess, "LH1", storage.SortPopular)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, first.ID, list[0].ID)
		assert.Equal(t, 1, list[0].Upvotes)
	})

	t.Run("forbidden category", func(t *testing.T) {
		_, err := f.service.ListComplaints(ctx, sess, "MH2", storage.SortRecent)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("bad input", func(t *testing.T) {
		_, err := f.service.ListComplaints(ctx, sess, "LH1", "oldest")
		assert.True(t, apperrors.IsValidation(err))
		_, err = f.service.ListComplaints(ctx, sess, "Nowhere", storage.SortRecent)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("another hostel cannot read by id", func(t *testing.T) {
		other := f.register(t, "u9", "Vikram", "23BCE7808")
		_, err := f.service.GetComplaint(ctx, other, first.ID)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
		_, err = f.service.ListReplies(ctx, other, first.ID)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})
}

func TestSetStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.On("ComplaintPosted", mock.Anything)
	sess := f.register(t, "u1", "Asha", "23BCE8594")
	posted, err := f.service.PostComplaint(ctx, sess, validComplaint("LH1"))
	require.NoError(t, err)

	t.Run("open to resolved directly", func(t *testing.T) {
		f.notifier.On("StatusChanged", mock.AnythingOfType("models.ComplaintView"), models.StatusOpen).Once()

		view, err := f.service.SetStatus(ctx, admin, posted.ID, models.StatusResolved)
		require.NoError(t, err)
		assert.Equal(t, models.StatusResolved, view.Status)

		stored, err := f.store.GetComplaint(ctx, posted.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusResolved, stored.Status)
		f.notifier.AssertExpectations(t)
	})

	t.Run("back to open is allowed", func(t *testing.T) {
		f.notifier.On("StatusChanged", mock.Anything, models.StatusResolved).Once()
		_, err := f.service.SetStatus(ctx, admin, posted.ID, models.StatusOpen)
		require.NoError(t, err)
	})

	t.Run("same status does not notify", func(t *testing.T) {
		calls := len(f.notifier.Calls)
		_, err := f.service.SetStatus(ctx, admin, posted.ID, models.StatusOpen)
		require.NoError(t, err)
		assert.Len(t, f.notifier.Calls, calls)
	})

	t.Run("students cannot change status", func(t *testing.T) {
		_, err := f.service.SetStatus(ctx, sess, posted.ID, models.StatusResolved)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
		_, err = f.service.SetStatus(ctx, nil, posted.ID, models.StatusResolved)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("bad status and missing complaint", func(t *testing.T) {
		_, err := f.service.SetStatus(ctx, admin, posted.ID, "closed")
		assert.True(t, apperrors.IsValidation(err))
		_, err = f.service.SetStatus(ctx, admin, "missing", models.StatusResolved)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestPostComplaint_FailedInsertDeletesImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.register(t, "u1", "Asha", "23BCE8594")

	require.NoError(t, f.store.DB.Callback().Create().Before("gorm:create").Register("test:fail_complaint_insert", func(db *gorm.DB) {
		if db.Statement.Table == "complaints" {
			_ = db.AddError(errors.New("temporary storage failure"))
		}
	}))
	t.Cleanup(func() { _ = f.store.DB.Callback().Create().Remove("test:fail_complaint_insert") })

	in := validComplaint("LH1")
	in.Image = &imagestore.Upload{Filename: "tap.JPG", ContentType: "image/jpeg", Size: 4, Body: strings.NewReader("jpeg")}
	_, err := f.service.PostComplaint(ctx, sess, in)
	require.ErrorIs(t, err, apperrors.ErrTransient)

	assert.Equal(t, []string{"u1/1777896000000.jpg"}, f.images.paths)
	assert.Equal(t, f.images.paths, f.images.deleted)
	assert.Empty(t, f.publisher.types())
}

func TestSetStatus_CommittedDespiteFailedViewRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.On("ComplaintPosted", mock.Anything)
	sess := f.register(t, "u1", "Asha", "23BCE8594")
	posted, err := f.service.PostComplaint(ctx, sess, validComplaint("LH1"))
	require.NoError(t, err)

	// Profile reads fail from now on; the status update itself succeeds.
	require.NoError(t, f.store.DB.Callback().Query().Before("gorm:query").Register("test:fail_profiles", func(db *gorm.DB) {
		if db.Statement.Table == "profiles" {
			_ = db.AddError(errors.New("temporary storage failure"))
		}
	}))
	t.Cleanup(func() { _ = f.store.DB.Callback().Query().Remove("test:fail_profiles") })

	f.notifier.On("StatusChanged", mock.MatchedBy(func(v models.ComplaintView) bool {
		return v.ID == posted.ID && v.Status == models.StatusResolved
	}), models.StatusOpen).Once()

	view, err := f.service.SetStatus(ctx, admin, posted.ID, models.StatusResolved)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, view.Status)
	assert.Nil(t, view.Author)

	stored, err := f.store.GetComplaint(ctx, posted.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, stored.Status)
	assert.Contains(t, f.publisher.types(), models.EventStatusChanged)
	f.notifier.AssertExpectations(t)
}

func TestReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.On("ComplaintPosted", mock.Anything)
	sess := f.register(t, "u1", "Asha", "23BCE8594")
	posted, err := f.service.PostComplaint(ctx, sess, validComplaint("LH1"))
	require.NoError(t, err)

	_, err = f.service.PostReply(ctx, admin, posted.ID, "  Plumber assigned.  ")
	require.NoError(t, err)
	f.service.now = func() time.Time { return fixedNow.Add(time.Hour) }
	latest, err := f.service.PostReply(ctx, admin, posted.ID, "Fixed.")
	require.NoError(t, err)

	detail, err := f.service.GetComplaint(ctx, sess, posted.ID)
	require.NoError(t, err)
	require.Len(t, detail.Replies, 2)
	assert.Equal(t, latest.ID, detail.Replies[0].ID)
	assert.Equal(t, "Plumber assigned.", detail.Replies[1].ReplyText)

	replies, err := f.service.ListReplies(ctx, sess, posted.ID)
	require.NoError(t, err)
	assert.Len(t, replies, 2)

	_, err = f.service.PostReply(ctx, admin, posted.ID, "   ")
	assert.True(t, apperrors.IsValidation(err))
	_, err = f.service.PostReply(ctx, sess, posted.ID, "I am not an admin")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = f.service.PostReply(ctx, admin, "missing", "hello")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.Contains(t, f.publisher.types(), models.EventReplyPosted)
}

func TestStorageFailureIsTransient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sqlDB, err := f.store.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = f.service.SetStatus(ctx, admin, "any", models.StatusResolved)
	assert.ErrorIs(t, err, apperrors.ErrTransient)
	_, err = f.service.PostReply(ctx, admin, "any", "hello")
	assert.ErrorIs(t, err, apperrors.ErrTransient)
}
