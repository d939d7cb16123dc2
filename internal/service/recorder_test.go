package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoPolymarket/reqlog/internal/config"
	"github.com/GoPolymarket/reqlog/internal/model"
	"github.com/GoPolymarket/reqlog/internal/pkg/apperrors"
	"github.com/GoPolymarket/reqlog/internal/repository"
)

type capturePublisher struct {
	mu      sync.Mutex
	records []*model.RequestRecord
}

func (p *capturePublisher) Publish(rec *model.RequestRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
}

func newTestRecorder(t *testing.T, mutate func(*config.RequestLogConfig)) (*RecorderService, *repository.MemoryRequestStore) {
	t.Helper()
	cfg := config.DefaultRequestLog()
	if mutate != nil {
		mutate(&cfg)
	}
	store := repository.NewMemoryRequestStore()
	return NewRecorderService(cfg, store, NewMemoryRecentFeed(10)), store
}

func TestDraftFinalizeRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestRecorder(t, nil)

	draft, err := svc.CreateDraft(ctx, DraftInput{
		IP:     "10.0.0.1",
		Path:   "/api/widgets",
		Method: "POST",
		Body:   []byte(`{"a":1}`),
	})
	require.NoError(t, err)
	assert.False(t, draft.Finished)
	assert.Zero(t, draft.StatusCode)

	_, err = svc.Finalize(ctx, draft.ID, ResponseInfo{
		StatusCode:   201,
		ResponseTime: 15 * time.Millisecond,
		Method:       "POST",
		IP:           "10.0.0.1",
		UserAgent:    "curl/8.0",
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", got.IP)
	assert.Equal(t, "/api/widgets", got.Path)
	assert.Equal(t, "POST", got.Method)
	assert.Equal(t, `{"a":1}`, got.Body)
	assert.Equal(t, 201, got.StatusCode)
	assert.Equal(t, 15*time.Millisecond, got.ResponseTime)
	assert.True(t, got.Finished)
}

func TestCreateDraftTruncatesPath(t *testing.T) {
	svc, _ := newTestRecorder(t, func(c *config.RequestLogConfig) { c.MaxPathLength = 10 })

	draft, err := svc.CreateDraft(context.Background(), DraftInput{
		IP:     "10.0.0.1",
		Path:   "/" + strings.Repeat("é", 40),
		Method: "GET",
	})
	require.NoError(t, err)
	assert.Equal(t, 10, len([]rune(draft.Path)))
	assert.Equal(t, "/"+strings.Repeat("é", 9), draft.Path)
}

func TestCreateDraftDefaultMaxPathLength(t *testing.T) {
	svc, _ := newTestRecorder(t, nil)
	draft, err := svc.CreateDraft(context.Background(), DraftInput{
		Path:   "/" + strings.Repeat("a", 400),
		Method: "GET",
	})
	require.NoError(t, err)
	assert.Len(t, draft.Path, 255)
}

func TestCreateDraftRejectsInvalidUTF8(t *testing.T) {
	svc, store := newTestRecorder(t, nil)

	_, err := svc.CreateDraft(context.Background(), DraftInput{
		Path:   "/upload",
		Method: "POST",
		Body:   []byte{0xff, 0xfe, 0xfd},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidEncoding))
	assert.Equal(t, 0, store.Len())
}

func TestFinalizeValidationFailureKeepsDraft(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestRecorder(t, nil)
	feed := svc.feed

	draft, err := svc.CreateDraft(ctx, DraftInput{IP: "10.0.0.1", Path: "/x", Method: "GET"})
	require.NoError(t, err)

	_, err = svc.Finalize(ctx, draft.ID, ResponseInfo{StatusCode: 200, Referer: "not a url"})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrValidation))

	stored, err := svc.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.False(t, stored.Finished)
	assert.Zero(t, stored.StatusCode)
	assert.Empty(t, stored.Referer)

	recent, err := feed.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestFinalizeRejectsOutOfRangeStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestRecorder(t, nil)
	draft, err := svc.CreateDraft(ctx, DraftInput{Path: "/x", Method: "GET"})
	require.NoError(t, err)

	_, err = svc.Finalize(ctx, draft.ID, ResponseInfo{StatusCode: 700})
	assert.True(t, apperrors.IsType(err, apperrors.ErrValidation))
}

func TestFinalizeUnknownAndTwice(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestRecorder(t, nil)

	_, err := svc.Finalize(ctx, "missing", ResponseInfo{StatusCode: 200})
	assert.True(t, apperrors.IsType(err, apperrors.ErrNotFound))

	_, err = svc.Finalize(ctx, "", ResponseInfo{StatusCode: 200})
	assert.True(t, apperrors.IsType(err, apperrors.ErrNotFound))

	draft, err := svc.CreateDraft(ctx, DraftInput{Path: "/x", Method: "GET"})
	require.NoError(t, err)
	_, err = svc.Finalize(ctx, draft.ID, ResponseInfo{StatusCode: 200})
	require.NoError(t, err)
	_, err = svc.Finalize(ctx, draft.ID, ResponseInfo{StatusCode: 500})
	assert.True(t, apperrors.IsType(err, apperrors.ErrNotFound))
}

func TestFinalizeEnrichesFromResponse(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestRecorder(t, nil)
	pub := &capturePublisher{}
	svc.SetPublisher(pub)

	draft, err := svc.CreateDraft(ctx, DraftInput{IP: "10.0.0.1", Path: "/search", Method: "get"})
	require.NoError(t, err)
	assert.Equal(t, "GET", draft.Method)

	rec, err := svc.Finalize(ctx, draft.ID, ResponseInfo{
		StatusCode: 404,
		Query:      "q=widgets",
		Referer:    "https://example.com/start",
		UserAgent:  strings.Repeat("u", 300),
		Language:   "en-US",
		IsSecure:   true,
		IsAjax:     true,
		Username:   "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "q=widgets", rec.Query)
	assert.Equal(t, "https://example.com/start", rec.Referer)
	assert.Len(t, rec.UserAgent, 255)
	assert.Equal(t, "en-US", rec.Language)
	assert.True(t, rec.IsSecure)
	assert.True(t, rec.IsAjax)
	require.NotNil(t, rec.Username)
	assert.Equal(t, "alice", *rec.Username)

	recent, err := svc.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, draft.ID, recent[0].ID)

	require.Len(t, pub.records, 1)
	assert.Equal(t, 404, pub.records[0].StatusCode)
}

func TestIPAndUserPolicies(t *testing.T) {
	ctx := context.Background()

	dummy, _ := newTestRecorder(t, func(c *config.RequestLogConfig) {
		c.LogIP = false
		c.LogUser = false
	})
	draft, err := dummy.CreateDraft(ctx, DraftInput{IP: "203.0.113.9", Path: "/", Method: "GET"})
	require.NoError(t, err)
	assert.Equal(t, "1.1.1.1", draft.IP)
	rec, err := dummy.Finalize(ctx, draft.ID, ResponseInfo{StatusCode: 200, IP: "203.0.113.9", Username: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "1.1.1.1", rec.IP)
	assert.Nil(t, rec.Username)

	anon, _ := newTestRecorder(t, func(c *config.RequestLogConfig) { c.AnonymousIP = true })
	draft, err = anon.CreateDraft(ctx, DraftInput{IP: "203.0.113.9", Path: "/", Method: "GET"})
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.0", draft.IP)
}

func TestAnonymizeIP(t *testing.T) {
	assert.Equal(t, "192.168.1.0", AnonymizeIP("192.168.1.77"))
	assert.Equal(t, "192.168.1.0", AnonymizeIP("::ffff:192.168.1.77"))
	assert.Equal(t, "2001:db8:abcd::", AnonymizeIP("2001:db8:abcd:12::1"))
	assert.Equal(t, "garbage", AnonymizeIP("garbage"))
}

func TestRecordedIP(t *testing.T) {
	cfg := config.DefaultRequestLog()
	assert.Equal(t, "203.0.113.9", RecordedIP(cfg, "203.0.113.9"))

	cfg.AnonymousIP = true
	assert.Equal(t, "203.0.113.0", RecordedIP(cfg, "203.0.113.9"))

	cfg.LogIP = false
	assert.Equal(t, cfg.IPDummy, RecordedIP(cfg, "203.0.113.9"))
}

func TestMostRecentUnfinishedAndDiscard(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestRecorder(t, nil)

	none, err := svc.MostRecentUnfinished(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	first, err := svc.CreateDraft(ctx, DraftInput{Path: "/first", Method: "GET"})
	require.NoError(t, err)
	second, err := svc.CreateDraft(ctx, DraftInput{Path: "/second", Method: "GET"})
	require.NoError(t, err)

	latest, err := svc.MostRecentUnfinished(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)

	require.NoError(t, svc.Discard(ctx, second.ID))
	latest, err = svc.MostRecentUnfinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)
	assert.Equal(t, 1, store.Len())
}

func TestListAndPurge(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestRecorder(t, nil)

	old := &model.RequestRecord{
		ID:        "old",
		Method:    "GET",
		Path:      "/old",
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, store.Create(ctx, old))
	_, err := svc.CreateDraft(ctx, DraftInput{Path: "/api/new", Method: "POST"})
	require.NoError(t, err)

	all, err := svc.List(ctx, model.RequestQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "/api/new", all[0].Path)

	posts, err := svc.List(ctx, model.RequestQuery{Method: "POST", PathPrefix: "/api"})
	require.NoError(t, err)
	assert.Len(t, posts, 1)

	removed, err := svc.Purge(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Equal(t, 1, store.Len())

	worker := NewRetentionWorker(svc, 0, time.Minute)
	removed, err = worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRetentionWorkerStartStop(t *testing.T) {
	svc, _ := newTestRecorder(t, nil)
	worker := NewRetentionWorker(svc, time.Hour, 10*time.Millisecond)
	worker.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	worker.Stop()
	worker.Stop()
}

func TestMemoryRecentFeedRing(t *testing.T) {
	ctx := context.Background()
	feed := NewMemoryRecentFeed(3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, feed.Push(ctx, &model.RequestRecord{ID: id}))
	}

	got, err := feed.Recent(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, rec := range got {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"e", "d", "c"}, ids)

	got, err = feed.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFinalizeCountsDailyStats(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestRecorder(t, nil)
	stats := NewMemoryDailyStats()
	svc.SetStats(stats)

	for _, status := range []int{200, 204, 404, 500} {
		draft, err := svc.CreateDraft(ctx, DraftInput{IP: "10.0.0.1", Path: "/a", Method: "GET"})
		require.NoError(t, err)
		_, err = svc.Finalize(ctx, draft.ID, ResponseInfo{StatusCode: status})
		require.NoError(t, err)
	}

	day := model.StatsDay(time.Now())
	got, err := svc.DailyStats(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, day, got.Date)
	assert.Equal(t, int64(4), got.Counts[model.StatsTotal])
	assert.Equal(t, int64(2), got.Counts["2xx"])
	assert.Equal(t, int64(1), got.Counts["4xx"])
	assert.Equal(t, int64(1), got.Counts["5xx"])

	_, err = svc.DailyStats(ctx, "yesterday")
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidRequest))
}

func TestRedactsDraftBody(t *testing.T) {
	svc, _ := newTestRecorder(t, nil)
	draft, err := svc.CreateDraft(context.Background(), DraftInput{
		IP:     "10.0.0.1",
		Path:   "/login",
		Method: "POST",
		Body:   []byte(`{"user":"bob","password":"hunter2"}`),
	})
	require.NoError(t, err)
	assert.NotContains(t, draft.Body, "hunter2")
	assert.Contains(t, draft.Body, `"password":"***"`)
}
