package service

import (
	"context"
	"net/netip"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/GoPolymarket/reqlog/internal/config"
	"github.com/GoPolymarket/reqlog/internal/model"
	"github.com/GoPolymarket/reqlog/internal/pkg/apperrors"
	"github.com/GoPolymarket/reqlog/internal/pkg/logger"
	"github.com/GoPolymarket/reqlog/internal/pkg/metrics"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// maxHeaderField caps referer, user agent and language before validation.
const maxHeaderField = 255

type RequestStore interface {
	Create(ctx context.Context, rec *model.RequestRecord) error
	Save(ctx context.Context, rec *model.RequestRecord) error
	Get(ctx context.Context, id string) (*model.RequestRecord, error)
	Delete(ctx context.Context, id string) error
	LatestUnfinished(ctx context.Context) (*model.RequestRecord, error)
	List(ctx context.Context, q model.RequestQuery) ([]*model.RequestRecord, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

type RecentFeed interface {
	Push(ctx context.Context, rec *model.RequestRecord) error
	Recent(ctx context.Context, limit int) ([]*model.RequestRecord, error)
}

// Publisher receives every finalized record (live tail).
type Publisher interface {
	Publish(rec *model.RequestRecord)
}

// DraftInput is what is known about a request before it is handled.
type DraftInput struct {
	IP     string
	Path   string
	Method string
	Body   []byte
}

// ResponseInfo is what the response phase adds to a draft.
type ResponseInfo struct {
	StatusCode   int
	ResponseTime time.Duration
	Method       string
	Query        string
	Referer      string
	UserAgent    string
	Language     string
	IP           string
	IsSecure     bool
	IsAjax       bool
	Username     string
}

type RecorderService struct {
	store     RequestStore
	feed      RecentFeed
	publisher Publisher
	stats     StatsStore
	redactor  *redactor
	cfg       config.RequestLogConfig
	validate  *validator.Validate
	now       func() time.Time
}

func NewRecorderService(cfg config.RequestLogConfig, store RequestStore, feed RecentFeed) *RecorderService {
	if cfg.MaxPathLength <= 0 {
		cfg.MaxPathLength = 255
	}
	return &RecorderService{
		store:    store,
		feed:     feed,
		redactor: newRedactor(cfg.RedactKeys),
		cfg:      cfg,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (s *RecorderService) SetPublisher(p Publisher) {
	s.publisher = p
}

func (s *RecorderService) SetStats(st StatsStore) {
	s.stats = st
}

// CreateDraft persists an inbound-only record. The body must be UTF-8 text;
// configured sensitive JSON keys are masked before storage.
func (s *RecorderService) CreateDraft(ctx context.Context, in DraftInput) (*model.RequestRecord, error) {
	if !utf8.Valid(in.Body) {
		return nil, apperrors.New(apperrors.ErrInvalidEncoding, "request body is not valid UTF-8", nil)
	}

	rec := &model.RequestRecord{
		ID:        uuid.NewString(),
		IP:        s.recordedIP(in.IP),
		Path:      truncate(in.Path, s.cfg.MaxPathLength),
		Body:      string(s.redactor.Body(in.Body)),
		Method:    strings.ToUpper(in.Method),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		metrics.StoreErrors.WithLabelValues("create").Inc()
		return nil, apperrors.New(apperrors.ErrStore, "failed to persist draft", err)
	}
	metrics.RecordsTotal.WithLabelValues(metrics.OutcomeDrafted).Inc()
	return rec, nil
}

// Finalize enriches the draft with response data, validates it and saves it.
// A validation failure leaves the stored draft untouched.
func (s *RecorderService) Finalize(ctx context.Context, id string, info ResponseInfo) (*model.RequestRecord, error) {
	rec, err := s.FindDraft(ctx, id)
	if err != nil {
		return nil, err
	}

	rec.StatusCode = info.StatusCode
	rec.ResponseTime = info.ResponseTime
	if info.Method != "" {
		rec.Method = strings.ToUpper(info.Method)
	}
	rec.Query = info.Query
	rec.Referer = truncate(info.Referer, maxHeaderField)
	rec.UserAgent = truncate(info.UserAgent, maxHeaderField)
	rec.Language = truncate(info.Language, maxHeaderField)
	rec.IsSecure = info.IsSecure
	rec.IsAjax = info.IsAjax
	if info.IP != "" {
		rec.IP = s.recordedIP(info.IP)
	}
	rec.Username = nil
	if s.cfg.LogUser && info.Username != "" {
		username := info.Username
		rec.Username = &username
	}
	rec.Finished = true

	if err := s.validate.Struct(rec); err != nil {
		metrics.RecordsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, apperrors.NewValidation("request record failed validation", err)
	}

	if err := s.store.Save(ctx, rec); err != nil {
		metrics.StoreErrors.WithLabelValues("save").Inc()
		return nil, apperrors.New(apperrors.ErrStore, "failed to save request record", err)
	}
	metrics.RecordsTotal.WithLabelValues(metrics.OutcomeSaved).Inc()

	if s.feed != nil {
		if err := s.feed.Push(ctx, rec); err != nil {
			metrics.StoreErrors.WithLabelValues("feed").Inc()
			logger.Warn("failed to push request record to feed", "error", err, "id", rec.ID)
		}
	}
	if s.stats != nil {
		if err := s.stats.Incr(ctx, rec); err != nil {
			metrics.StoreErrors.WithLabelValues("stats").Inc()
			logger.Warn("failed to count request record", "error", err, "id", rec.ID)
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(rec.Clone())
	}
	return rec, nil
}

// FindDraft returns the unfinished record with the given id.
func (s *RecorderService) FindDraft(ctx context.Context, id string) (*model.RequestRecord, error) {
	if id == "" {
		return nil, apperrors.NewNotFound("draft not found")
	}
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Finished {
		return nil, apperrors.NewNotFound("draft already finalized")
	}
	return rec, nil
}

// MostRecentUnfinished returns the newest draft, or nil when there is none.
func (s *RecorderService) MostRecentUnfinished(ctx context.Context) (*model.RequestRecord, error) {
	rec, err := s.store.LatestUnfinished(ctx)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("latest").Inc()
		return nil, apperrors.New(apperrors.ErrStore, "failed to load latest draft", err)
	}
	return rec, nil
}

// Discard deletes a draft without saving it.
func (s *RecorderService) Discard(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		metrics.StoreErrors.WithLabelValues("delete").Inc()
		return apperrors.New(apperrors.ErrStore, "failed to discard draft", err)
	}
	metrics.RecordsTotal.WithLabelValues(metrics.OutcomeDiscarded).Inc()
	return nil
}

func (s *RecorderService) Get(ctx context.Context, id string) (*model.RequestRecord, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrNotFound) {
			return nil, err
		}
		metrics.StoreErrors.WithLabelValues("get").Inc()
		return nil, apperrors.New(apperrors.ErrStore, "failed to load request record", err)
	}
	return rec, nil
}

func (s *RecorderService) List(ctx context.Context, q model.RequestQuery) ([]*model.RequestRecord, error) {
	records, err := s.store.List(ctx, q)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("list").Inc()
		return nil, apperrors.New(apperrors.ErrStore, "failed to list request records", err)
	}
	return records, nil
}

// Recent reads the feed, falling back to the store when the feed fails.
func (s *RecorderService) Recent(ctx context.Context, limit int) ([]*model.RequestRecord, error) {
	if s.feed != nil {
		records, err := s.feed.Recent(ctx, limit)
		if err == nil {
			return records, nil
		}
		logger.Warn("failed to read request feed, falling back to store", "error", err)
	}
	finished := true
	return s.List(ctx, model.RequestQuery{Limit: limit, Finished: &finished})
}

// DailyStats returns counters for day (YYYY-MM-DD, UTC). Without a stats
// store every count is zero.
func (s *RecorderService) DailyStats(ctx context.Context, day string) (*model.DailyStats, error) {
	if _, err := time.Parse(time.DateOnly, day); err != nil {
		return nil, apperrors.NewInvalidRequest("day must be YYYY-MM-DD")
	}
	if s.stats == nil {
		return &model.DailyStats{Date: day, Counts: map[string]int64{}}, nil
	}
	st, err := s.stats.Daily(ctx, day)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("stats").Inc()
		return nil, apperrors.New(apperrors.ErrStore, "failed to load daily stats", err)
	}
	return st, nil
}

// Purge deletes records created more than olderThan ago.
func (s *RecorderService) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	removed, err := s.store.Cleanup(ctx, olderThan)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("cleanup").Inc()
		return 0, apperrors.New(apperrors.ErrStore, "failed to purge request records", err)
	}
	metrics.RecordsTotal.WithLabelValues(metrics.OutcomePurged).Add(float64(removed))
	return removed, nil
}

func (s *RecorderService) recordedIP(ip string) string {
	return RecordedIP(s.cfg, ip)
}

// RecordedIP applies the log_ip and anonymous_ip policy to a client address.
// Anything that writes a client IP somewhere durable, logs included, goes
// through it.
func RecordedIP(cfg config.RequestLogConfig, ip string) string {
	if !cfg.LogIP {
		return cfg.IPDummy
	}
	if cfg.AnonymousIP {
		return AnonymizeIP(ip)
	}
	return ip
}

// AnonymizeIP zeroes the host part of an address: /24 for IPv4, /48 for IPv6.
// Unparseable input is returned unchanged.
func AnonymizeIP(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ip
	}
	addr = addr.Unmap()
	bits := 24
	if addr.Is6() {
		bits = 48
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return ip
	}
	return prefix.Addr().String()
}

func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
