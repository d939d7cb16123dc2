package repository

import (
	"context"
	"errors"
	"time"

	"github.com/GoPolymarket/reqlog/internal/model"
	"github.com/GoPolymarket/reqlog/internal/pkg/apperrors"
	"gorm.io/gorm"
)

var ErrRequestNotFound = apperrors.NewNotFound("request record not found")

type PostgresRequestStore struct {
	db *gorm.DB
}

func NewPostgresRequestStore(db *gorm.DB) *PostgresRequestStore {
	return &PostgresRequestStore{db: db}
}

func (r *PostgresRequestStore) Create(ctx context.Context, rec *model.RequestRecord) error {
	if rec == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

// Save writes every column, replacing the stored draft.
func (r *PostgresRequestStore) Save(ctx context.Context, rec *model.RequestRecord) error {
	if rec == nil {
		return nil
	}
	return r.db.WithContext(ctx).Save(rec).Error
}

func (r *PostgresRequestStore) Get(ctx context.Context, id string) (*model.RequestRecord, error) {
	var rec model.RequestRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *PostgresRequestStore) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&model.RequestRecord{}, "id = ?", id).Error
}

// LatestUnfinished returns nil when no draft exists.
func (r *PostgresRequestStore) LatestUnfinished(ctx context.Context) (*model.RequestRecord, error) {
	var recs []*model.RequestRecord
	err := r.db.WithContext(ctx).
		Where("finished = ?", false).
		Order("created_at DESC").
		Limit(1).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func (r *PostgresRequestStore) List(ctx context.Context, q model.RequestQuery) ([]*model.RequestRecord, error) {
	tx := r.db.WithContext(ctx).Model(&model.RequestRecord{})
	if q.From != nil {
		tx = tx.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		tx = tx.Where("created_at <= ?", *q.To)
	}
	if q.Method != "" {
		tx = tx.Where("method = ?", q.Method)
	}
	if q.PathPrefix != "" {
		tx = tx.Where("path LIKE ?", escapeLike(q.PathPrefix)+"%")
	}
	if q.StatusCode != 0 {
		tx = tx.Where("status_code = ?", q.StatusCode)
	}
	if q.Finished != nil {
		tx = tx.Where("finished = ?", *q.Finished)
	}

	records := make([]*model.RequestRecord, 0, q.NormalizedLimit())
	err := tx.Order("created_at DESC").Limit(q.NormalizedLimit()).Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *PostgresRequestStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.RequestRecord{})
	return res.RowsAffected, res.Error
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, c := range s {
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
