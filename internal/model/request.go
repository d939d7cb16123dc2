package model

import (
	"strings"
	"time"
)

// Methods lists the verbs a record may carry. It matches the oneof rule on
// RequestRecord.Method and fits the varchar(7) column.
var Methods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS", "TRACE", "CONNECT"}

// IsKnownMethod reports whether m, in any case, is one of Methods.
func IsKnownMethod(m string) bool {
	m = strings.ToUpper(strings.TrimSpace(m))
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// RequestRecord is one logged request. A record is a draft (Finished=false,
// response fields unset) until the response phase completes it.
type RequestRecord struct {
	ID     string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Method string `gorm:"type:varchar(7);not null;default:GET" json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS TRACE CONNECT"`
	Path   string `gorm:"type:varchar(255);not null;index" json:"path" validate:"required,max=255"`
	Query  string `gorm:"type:text" json:"query"`
	Body   string `gorm:"type:text" json:"body"`
	IP     string `gorm:"type:varchar(45);index" json:"ip" validate:"omitempty,ip"`

	StatusCode   int           `gorm:"index" json:"status_code" validate:"required,min=100,max=599"`
	ResponseTime time.Duration `json:"response_time"`

	UserAgent string  `gorm:"type:varchar(255)" json:"user_agent" validate:"max=255"`
	Referer   string  `gorm:"type:varchar(255)" json:"referer" validate:"omitempty,url,max=255"`
	Language  string  `gorm:"type:varchar(255)" json:"language" validate:"max=255"`
	IsSecure  bool    `json:"is_secure"`
	IsAjax    bool    `json:"is_ajax"`
	Username  *string `gorm:"type:varchar(150);index" json:"username,omitempty"`

	Finished  bool      `gorm:"index" json:"finished"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RequestRecord) TableName() string {
	return "request_records"
}

// Clone returns a deep copy, so stores never share pointers with callers.
func (r *RequestRecord) Clone() *RequestRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Username != nil {
		u := *r.Username
		out.Username = &u
	}
	return &out
}

// RequestQuery filters record listings. Zero values mean "no filter".
type RequestQuery struct {
	Limit      int
	From       *time.Time
	To         *time.Time
	Method     string
	PathPrefix string
	StatusCode int
	Finished   *bool
}

// Matches applies the query to a single record (used by non-SQL stores).
func (q RequestQuery) Matches(r *RequestRecord) bool {
	if q.From != nil && r.CreatedAt.Before(*q.From) {
		return false
	}
	if q.To != nil && r.CreatedAt.After(*q.To) {
		return false
	}
	if q.Method != "" && r.Method != q.Method {
		return false
	}
	if q.PathPrefix != "" && !strings.HasPrefix(r.Path, q.PathPrefix) {
		return false
	}
	if q.StatusCode != 0 && r.StatusCode != q.StatusCode {
		return false
	}
	if q.Finished != nil && r.Finished != *q.Finished {
		return false
	}
	return true
}

// NormalizedLimit clamps the limit the same way for every store.
func (q RequestQuery) NormalizedLimit() int {
	if q.Limit <= 0 || q.Limit > 1000 {
		return 100
	}
	return q.Limit
}
