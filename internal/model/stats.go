package model

import (
	"fmt"
	"time"
)

const StatsTotal = "total"

// DailyStats counts finalized records for one UTC day, by status class.
type DailyStats struct {
	Date   string           `json:"date"`
	Counts map[string]int64 `json:"counts"`
}

// StatsDay is the key used to bucket t.
func StatsDay(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// StatusClass maps 404 to "4xx".
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return fmt.Sprintf("%dxx", code/100)
}
