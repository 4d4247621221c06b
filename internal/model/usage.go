// Package model defines domain types for cpusage usage records and reports.
package model

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar date format used for every aggregation key.
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned for dates that are not YYYY-MM-DD.
var ErrInvalidDate = errors.New("invalid date (want YYYY-MM-DD)")

// Source tags where a usage record came from. Diagnostics only.
type Source string

const (
	// SourceAPI marks records from the proxy management usage endpoint.
	SourceAPI Source = "api"
	// SourceLog marks records from token_usage_<date>.log files.
	SourceLog Source = "log"
)

// UsageRecord is the source-agnostic usage for one date+model pair.
type UsageRecord struct {
	Date             string `json:"date"`
	Model            string `json:"model"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
	// UnsplitTokens is the part of TotalTokens reported with no
	// prompt/completion split.
	UnsplitTokens    int64  `json:"unsplit_tokens,omitempty"`
	Requests         int64  `json:"request_count"`
	Successes        int64  `json:"success_count"`
	Failures         int64  `json:"failure_count"`
	Source           Source `json:"source"`
}

// Key identifies one aggregate cell.
type Key struct {
	Date  string
	Model string
}

// Key returns the record's aggregation key.
func (r UsageRecord) Key() Key {
	return Key{Date: r.Date, Model: r.Model}
}

// Add folds the counts of o into r. Date, model and source are left alone.
func (r *UsageRecord) Add(o UsageRecord) {
	r.PromptTokens += o.PromptTokens
	r.CompletionTokens += o.CompletionTokens
	r.TotalTokens += o.TotalTokens
	r.UnsplitTokens += o.UnsplitTokens
	r.Requests += o.Requests
	r.Successes += o.Successes
	r.Failures += o.Failures
}

// MarkUnsplit returns r with UnsplitTokens set to the whole total when r
// carries a total but neither prompt nor completion tokens. Call it on each
// raw record before summing: once split and unsplit records are added
// together the difference can no longer be recovered.
func (r UsageRecord) MarkUnsplit() UsageRecord {
	if r.UnsplitTokens == 0 && r.PromptTokens == 0 && r.CompletionTokens == 0 && r.TotalTokens > 0 {
		r.UnsplitTokens = r.TotalTokens
	}
	return r
}

// ParseDate validates a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil || t.Format(DateLayout) != s {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// DateRange is an inclusive date window. Empty bounds are open.
type DateRange struct {
	Since string
	Until string
}

// Validate checks both bounds and their order.
func (r DateRange) Validate() error {
	if r.Since != "" {
		if _, err := ParseDate(r.Since); err != nil {
			return fmt.Errorf("since: %w", err)
		}
	}
	if r.Until != "" {
		if _, err := ParseDate(r.Until); err != nil {
			return fmt.Errorf("until: %w", err)
		}
	}
	if r.Since != "" && r.Until != "" && r.Since > r.Until {
		return fmt.Errorf("since %s is after until %s", r.Since, r.Until)
	}
	return nil
}

// Contains reports whether date falls inside the range.
// YYYY-MM-DD strings order the same way as the dates they name.
func (r DateRange) Contains(date string) bool {
	if r.Since != "" && date < r.Since {
		return false
	}
	if r.Until != "" && date > r.Until {
		return false
	}
	return true
}

// IsOpen reports whether the range has no bounds at all.
func (r DateRange) IsOpen() bool {
	return r.Since == "" && r.Until == ""
}

// LastDays returns the range covering the last n days ending at now (local time).
// n <= 0 yields an open range.
func LastDays(n int, now time.Time) DateRange {
	if n <= 0 {
		return DateRange{}
	}
	return DateRange{
		Since: now.AddDate(0, 0, -(n - 1)).Format(DateLayout),
		Until: now.Format(DateLayout),
	}
}
