package proxyapi

import (
	"encoding/json"
	"time"

	"github.com/theirongolddev/cpusage/internal/model"
)

// Entry is one per-date, per-model row of the flat usage payload.
type Entry struct {
	Date             string `json:"date"`
	Model            string `json:"model"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
	RequestCount     int64  `json:"request_count"`
	SuccessCount     int64  `json:"success_count"`
	FailureCount     int64  `json:"failure_count"`
}

// payloadEnvelope tells the flat envelope apart from the native usage snapshot.
type payloadEnvelope struct {
	Entries *[]Entry        `json:"entries"`
	Usage   json.RawMessage `json:"usage"`
}

// NativeUsage is the proxy's own usage snapshot: per API, per model, the
// individual request details.
type NativeUsage struct {
	TotalRequests int64                `json:"total_requests"`
	SuccessCount  int64                `json:"success_count"`
	FailureCount  int64                `json:"failure_count"`
	TotalTokens   int64                `json:"total_tokens"`
	APIs          map[string]NativeAPI `json:"apis"`
}

// NativeAPI groups usage by model for one API key or endpoint.
type NativeAPI struct {
	Models map[string]NativeModel `json:"models"`
}

// NativeModel holds the request details for one model.
type NativeModel struct {
	Details []NativeDetail `json:"details"`
}

// NativeDetail is a single proxied request.
type NativeDetail struct {
	Timestamp string       `json:"timestamp"`
	Tokens    NativeTokens `json:"tokens"`
	Failed    bool         `json:"failed"`
}

// NativeTokens holds the token counts of one request.
type NativeTokens struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// FetchResult is the normalized outcome of one usage fetch.
type FetchResult struct {
	// Records holds one API-tagged record per (date, model), sorted.
	Records []model.UsageRecord
	// Skipped counts entries or details that could not be normalized.
	Skipped   int
	FetchedAt time.Time
}
