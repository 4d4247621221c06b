package source

import "github.com/theirongolddev/cpusage/internal/model"

const (
	logFilePrefix = "token_usage_"
	logFileSuffix = ".log"
)

// DiscoveredFile is a token usage log found during directory scanning.
type DiscoveredFile struct {
	Path string
	Date string // YYYY-MM-DD taken from the file name
}

// LogEntry is one decoded line of a token usage log.
type LogEntry struct {
	Timestamp        string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Record converts the entry into a single successful request on date.
// The line's own timestamp never decides the date.
func (e LogEntry) Record(date string) model.UsageRecord {
	rec := model.UsageRecord{
		Date:             date,
		Model:            e.Model,
		PromptTokens:     e.PromptTokens,
		CompletionTokens: e.CompletionTokens,
		TotalTokens:      e.TotalTokens,
		Requests:         1,
		Successes:        1,
		Source:           model.SourceLog,
	}
	return rec.MarkUnsplit()
}

// rawLine mirrors one JSON line of a token usage log.
type rawLine struct {
	Timestamp  string         `json:"timestamp"`
	Model      string         `json:"model"`
	TokenUsage *rawTokenUsage `json:"token_usage"`
}

// rawTokenUsage uses pointers so absent counts can be told apart from zero.
type rawTokenUsage struct {
	PromptTokens     *int64 `json:"prompt_tokens"`
	CompletionTokens *int64 `json:"completion_tokens"`
	TotalTokens      *int64 `json:"total_tokens"`
}
