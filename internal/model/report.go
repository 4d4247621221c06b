package model

import "github.com/shopspring/decimal"

// CostBreakdown holds the USD cost of one cell split by token direction.
type CostBreakdown struct {
	InputCost  decimal.Decimal `json:"input_cost"`
	OutputCost decimal.Decimal `json:"output_cost"`
	TotalCost  decimal.Decimal `json:"total_cost"`
}

// Add returns the sum of two breakdowns.
func (c CostBreakdown) Add(o CostBreakdown) CostBreakdown {
	return CostBreakdown{
		InputCost:  c.InputCost.Add(o.InputCost),
		OutputCost: c.OutputCost.Add(o.OutputCost),
		TotalCost:  c.TotalCost.Add(o.TotalCost),
	}
}

// Cell is the merged, priced usage for one date+model pair.
type Cell struct {
	UsageRecord
	CostBreakdown
	// TotalOnly is set when the cell carried no prompt/completion split and
	// its total was priced as output tokens.
	TotalOnly bool `json:"total_only,omitempty"`
}

// Totals sums counts and costs across cells.
type Totals struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	Requests         int64 `json:"request_count"`
	Successes        int64 `json:"success_count"`
	Failures         int64 `json:"failure_count"`
	CostBreakdown
	Estimated bool `json:"estimated,omitempty"`
}

// Add folds one cell into the totals.
func (t *Totals) Add(c Cell) {
	t.PromptTokens += c.PromptTokens
	t.CompletionTokens += c.CompletionTokens
	t.TotalTokens += c.TotalTokens
	t.Requests += c.Requests
	t.Successes += c.Successes
	t.Failures += c.Failures
	t.CostBreakdown = t.CostBreakdown.Add(c.CostBreakdown)
	t.Estimated = t.Estimated || c.TotalOnly
}

// Merge folds another set of totals into t.
func (t *Totals) Merge(o Totals) {
	t.PromptTokens += o.PromptTokens
	t.CompletionTokens += o.CompletionTokens
	t.TotalTokens += o.TotalTokens
	t.Requests += o.Requests
	t.Successes += o.Successes
	t.Failures += o.Failures
	t.CostBreakdown = t.CostBreakdown.Add(o.CostBreakdown)
	t.Estimated = t.Estimated || o.Estimated
}

// DayReport holds every model cell for one date plus the date's totals.
type DayReport struct {
	Date   string `json:"date"`
	Totals Totals `json:"totals"`
	Models []Cell `json:"models"`
}

// Diagnostics collects non-fatal problems encountered during a run.
type Diagnostics struct {
	APIRecords     int      `json:"api_records"`
	APISkipped     int      `json:"api_skipped"`
	LogRecords     int      `json:"log_records"`
	LogFiles       int      `json:"log_files"`
	LogFileErrors  int      `json:"log_file_errors"`
	LogParseErrors int      `json:"log_parse_errors"`
	CacheHits      int      `json:"cache_hits,omitempty"`
	Overlaps       int      `json:"overlaps"`
	Warnings       []string `json:"warnings,omitempty"`
}

// HasProblems reports whether anything was skipped or unreadable.
func (d Diagnostics) HasProblems() bool {
	return d.APISkipped > 0 || d.LogFileErrors > 0 || d.LogParseErrors > 0 || len(d.Warnings) > 0
}

// Report is the complete output of one run.
type Report struct {
	Days        []DayReport `json:"days"`
	Total       Totals      `json:"total"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Cells returns every cell in presentation order.
func (r *Report) Cells() []Cell {
	var cells []Cell
	for _, d := range r.Days {
		cells = append(cells, d.Models...)
	}
	return cells
}

// Day returns the report for date, if present.
func (r *Report) Day(date string) (DayReport, bool) {
	for _, d := range r.Days {
		if d.Date == date {
			return d, true
		}
	}
	return DayReport{}, false
}

// ModelSummary totals one model across a report's date range.
type ModelSummary struct {
	Model  string  `json:"model"`
	Totals Totals  `json:"totals"`
	Days   int     `json:"days"`
	Share  float64 `json:"share"`
}
