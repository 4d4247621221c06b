// Package pipeline loads log usage, merges it with API usage and builds
// priced reports.
package pipeline

import (
	"sort"
	"strings"

	"github.com/theirongolddev/cpusage/internal/config"
	"github.com/theirongolddev/cpusage/internal/model"
)

// ReportOptions scopes a report.
type ReportOptions struct {
	Range model.DateRange
	// Model keeps only models whose name contains this substring (any case).
	Model string
}

// Assemble scopes both sources, merges them and prices the result. The
// report's diagnostics carry the in-scope record counts and the overlap
// count; callers add the rest.
func Assemble(api, logs []model.UsageRecord, pricing *config.Pricing, opts ReportOptions) *model.Report {
	api = FilterModel(FilterRange(api, opts.Range), opts.Model)
	logs = FilterModel(FilterRange(logs, opts.Range), opts.Model)

	merged := Merge(api, logs)
	report := BuildReport(merged.Records, pricing)
	report.Diagnostics.APIRecords = len(api)
	report.Diagnostics.LogRecords = len(logs)
	report.Diagnostics.Overlaps = merged.Overlaps
	return report
}

// BuildReport prices one cell per (date, model) and groups cells by date.
// Dates ascend; within a date cells are ordered by total tokens descending,
// then model name ascending. Duplicate keys are summed first.
func BuildReport(merged []model.UsageRecord, pricing *config.Pricing) *model.Report {
	byKey := Collapse(merged)

	dayMap := make(map[string]*model.DayReport)
	for _, rec := range byKey {
		cost, totalOnly := pricing.Resolve(rec.Model).CostOf(rec)
		cell := model.Cell{
			UsageRecord:   rec,
			CostBreakdown: cost,
			TotalOnly:     totalOnly,
		}

		day, ok := dayMap[rec.Date]
		if !ok {
			day = &model.DayReport{Date: rec.Date}
			dayMap[rec.Date] = day
		}
		day.Models = append(day.Models, cell)
		day.Totals.Add(cell)
	}

	report := &model.Report{Days: make([]model.DayReport, 0, len(dayMap))}
	for _, day := range dayMap {
		sortCells(day.Models)
		report.Days = append(report.Days, *day)
	}
	sort.Slice(report.Days, func(i, j int) bool {
		return report.Days[i].Date < report.Days[j].Date
	})
	for _, day := range report.Days {
		report.Total.Merge(day.Totals)
	}
	return report
}

func sortCells(cells []model.Cell) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].TotalTokens != cells[j].TotalTokens {
			return cells[i].TotalTokens > cells[j].TotalTokens
		}
		return cells[i].Model < cells[j].Model
	})
}

// AggregateModels totals each model across every day of the report, ordered
// by total tokens descending, then model name.
func AggregateModels(report *model.Report) []model.ModelSummary {
	byModel := make(map[string]*model.ModelSummary)
	for _, day := range report.Days {
		for _, c := range day.Models {
			ms, ok := byModel[c.Model]
			if !ok {
				ms = &model.ModelSummary{Model: c.Model}
				byModel[c.Model] = ms
			}
			ms.Totals.Add(c)
			ms.Days++
		}
	}

	result := make([]model.ModelSummary, 0, len(byModel))
	for _, ms := range byModel {
		if report.Total.TotalTokens > 0 {
			ms.Share = float64(ms.Totals.TotalTokens) / float64(report.Total.TotalTokens)
		}
		result = append(result, *ms)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Totals.TotalTokens != result[j].Totals.TotalTokens {
			return result[i].Totals.TotalTokens > result[j].Totals.TotalTokens
		}
		return result[i].Model < result[j].Model
	})
	return result
}

// FilterRange keeps records whose date falls inside rng.
func FilterRange(records []model.UsageRecord, rng model.DateRange) []model.UsageRecord {
	if rng.IsOpen() {
		return records
	}
	var result []model.UsageRecord
	for _, r := range records {
		if rng.Contains(r.Date) {
			result = append(result, r)
		}
	}
	return result
}

// FilterModel keeps records whose model name contains substr (case-insensitive).
func FilterModel(records []model.UsageRecord, substr string) []model.UsageRecord {
	if substr == "" {
		return records
	}
	var result []model.UsageRecord
	for _, r := range records {
		if containsIgnoreCase(r.Model, substr) {
			result = append(result, r)
		}
	}
	return result
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
