package pipeline

import (
	"sort"

	"github.com/samber/lo"

	"github.com/theirongolddev/cpusage/internal/model"
)

// MergeResult holds the combined records of both sources.
type MergeResult struct {
	// Records holds exactly one record per (date, model), sorted by key.
	Records []model.UsageRecord
	// Overlaps counts keys present in both sources whose log side was dropped.
	Overlaps int
}

// Collapse sums same-key records from a single source. Each record is
// marked unsplit before summing so total-only usage survives the sum.
func Collapse(records []model.UsageRecord) map[model.Key]model.UsageRecord {
	out := make(map[model.Key]model.UsageRecord, len(records))
	for _, r := range records {
		r = r.MarkUnsplit()
		k := r.Key()
		if acc, ok := out[k]; ok {
			acc.Add(r)
			out[k] = acc
			continue
		}
		out[k] = r
	}
	return out
}

// Merge combines API and log records without double counting. Each side is
// collapsed first. A key reported by the API keeps the API record unchanged
// and the log record for that key is discarded entirely, even when the log
// holds more usage. Log records only fill keys the API does not report.
func Merge(api, logs []model.UsageRecord) MergeResult {
	apiByKey := Collapse(api)
	logByKey := Collapse(logs)

	merged := make(map[model.Key]model.UsageRecord, len(apiByKey)+len(logByKey))
	for k, r := range apiByKey {
		merged[k] = r
	}

	var res MergeResult
	for k, r := range logByKey {
		if _, ok := apiByKey[k]; ok {
			res.Overlaps++
			continue
		}
		merged[k] = r
	}

	res.Records = lo.Values(merged)
	sortRecords(res.Records)
	return res
}

// sortRecords orders records by date, then model.
func sortRecords(records []model.UsageRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date < records[j].Date
		}
		return records[i].Model < records[j].Model
	})
}
