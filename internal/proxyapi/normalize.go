package proxyapi

import (
	"sort"
	"strings"

	"github.com/theirongolddev/cpusage/internal/model"
)

// collector sums records per (date, model) and counts rejects.
type collector struct {
	byKey   map[model.Key]*model.UsageRecord
	skipped int
}

func newCollector() *collector {
	return &collector{byKey: make(map[model.Key]*model.UsageRecord)}
}

func (c *collector) add(rec model.UsageRecord) {
	rec = rec.MarkUnsplit()
	rec.Source = model.SourceAPI
	if acc, ok := c.byKey[rec.Key()]; ok {
		acc.Add(rec)
		return
	}
	c.byKey[rec.Key()] = &rec
}

func (c *collector) result() *FetchResult {
	res := &FetchResult{
		Records: make([]model.UsageRecord, 0, len(c.byKey)),
		Skipped: c.skipped,
	}
	for _, rec := range c.byKey {
		res.Records = append(res.Records, *rec)
	}
	sort.Slice(res.Records, func(i, j int) bool {
		a, b := res.Records[i], res.Records[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.Model < b.Model
	})
	return res
}

func fromEntries(entries []Entry) *FetchResult {
	c := newCollector()
	for _, e := range entries {
		if !validKey(e.Date, e.Model) ||
			e.PromptTokens < 0 || e.CompletionTokens < 0 || e.TotalTokens < 0 ||
			e.RequestCount < 0 || e.SuccessCount < 0 || e.FailureCount < 0 {
			c.skipped++
			continue
		}
		c.add(model.UsageRecord{
			Date:             e.Date,
			Model:            e.Model,
			PromptTokens:     e.PromptTokens,
			CompletionTokens: e.CompletionTokens,
			TotalTokens:      e.TotalTokens,
			Requests:         e.RequestCount,
			Successes:        e.SuccessCount,
			Failures:         e.FailureCount,
		})
	}
	return c.result()
}

// fromNative aggregates request details per (date, model) across every API.
// The date is the calendar part of the detail's timestamp as the server
// wrote it.
func fromNative(u NativeUsage) *FetchResult {
	c := newCollector()
	for _, api := range u.APIs {
		for name, m := range api.Models {
			for _, d := range m.Details {
				date, _, _ := strings.Cut(d.Timestamp, "T")
				t := d.Tokens
				if !validKey(date, name) || t.InputTokens < 0 || t.OutputTokens < 0 || t.TotalTokens < 0 {
					c.skipped++
					continue
				}
				total := t.TotalTokens
				if total == 0 {
					total = t.InputTokens + t.OutputTokens
				}
				rec := model.UsageRecord{
					Date:             date,
					Model:            name,
					PromptTokens:     t.InputTokens,
					CompletionTokens: t.OutputTokens,
					TotalTokens:      total,
					Requests:         1,
				}
				if d.Failed {
					rec.Failures = 1
				} else {
					rec.Successes = 1
				}
				c.add(rec)
			}
		}
	}
	return c.result()
}

func validKey(date, name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := model.ParseDate(date)
	return err == nil
}
