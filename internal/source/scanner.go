package source

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/theirongolddev/cpusage/internal/model"
)

// ScanDir lists the token_usage_<YYYY-MM-DD>.log files in dir whose date
// falls inside rng, sorted by date. Other names, invalid dates and
// subdirectories are skipped. A missing or unreadable dir is an error.
func ScanDir(dir string, rng model.DateRange) ([]DiscoveredFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []DiscoveredFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		date, ok := DateFromName(e.Name())
		if !ok || !rng.Contains(date) {
			continue
		}
		files = append(files, DiscoveredFile{
			Path: filepath.Join(dir, e.Name()),
			Date: date,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Date < files[j].Date
	})
	return files, nil
}

// DateFromName extracts the date from a token_usage_<YYYY-MM-DD>.log name.
func DateFromName(name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, logFilePrefix)
	if !ok {
		return "", false
	}
	date, ok := strings.CutSuffix(rest, logFileSuffix)
	if !ok {
		return "", false
	}
	if _, err := model.ParseDate(date); err != nil {
		return "", false
	}
	return date, true
}

// LogFileName returns the file name holding date's entries.
func LogFileName(date string) string {
	return logFilePrefix + date + logFileSuffix
}
