package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/theirongolddev/cpusage/internal/logger"
	"github.com/theirongolddev/cpusage/internal/model"
	"github.com/theirongolddev/cpusage/internal/source"
)

// LogOptions selects which log files to load.
type LogOptions struct {
	Dir      string
	Range    model.DateRange
	Progress ProgressFunc
}

// LogResult holds the output of the log loading pipeline.
type LogResult struct {
	// Records holds one log record per (date, model), sorted by key.
	Records     []model.UsageRecord
	TotalFiles  int
	ParsedFiles int
	Lines       int
	ParseErrors int
	FileErrors  int
	CacheHits   int
	Reparsed    int
	Warnings    []string
}

// ProgressFunc is called during loading to report progress.
// current is the number of files processed so far, total is the total count.
type ProgressFunc func(current, total int)

// LoadLogs discovers and parses every log file in the requested range with a
// bounded worker pool. Unreadable files and malformed lines are counted and
// skipped; an unreadable directory is recorded as a file error. The only
// error returned is cancellation of ctx.
func LoadLogs(ctx context.Context, opts LogOptions) (*LogResult, error) {
	result := &LogResult{}

	files, ok := scanLogs(opts, result)
	if !ok || len(files) == 0 {
		return result, nil
	}
	result.TotalFiles = len(files)
	result.Reparsed = len(files)

	parsed, err := parseAll(ctx, files, opts.Progress, 0, len(files))
	if err != nil {
		return nil, err
	}
	for _, pr := range parsed {
		result.addParsed(pr)
	}

	sortRecords(result.Records)
	return result, nil
}

// scanLogs lists the files to load. A directory that cannot be read is
// logged and counted, and ok is false.
func scanLogs(opts LogOptions, result *LogResult) ([]source.DiscoveredFile, bool) {
	files, err := source.ScanDir(opts.Dir, opts.Range)
	if err != nil {
		result.FileErrors++
		msg := fmt.Sprintf("log directory %s unreadable: %v", opts.Dir, err)
		if errors.Is(err, os.ErrNotExist) {
			msg = fmt.Sprintf("log directory %s does not exist", opts.Dir)
		}
		result.Warnings = append(result.Warnings, msg)
		logger.Warn("skipping log directory", "dir", opts.Dir, "err", err)
		return nil, false
	}
	return files, true
}

// addParsed folds one file's parse result into the totals.
func (r *LogResult) addParsed(pr source.ParseResult) {
	if pr.Err != nil {
		r.FileErrors++
		r.Warnings = append(r.Warnings, fmt.Sprintf("skipped %s: %v", pr.File.Path, pr.Err))
		logger.Warn("skipping log file", "file", pr.File.Path, "err", pr.Err)
		return
	}
	r.ParsedFiles++
	r.Lines += pr.Lines
	r.ParseErrors += pr.ParseErrors
	if pr.FirstParseError != nil {
		logger.Debug("skipped malformed log lines", "file", pr.File.Path, "count", pr.ParseErrors, "first", pr.FirstParseError)
	}
	r.Records = append(r.Records, pr.Records...)
}

// parseAll parses files in parallel and returns results in file order.
// offset and total shift the progress counts when some files came from cache.
func parseAll(ctx context.Context, files []source.DiscoveredFile, progressFn ProgressFunc, offset, total int) ([]source.ParseResult, error) {
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers < 1 {
		numWorkers = 4
	}
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	results := make([]source.ParseResult, len(files))
	var wg sync.WaitGroup
	var processed atomic.Int64

	for i := range files {
		work <- i
	}
	close(work)

	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for idx := range work {
				if ctx.Err() != nil {
					return
				}
				results[idx] = source.ParseFile(files[idx])
				n := processed.Add(1)
				if progressFn != nil {
					progressFn(int(n)+offset, total)
				}
			}
		}()
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
