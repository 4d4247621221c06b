// Package source discovers and parses token_usage_<date>.log files.
package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"sort"

	"github.com/theirongolddev/cpusage/internal/model"
)

const maxLineSize = 2 * 1024 * 1024

// ParseResult holds the output of parsing a single log file.
type ParseResult struct {
	File DiscoveredFile
	// Records holds one record per model, sorted by model name.
	Records     []model.UsageRecord
	Lines       int
	ParseErrors int
	// FirstParseError is the first skipped line, kept for warnings.
	FirstParseError error
	Err             error
}

// ParseLine decodes one log line. Blank input is an error; callers skip
// blank lines before calling.
func ParseLine(line []byte) (LogEntry, error) {
	var raw rawLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return LogEntry{}, err
	}
	if raw.Timestamp == "" {
		return LogEntry{}, fmt.Errorf("%w: missing timestamp", ErrInvalidEntry)
	}
	if raw.Model == "" {
		return LogEntry{}, fmt.Errorf("%w: missing model", ErrInvalidEntry)
	}
	u := raw.TokenUsage
	if u == nil {
		return LogEntry{}, fmt.Errorf("%w: missing token_usage", ErrInvalidEntry)
	}
	if u.PromptTokens == nil && u.CompletionTokens == nil && u.TotalTokens == nil {
		return LogEntry{}, fmt.Errorf("%w: token_usage has no counts", ErrInvalidEntry)
	}

	e := LogEntry{
		Timestamp:        raw.Timestamp,
		Model:            raw.Model,
		PromptTokens:     deref(u.PromptTokens),
		CompletionTokens: deref(u.CompletionTokens),
	}
	e.TotalTokens = e.PromptTokens + e.CompletionTokens
	if u.TotalTokens != nil {
		e.TotalTokens = *u.TotalTokens
	}
	if e.PromptTokens < 0 || e.CompletionTokens < 0 || e.TotalTokens < 0 {
		return LogEntry{}, fmt.Errorf("%w: negative token count", ErrInvalidEntry)
	}
	return e, nil
}

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

// Entries decodes r one line at a time. Blank lines are ignored; every other
// line yields either an entry or a *LineError, including lines over
// maxLineSize. A read failure is yielded last as a plain error. The sequence
// consumes r, so it can be ranged over once.
func Entries(r io.Reader) iter.Seq2[LogEntry, error] {
	return func(yield func(LogEntry, error) bool) {
		br := bufio.NewReaderSize(r, 64*1024)
		var buf []byte

		lineNo := 0
		for {
			raw, tooLong, err := readLine(br, buf)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(LogEntry{}, err)
				}
				return
			}
			buf = raw
			lineNo++

			if tooLong {
				if !yield(LogEntry{}, &LineError{Line: lineNo, Err: ErrLineTooLong}) {
					return
				}
				continue
			}
			line := bytes.TrimSpace(raw)
			if len(line) == 0 {
				continue
			}
			entry, err := ParseLine(line)
			if err != nil {
				if !yield(LogEntry{}, &LineError{Line: lineNo, Err: err}) {
					return
				}
				continue
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// readLine reads the next line into buf, newline included. A line longer
// than maxLineSize is read to its end but not kept; the bool result
// reports it.
// io.EOF is returned only when no bytes remain.
func readLine(br *bufio.Reader, buf []byte) ([]byte, bool, error) {
	buf = buf[:0]
	tooLong := false
	read := 0
	for {
		chunk, err := br.ReadSlice('\n')
		read += len(chunk)
		if !tooLong {
			if len(buf)+len(chunk) > maxLineSize {
				tooLong = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}

		switch {
		case err == nil:
			return buf, tooLong, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if read == 0 {
				return nil, false, io.EOF
			}
			return buf, tooLong, nil
		default:
			return nil, false, err
		}
	}
}

// Records yields one usage record per valid line of every log file in dir
// that falls inside rng, in file date order. Skipped lines yield a
// *LineError and unreadable files a *FileError; iteration continues past
// both. A failing directory scan is yielded once and ends the sequence.
//
// Each range over the sequence rescans and rereads from disk.
func Records(dir string, rng model.DateRange) iter.Seq2[model.UsageRecord, error] {
	return func(yield func(model.UsageRecord, error) bool) {
		files, err := ScanDir(dir, rng)
		if err != nil {
			yield(model.UsageRecord{}, err)
			return
		}
		for _, df := range files {
			if !yieldFile(df, yield) {
				return
			}
		}
	}
}

func yieldFile(df DiscoveredFile, yield func(model.UsageRecord, error) bool) bool {
	f, err := os.Open(df.Path)
	if err != nil {
		return yield(model.UsageRecord{}, &FileError{Path: df.Path, Err: err})
	}
	defer func() { _ = f.Close() }()

	for entry, err := range Entries(f) {
		if err != nil {
			var le *LineError
			if errors.As(err, &le) {
				le.Path = df.Path
			} else {
				err = &FileError{Path: df.Path, Err: err}
			}
			if !yield(model.UsageRecord{}, err) {
				return false
			}
			continue
		}
		if !yield(entry.Record(df.Date), nil) {
			return false
		}
	}
	return true
}

// ParseFile reads one log file and sums its lines per model, so the result
// holds at most one record per (date, model). Malformed lines are counted
// and skipped; Err is set only when the file itself cannot be read.
func ParseFile(df DiscoveredFile) ParseResult {
	f, err := os.Open(df.Path)
	if err != nil {
		return ParseResult{File: df, Err: err}
	}
	defer func() { _ = f.Close() }()

	res := ParseResult{File: df}
	byModel := make(map[string]*model.UsageRecord)

	for entry, err := range Entries(f) {
		if err != nil {
			var le *LineError
			if !errors.As(err, &le) {
				return ParseResult{File: df, Err: err}
			}
			le.Path = df.Path
			res.ParseErrors++
			if res.FirstParseError == nil {
				res.FirstParseError = le
			}
			continue
		}

		res.Lines++
		rec := entry.Record(df.Date)
		if acc, ok := byModel[rec.Model]; ok {
			acc.Add(rec)
		} else {
			byModel[rec.Model] = &rec
		}
	}

	res.Records = make([]model.UsageRecord, 0, len(byModel))
	for _, rec := range byModel {
		res.Records = append(res.Records, *rec)
	}
	sort.Slice(res.Records, func(i, j int) bool {
		return res.Records[i].Model < res.Records[j].Model
	})
	return res
}
