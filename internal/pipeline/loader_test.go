package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/theirongolddev/cpusage/internal/model"
	"github.com/theirongolddev/cpusage/internal/source"
	"github.com/theirongolddev/cpusage/internal/store"
)

func logLine(m string, prompt, completion int64) string {
	return fmt.Sprintf(`{"timestamp":"2024-01-01T00:00:00Z","model":%q,"token_usage":{"prompt_tokens":%d,"completion_tokens":%d,"total_tokens":%d}}`,
		m, prompt, completion, prompt+completion)
}

func writeLogFile(t testing.TB, dir, date string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, source.LogFileName(date))
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadLogs(t *testing.T) {
	dir := t.TempDir()
	writeLogFile(t, dir, "2024-01-02",
		logLine("glm-4.6", 50, 25),
		logLine("glm-4.6", 30, 10),
		`{"broken`,
	)
	writeLogFile(t, dir, "2024-01-01", logLine("glm-4.5", 1, 1))
	writeLogFile(t, dir, "2023-12-01", logLine("glm-4.5", 9, 9))

	var calls int
	res, err := LoadLogs(context.Background(), LogOptions{
		Dir:      dir,
		Range:    model.DateRange{Since: "2024-01-01"},
		Progress: func(_, _ int) { calls++ },
	})
	if err != nil {
		t.Fatalf("LoadLogs: %v", err)
	}

	if res.TotalFiles != 2 || res.ParsedFiles != 2 || res.FileErrors != 0 {
		t.Errorf("files = %d/%d/%d", res.TotalFiles, res.ParsedFiles, res.FileErrors)
	}
	if res.ParseErrors != 1 || res.Lines != 3 {
		t.Errorf("lines=%d parseErrors=%d, want 3/1", res.Lines, res.ParseErrors)
	}
	if calls != 2 {
		t.Errorf("progress calls = %d, want 2", calls)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %+v", res.Records)
	}
	if res.Records[0].Date != "2024-01-01" {
		t.Errorf("records not sorted: %+v", res.Records)
	}
	glm := res.Records[1]
	if glm.PromptTokens != 80 || glm.CompletionTokens != 35 || glm.Requests != 2 {
		t.Errorf("glm-4.6 = %+v", glm)
	}
}

func TestLoadLogs_MissingDirIsWarning(t *testing.T) {
	res, err := LoadLogs(context.Background(), LogOptions{Dir: filepath.Join(t.TempDir(), "nope")})
	if err != nil {
		t.Fatalf("LoadLogs: %v", err)
	}
	if res.FileErrors != 1 || len(res.Warnings) != 1 || len(res.Records) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Warnings[0], "does not exist") {
		t.Errorf("warning = %q", res.Warnings[0])
	}
}

func TestLoadLogs_UnreadableFileSkipped(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root can read any file")
	}
	dir := t.TempDir()
	writeLogFile(t, dir, "2024-01-01", logLine("a", 1, 1))
	bad := writeLogFile(t, dir, "2024-01-02", logLine("b", 1, 1))
	if err := os.Chmod(bad, 0o000); err != nil {
		t.Fatal(err)
	}

	res, err := LoadLogs(context.Background(), LogOptions{Dir: dir})
	if err != nil {
		t.Fatalf("LoadLogs: %v", err)
	}
	if res.FileErrors != 1 || res.ParsedFiles != 1 || len(res.Records) != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestLoadLogs_Canceled(t *testing.T) {
	dir := t.TempDir()
	writeLogFile(t, dir, "2024-01-01", logLine("a", 1, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := LoadLogs(ctx, LogOptions{Dir: dir}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestLoadLogsWithCache(t *testing.T) {
	dir := t.TempDir()
	writeLogFile(t, dir, "2024-01-01", logLine("a", 1, 1))
	second := writeLogFile(t, dir, "2024-01-02", logLine("b", 2, 2), `junk`)

	cache, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = cache.Close() }()

	opts := LogOptions{Dir: dir}
	cold, err := LoadLogsWithCache(context.Background(), opts, cache)
	if err != nil {
		t.Fatalf("cold load: %v", err)
	}
	if cold.CacheHits != 0 || cold.Reparsed != 2 {
		t.Errorf("cold: hits=%d reparsed=%d", cold.CacheHits, cold.Reparsed)
	}

	warm, err := LoadLogsWithCache(context.Background(), opts, cache)
	if err != nil {
		t.Fatalf("warm load: %v", err)
	}
	if warm.CacheHits != 2 || warm.Reparsed != 0 {
		t.Errorf("warm: hits=%d reparsed=%d", warm.CacheHits, warm.Reparsed)
	}
	if warm.ParseErrors != cold.ParseErrors || warm.Lines != cold.Lines {
		t.Errorf("warm counts %d/%d differ from cold %d/%d", warm.Lines, warm.ParseErrors, cold.Lines, cold.ParseErrors)
	}
	if len(warm.Records) != len(cold.Records) {
		t.Fatalf("warm records = %+v, cold = %+v", warm.Records, cold.Records)
	}
	for i := range cold.Records {
		if warm.Records[i] != cold.Records[i] {
			t.Errorf("record %d: warm %+v != cold %+v", i, warm.Records[i], cold.Records[i])
		}
	}

	// Appending a line changes size and mtime, forcing a reparse of that file only.
	f, err := os.OpenFile(second, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(logLine("b", 3, 3) + "\n"); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	later := time.Now().Add(time.Second)
	if err := os.Chtimes(second, later, later); err != nil {
		t.Fatal(err)
	}

	grown, err := LoadLogsWithCache(context.Background(), opts, cache)
	if err != nil {
		t.Fatalf("grown load: %v", err)
	}
	if grown.CacheHits != 1 || grown.Reparsed != 1 {
		t.Errorf("grown: hits=%d reparsed=%d", grown.CacheHits, grown.Reparsed)
	}
	b := grown.Records[1]
	if b.Model != "b" || b.PromptTokens != 5 || b.Requests != 2 {
		t.Errorf("b = %+v", b)
	}

	// A deleted file drops out of the cache.
	if err := os.Remove(second); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadLogsWithCache(context.Background(), opts, cache); err != nil {
		t.Fatal(err)
	}
	if n, _ := cache.FileCount(); n != 1 {
		t.Errorf("FileCount = %d after delete, want 1", n)
	}
}
