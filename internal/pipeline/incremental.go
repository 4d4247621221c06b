package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/theirongolddev/cpusage/internal/logger"
	"github.com/theirongolddev/cpusage/internal/source"
	"github.com/theirongolddev/cpusage/internal/store"
)

type fileStamp struct{ mtimeNs, size int64 }

// LoadLogsWithCache behaves like LoadLogs but reuses cached parse results for
// files whose mtime and size are unchanged. Log files only grow, so any
// change triggers a full reparse of that file. Cache read failures are
// returned so the caller can fall back to LoadLogs.
func LoadLogsWithCache(ctx context.Context, opts LogOptions, cache *store.Cache) (*LogResult, error) {
	result := &LogResult{}

	files, ok := scanLogs(opts, result)
	if !ok || len(files) == 0 {
		return result, nil
	}
	result.TotalFiles = len(files)

	tracked, err := cache.GetTrackedFiles()
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}

	stamps := make(map[string]fileStamp, len(files))

	var toReparse []source.DiscoveredFile
	var unchanged []source.DiscoveredFile

	for _, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil {
			// Let the parser report it as a file error.
			toReparse = append(toReparse, f)
			continue
		}
		stamps[f.Path] = fileStamp{info.ModTime().UnixNano(), info.Size()}

		cached, ok := tracked[f.Path]
		if ok && cached.MtimeNs == info.ModTime().UnixNano() && cached.SizeBytes == info.Size() {
			unchanged = append(unchanged, f)
		} else {
			toReparse = append(toReparse, f)
		}
	}

	if len(unchanged) > 0 {
		cachedFiles, err := cache.LoadAllFiles()
		if err != nil {
			return nil, fmt.Errorf("loading cached files: %w", err)
		}
		for _, f := range unchanged {
			e, ok := cachedFiles[f.Path]
			if !ok {
				toReparse = append(toReparse, f)
				continue
			}
			result.CacheHits++
			result.ParsedFiles++
			result.Lines += e.Lines
			result.ParseErrors += e.ParseErrors
			result.Records = append(result.Records, e.Records...)
		}
		if opts.Progress != nil && result.CacheHits > 0 {
			opts.Progress(result.CacheHits, result.TotalFiles)
		}
	}

	result.Reparsed = len(toReparse)
	if len(toReparse) > 0 {
		parsed, err := parseAll(ctx, toReparse, opts.Progress, result.CacheHits, result.TotalFiles)
		if err != nil {
			return nil, err
		}

		for _, pr := range parsed {
			result.addParsed(pr)
			if pr.Err != nil {
				continue
			}
			st, ok := stamps[pr.File.Path]
			if !ok {
				continue
			}
			entry := store.FileEntry{
				Path:        pr.File.Path,
				Date:        pr.File.Date,
				Lines:       pr.Lines,
				ParseErrors: pr.ParseErrors,
				Records:     pr.Records,
			}
			if err := cache.SaveFile(entry, st.mtimeNs, st.size); err != nil {
				logger.Debug("cache write failed", "file", pr.File.Path, "err", err)
			}
		}
	}

	pruneMissing(cache, opts.Dir, tracked, stamps)

	sortRecords(result.Records)
	return result, nil
}

// pruneMissing drops cache entries for files in dir that no longer exist.
func pruneMissing(cache *store.Cache, dir string, tracked map[string]store.FileInfo, seen map[string]fileStamp) {
	for path := range tracked {
		if filepath.Dir(path) != filepath.Clean(dir) {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			_ = cache.DeleteFile(path)
		}
	}
}

// CacheDir returns the platform-appropriate cache directory.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "cpusage")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "cpusage")
}

// CachePath returns the full path to the cache database.
func CachePath() string {
	return filepath.Join(CacheDir(), "logs.db")
}
