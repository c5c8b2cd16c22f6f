package syncengine

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gridhaven/haven/internal/config"
	"github.com/gridhaven/haven/internal/logging"
	"github.com/gridhaven/haven/internal/progress"
	"go.uber.org/zap"
)

// ArchiveHandler mirrors a mounted archive directory tree into local storage
type ArchiveHandler struct {
	name   string
	cfg    config.ContentTypeConfig
	logger *logging.SafeLogger
}

// NewArchiveHandler creates a handler for an archive-style content type
func NewArchiveHandler(name string, cfg config.ContentTypeConfig) *ArchiveHandler {
	return &ArchiveHandler{
		name:   name,
		cfg:    cfg,
		logger: logging.Logger.With(zap.String("handler", name)),
	}
}

func (h *ArchiveHandler) Name() string {
	return h.name
}

// Sync walks the source tree, selects files within the size budget and
// copies them preserving relative paths. Files already present locally with
// a matching size are counted as processed without a copy.
func (h *ArchiveHandler) Sync(ctx context.Context, tracker *progress.Tracker) (Stats, error) {
	items, err := h.scan()
	if err != nil {
		return Stats{}, err
	}

	selected, skipped := selectWithinBudget(items, h.cfg.Filters, h.cfg.PriorityRules, h.cfg.MaxSizeBytes, h.logger)

	var stats Stats
	stats.ItemsSkipped = skipped
	for i := 0; i < skipped; i++ {
		tracker.MarkItemSkipped()
	}

	for _, item := range selected {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		tracker.SetCurrentItem(item.Name)

		dst := filepath.Join(h.cfg.LocalPath, item.Name)
		if upToDate(dst, item.SizeBytes) {
			stats.ItemsProcessed++
			stats.TotalBytes += item.SizeBytes
			tracker.UpdateProgress(int64(stats.ItemsProcessed), stats.TotalBytes)
			continue
		}

		if err := copyFile(item.Path, dst); err != nil {
			tracker.MarkItemFailed()
			return stats, fmt.Errorf("failed to copy %s: %w", item.Name, err)
		}
		stats.ItemsProcessed++
		stats.TotalBytes += item.SizeBytes
		tracker.UpdateProgress(int64(stats.ItemsProcessed), stats.TotalBytes)
	}

	h.logger.Info("archive mirror complete",
		zap.Int("copied", stats.ItemsProcessed),
		zap.Int("skipped", stats.ItemsSkipped),
		zap.Int64("bytes", stats.TotalBytes))
	return stats, nil
}

// scan collects candidate files under the source tree, honoring
// include_folders and exclude_patterns
func (h *ArchiveHandler) scan() ([]ContentItem, error) {
	var items []ContentItem

	err := filepath.WalkDir(h.cfg.Source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(h.cfg.Source, path)
		if err != nil {
			return err
		}
		folder := topFolder(rel)

		if len(h.cfg.IncludeFolders) > 0 && !containsFold(h.cfg.IncludeFolders, folder) {
			return nil
		}
		if matchesAny(h.cfg.ExcludePatterns, d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		items = append(items, ContentItem{
			Name:      rel,
			Path:      path,
			SizeBytes: info.Size(),
			Folder:    folder,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan source %s: %w", h.cfg.Source, err)
	}
	return items, nil
}

// topFolder returns the first path element of a relative path, or "" for
// files at the source root
func topFolder(rel string) string {
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

// containsFold reports case-insensitive membership
func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}

// matchesAny reports whether name matches any glob pattern. A malformed
// pattern never matches.
func matchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// upToDate reports whether dst already exists with the expected size
func upToDate(dst string, size int64) bool {
	info, err := os.Stat(dst)
	return err == nil && info.Size() == size
}

// copyFile copies src to dst atomically via a temp file in dst's directory
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".haven-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
