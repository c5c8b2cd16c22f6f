package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gridhaven/haven/internal/config"
	"github.com/gridhaven/haven/internal/logging"
	"github.com/gridhaven/haven/internal/progress"
	"go.uber.org/zap"
)

// libraryIndexFile is the metadata index a media source must provide
const libraryIndexFile = "library.json"

// libraryEntry is one record in the source's library index
type libraryEntry struct {
	Title  string   `json:"title"`
	File   string   `json:"file"`
	Rating float64  `json:"rating"`
	Year   int      `json:"year"`
	Genres []string `json:"genres"`
}

// MediaHandler syncs a media library by metadata: rating/year/genre filters,
// weighted priority score, highest first, budget-capped
type MediaHandler struct {
	name   string
	cfg    config.ContentTypeConfig
	logger *logging.SafeLogger
}

// NewMediaHandler creates a handler for a media-library content type
func NewMediaHandler(name string, cfg config.ContentTypeConfig) *MediaHandler {
	return &MediaHandler{
		name:   name,
		cfg:    cfg,
		logger: logging.Logger.With(zap.String("handler", name)),
	}
}

func (h *MediaHandler) Name() string {
	return h.name
}

// Sync loads the library index, selects items by filter/priority/budget and
// copies the selected media files into local storage
func (h *MediaHandler) Sync(ctx context.Context, tracker *progress.Tracker) (Stats, error) {
	items, err := h.loadLibrary()
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

		dst := filepath.Join(h.cfg.LocalPath, filepath.Base(item.Path))
		if !upToDate(dst, item.SizeBytes) {
			if err := copyFile(item.Path, dst); err != nil {
				tracker.MarkItemFailed()
				return stats, fmt.Errorf("failed to copy %s: %w", item.Name, err)
			}
		}
		stats.ItemsProcessed++
		stats.TotalBytes += item.SizeBytes
		tracker.UpdateProgress(int64(stats.ItemsProcessed), stats.TotalBytes)
	}

	h.logger.Info("media library sync complete",
		zap.Int("synced", stats.ItemsProcessed),
		zap.Int("skipped", stats.ItemsSkipped),
		zap.Int64("bytes", stats.TotalBytes))
	return stats, nil
}

// loadLibrary reads the source's metadata index and resolves each entry to a
// sized candidate item. Entries whose file is missing are dropped with a log
// line rather than failing the whole sync.
func (h *MediaHandler) loadLibrary() ([]ContentItem, error) {
	indexPath := filepath.Join(h.cfg.Source, libraryIndexFile)
	raw, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read library index %s: %w", indexPath, err)
	}

	var entries []libraryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse library index %s: %w", indexPath, err)
	}

	items := make([]ContentItem, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(h.cfg.Source, entry.File)
		info, err := os.Stat(path)
		if err != nil {
			h.logger.Warn("library entry file missing",
				zap.String("title", entry.Title),
				zap.String("file", entry.File))
			continue
		}
		items = append(items, ContentItem{
			Name:      entry.Title,
			Path:      path,
			SizeBytes: info.Size(),
			Rating:    entry.Rating,
			Year:      entry.Year,
			Genres:    entry.Genres,
		})
	}
	return items, nil
}
