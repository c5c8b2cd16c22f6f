package syncengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gridhaven/haven/internal/config"
	"github.com/gridhaven/haven/internal/logging"
	"github.com/gridhaven/haven/internal/progress"
	"go.uber.org/zap"
)

// ZimPackage is one package version available in the mirror listing.
// File names follow <package>_<version>.zim, e.g. wikipedia_2026-07.zim.
type ZimPackage struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	File      string `json:"file"`
	SizeBytes int64  `json:"size_bytes"`
	Size      string `json:"size"`
	Installed bool   `json:"installed"`
}

// ZimHandler mirrors ZIM packages from a mirror listing, keeping only the
// newest version of each package
type ZimHandler struct {
	name   string
	cfg    config.ContentTypeConfig
	logger *logging.SafeLogger
}

// NewZimHandler creates a handler for a ZIM-mirror content type
func NewZimHandler(name string, cfg config.ContentTypeConfig) *ZimHandler {
	return &ZimHandler{
		name:   name,
		cfg:    cfg,
		logger: logging.Logger.With(zap.String("handler", name)),
	}
}

func (h *ZimHandler) Name() string {
	return h.name
}

// Sync selects the newest version of each included package within the size
// budget and copies the selected files into local storage
func (h *ZimHandler) Sync(ctx context.Context, tracker *progress.Tracker) (Stats, error) {
	packages, err := h.ListAvailable()
	if err != nil {
		return Stats{}, err
	}

	items := make([]ContentItem, 0, len(packages))
	for _, pkg := range packages {
		items = append(items, ContentItem{
			Name:      pkg.Name,
			Path:      filepath.Join(h.cfg.Source, pkg.File),
			SizeBytes: pkg.SizeBytes,
			Version:   pkg.Version,
		})
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

		if err := h.install(item); err != nil {
			tracker.MarkItemFailed()
			return stats, err
		}
		stats.ItemsProcessed++
		stats.TotalBytes += item.SizeBytes
		tracker.UpdateProgress(int64(stats.ItemsProcessed), stats.TotalBytes)
	}

	h.logger.Info("zim mirror sync complete",
		zap.Int("packages", stats.ItemsProcessed),
		zap.Int("skipped", stats.ItemsSkipped),
		zap.Int64("bytes", stats.TotalBytes))
	return stats, nil
}

// install copies one package file and removes superseded local versions
func (h *ZimHandler) install(item ContentItem) error {
	dst := filepath.Join(h.cfg.LocalPath, filepath.Base(item.Path))
	if !upToDate(dst, item.SizeBytes) {
		if err := copyFile(item.Path, dst); err != nil {
			return fmt.Errorf("failed to install %s: %w", item.Name, err)
		}
	}

	// drop older versions of the same package
	entries, err := os.ReadDir(h.cfg.LocalPath)
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		name, version, ok := parseZimName(entry.Name())
		if !ok || name != item.Name || version == item.Version {
			continue
		}
		if err := os.Remove(filepath.Join(h.cfg.LocalPath, entry.Name())); err == nil {
			h.logger.Info("removed superseded package version",
				zap.String("package", name),
				zap.String("version", version))
		}
	}
	return nil
}

// ListAvailable scans the mirror listing and returns the newest version of
// each package, honoring the configured include list
func (h *ZimHandler) ListAvailable() ([]ZimPackage, error) {
	entries, err := os.ReadDir(h.cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to read mirror listing %s: %w", h.cfg.Source, err)
	}

	newest := make(map[string]ZimPackage)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, version, ok := parseZimName(entry.Name())
		if !ok {
			continue
		}
		if len(h.cfg.IncludeFolders) > 0 && !containsFold(h.cfg.IncludeFolders, name) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		// versions are date-stamped, so lexical comparison orders them
		if current, seen := newest[name]; !seen || version > current.Version {
			newest[name] = ZimPackage{
				Name:      name,
				Version:   version,
				File:      entry.Name(),
				SizeBytes: info.Size(),
				Size:      config.FormatSize(info.Size()),
			}
		}
	}

	packages := make([]ZimPackage, 0, len(newest))
	for _, pkg := range newest {
		pkg.Installed = upToDate(filepath.Join(h.cfg.LocalPath, pkg.File), pkg.SizeBytes)
		packages = append(packages, pkg)
	}
	sortPackages(packages)
	return packages, nil
}

// Download installs the newest version of one named package regardless of
// the sync schedule
func (h *ZimHandler) Download(ctx context.Context, pkgName string) (ZimPackage, error) {
	packages, err := h.ListAvailable()
	if err != nil {
		return ZimPackage{}, err
	}

	for _, pkg := range packages {
		if !strings.EqualFold(pkg.Name, pkgName) {
			continue
		}
		if ctx.Err() != nil {
			return ZimPackage{}, ctx.Err()
		}
		item := ContentItem{
			Name:      pkg.Name,
			Path:      filepath.Join(h.cfg.Source, pkg.File),
			SizeBytes: pkg.SizeBytes,
			Version:   pkg.Version,
		}
		if err := h.install(item); err != nil {
			return ZimPackage{}, err
		}
		pkg.Installed = true
		return pkg, nil
	}
	return ZimPackage{}, fmt.Errorf("package %q not found in mirror listing", pkgName)
}

// UpdateAll refreshes every locally installed package that has a newer
// version in the mirror, returning the packages that were updated
func (h *ZimHandler) UpdateAll(ctx context.Context) ([]ZimPackage, error) {
	available, err := h.ListAvailable()
	if err != nil {
		return nil, err
	}

	installed := make(map[string]string)
	if entries, err := os.ReadDir(h.cfg.LocalPath); err == nil {
		for _, entry := range entries {
			if name, version, ok := parseZimName(entry.Name()); ok {
				if current, seen := installed[name]; !seen || version > current {
					installed[name] = version
				}
			}
		}
	}

	var updated []ZimPackage
	for _, pkg := range available {
		current, have := installed[pkg.Name]
		if !have || current >= pkg.Version {
			continue
		}
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		item := ContentItem{
			Name:      pkg.Name,
			Path:      filepath.Join(h.cfg.Source, pkg.File),
			SizeBytes: pkg.SizeBytes,
			Version:   pkg.Version,
		}
		if err := h.install(item); err != nil {
			return updated, err
		}
		pkg.Installed = true
		updated = append(updated, pkg)
		h.logger.Info("package updated",
			zap.String("package", pkg.Name),
			zap.String("from", current),
			zap.String("to", pkg.Version))
	}
	return updated, nil
}

// parseZimName splits <package>_<version>.zim into its parts
func parseZimName(file string) (name, version string, ok bool) {
	if !strings.HasSuffix(file, ".zim") {
		return "", "", false
	}
	base := strings.TrimSuffix(file, ".zim")
	idx := strings.LastIndex(base, "_")
	if idx <= 0 || idx == len(base)-1 {
		return "", "", false
	}
	return base[:idx], base[idx+1:], true
}

// sortPackages orders packages by name for stable listings
func sortPackages(packages []ZimPackage) {
	sort.Slice(packages, func(i, j int) bool {
		return packages[i].Name < packages[j].Name
	})
}
