package storage

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"syscall"

	"github.com/gridhaven/haven/internal/config"
	"github.com/gridhaven/haven/internal/service"
)

// DiskStats is the filesystem-level view of the storage volume
type DiskStats struct {
	Path        string  `json:"path"`
	TotalBytes  int64   `json:"total_bytes"`
	FreeBytes   int64   `json:"free_bytes"`
	UsedBytes   int64   `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
	Total       string  `json:"total"`
	Free        string  `json:"free"`
	Used        string  `json:"used"`
}

// Usage is the on-disk footprint of one content type
type Usage struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
	Size  string `json:"size"`
	Files int64  `json:"files"`
}

// Report combines volume stats with per-content-type usage
type Report struct {
	Disk         DiskStats        `json:"disk"`
	ContentTypes map[string]Usage `json:"content_types"`
}

// DiskUsage reads filesystem stats for the volume containing path
func DiskUsage(path string) (DiskStats, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return DiskStats{}, fmt.Errorf("failed to stat filesystem at %s: %w", path, err)
	}

	total := int64(stat.Blocks) * int64(stat.Bsize)
	free := int64(stat.Bavail) * int64(stat.Bsize)
	used := total - free

	stats := DiskStats{
		Path:       path,
		TotalBytes: total,
		FreeBytes:  free,
		UsedBytes:  used,
		Total:      config.FormatSize(total),
		Free:       config.FormatSize(free),
		Used:       config.FormatSize(used),
	}
	if total > 0 {
		stats.UsedPercent = float64(used) / float64(total) * 100
	}
	return stats, nil
}

// DirUsage walks a directory tree summing file sizes. A missing directory
// reports zero usage rather than an error; content may simply not have
// synced yet.
func DirUsage(path string) Usage {
	usage := Usage{Path: path}

	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				usage.Bytes += info.Size()
				usage.Files++
			}
		}
		return nil
	})

	usage.Size = config.FormatSize(usage.Bytes)
	return usage
}

// Collect builds the full storage report for a service config
func Collect(cfg *config.Config) (Report, error) {
	disk, err := DiskUsage(cfg.Storage.BasePath)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Disk:         disk,
		ContentTypes: make(map[string]Usage, len(cfg.ContentTypes)),
	}
	for name, ct := range cfg.ContentTypes {
		report.ContentTypes[name] = DirUsage(ct.LocalPath)
	}
	return report, nil
}

// HealthCheck returns a component check for the storage volume: DEGRADED
// above 80% used, DOWN above 95% or when the volume cannot be read
func HealthCheck(basePath string) service.CheckFunc {
	return func(ctx context.Context) service.CheckResult {
		disk, err := DiskUsage(basePath)
		if err != nil {
			return service.CheckResult{
				Status:  service.StatusDown,
				Message: "storage volume unreadable",
				Error:   err.Error(),
			}
		}

		details := map[string]interface{}{
			"total":        disk.Total,
			"free":         disk.Free,
			"used_percent": disk.UsedPercent,
		}

		switch {
		case disk.UsedPercent > 95:
			return service.CheckResult{
				Status:  service.StatusDown,
				Message: fmt.Sprintf("storage critically full: %.1f%% used", disk.UsedPercent),
				Details: details,
			}
		case disk.UsedPercent > 80:
			return service.CheckResult{
				Status:  service.StatusDegraded,
				Message: fmt.Sprintf("storage filling up: %.1f%% used", disk.UsedPercent),
				Details: details,
			}
		default:
			return service.CheckResult{Status: service.StatusUp, Details: details}
		}
	}
}
