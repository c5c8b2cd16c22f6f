package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gridhaven/haven/internal/config"
	"github.com/gridhaven/haven/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirUsage_SumsRegularFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), make([]byte, 1024), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.bin"), make([]byte, 2048), 0o644))

	usage := DirUsage(dir)
	assert.Equal(t, int64(3072), usage.Bytes)
	assert.Equal(t, int64(2), usage.Files)
	assert.Equal(t, "3.00 KB", usage.Size)
}

func TestDirUsage_MissingDirIsZero(t *testing.T) {
	usage := DirUsage("/nonexistent/haven/path")
	assert.Zero(t, usage.Bytes)
	assert.Zero(t, usage.Files)
}

func TestDiskUsage_ReportsVolume(t *testing.T) {
	stats, err := DiskUsage(t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, stats.TotalBytes)
	assert.GreaterOrEqual(t, stats.UsedPercent, 0.0)
	assert.LessOrEqual(t, stats.UsedPercent, 100.0)
	assert.NotEmpty(t, stats.Total)
}

func TestDiskUsage_BadPath(t *testing.T) {
	_, err := DiskUsage("/nonexistent/haven/path")
	require.Error(t, err)
}

func TestCollect_CoversEveryContentType(t *testing.T) {
	base := t.TempDir()
	archiveDir := filepath.Join(base, "archive")
	require.NoError(t, os.MkdirAll(archiveDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(archiveDir, "pkg.tar"), make([]byte, 512), 0o644))

	cfg := &config.Config{
		Storage: config.StorageConfig{BasePath: base},
		ContentTypes: map[string]config.ContentTypeConfig{
			"archive": {LocalPath: archiveDir},
			"zim":     {LocalPath: filepath.Join(base, "zim")},
		},
	}

	report, err := Collect(cfg)
	require.NoError(t, err)
	assert.Len(t, report.ContentTypes, 2)
	assert.Equal(t, int64(512), report.ContentTypes["archive"].Bytes)
	assert.Zero(t, report.ContentTypes["zim"].Bytes)
}

func TestHealthCheck_UnreadableVolumeIsDown(t *testing.T) {
	check := HealthCheck("/nonexistent/haven/path")
	result := check(context.Background())
	assert.Equal(t, service.StatusDown, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestHealthCheck_ReadableVolumeReportsDetails(t *testing.T) {
	check := HealthCheck(t.TempDir())
	result := check(context.Background())
	assert.Contains(t, result.Details, "used_percent")
	assert.NotEqual(t, "", string(result.Status))
}
