package syncengine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gridhaven/haven/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newZimHandler(t *testing.T) (*ZimHandler, string, string) {
	t.Helper()
	src := t.TempDir()
	dst := t.TempDir()
	h := NewZimHandler("zim", config.ContentTypeConfig{Source: src, LocalPath: dst})
	return h, src, dst
}

func TestParseZimName(t *testing.T) {
	name, version, ok := parseZimName("wikipedia_en_2026-07.zim")
	require.True(t, ok)
	assert.Equal(t, "wikipedia_en", name)
	assert.Equal(t, "2026-07", version)

	_, _, ok = parseZimName("readme.txt")
	assert.False(t, ok)
	_, _, ok = parseZimName("noversion.zim")
	assert.False(t, ok)
}

func TestZimHandler_ListAvailablePicksNewest(t *testing.T) {
	h, src, _ := newZimHandler(t)
	writeFile(t, filepath.Join(src, "wikipedia_2026-01.zim"), 10)
	writeFile(t, filepath.Join(src, "wikipedia_2026-07.zim"), 20)
	writeFile(t, filepath.Join(src, "wiktionary_2026-05.zim"), 30)
	writeFile(t, filepath.Join(src, "notes.txt"), 5)

	packages, err := h.ListAvailable()
	require.NoError(t, err)
	require.Len(t, packages, 2)
	assert.Equal(t, "wikipedia", packages[0].Name)
	assert.Equal(t, "2026-07", packages[0].Version)
	assert.Equal(t, "wiktionary", packages[1].Name)
	assert.False(t, packages[0].Installed)
}

func TestZimHandler_IncludeListFilters(t *testing.T) {
	h, src, _ := newZimHandler(t)
	h.cfg.IncludeFolders = []string{"wikipedia"}
	writeFile(t, filepath.Join(src, "wikipedia_2026-07.zim"), 10)
	writeFile(t, filepath.Join(src, "wiktionary_2026-05.zim"), 10)

	packages, err := h.ListAvailable()
	require.NoError(t, err)
	require.Len(t, packages, 1)
	assert.Equal(t, "wikipedia", packages[0].Name)
}

func TestZimHandler_SyncInstallsNewestAndDropsOld(t *testing.T) {
	h, src, dst := newZimHandler(t)
	writeFile(t, filepath.Join(src, "wikipedia_2026-07.zim"), 20)
	// stale local version from an earlier sync
	writeFile(t, filepath.Join(dst, "wikipedia_2026-01.zim"), 10)

	stats, err := h.Sync(context.Background(), newTestTracker())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ItemsProcessed)
	assert.FileExists(t, filepath.Join(dst, "wikipedia_2026-07.zim"))
	assert.NoFileExists(t, filepath.Join(dst, "wikipedia_2026-01.zim"))
}

func TestZimHandler_Download(t *testing.T) {
	h, src, dst := newZimHandler(t)
	writeFile(t, filepath.Join(src, "wikipedia_2026-07.zim"), 20)

	pkg, err := h.Download(context.Background(), "wikipedia")
	require.NoError(t, err)
	assert.True(t, pkg.Installed)
	assert.FileExists(t, filepath.Join(dst, "wikipedia_2026-07.zim"))

	_, err = h.Download(context.Background(), "unknown")
	require.Error(t, err)
}

func TestZimHandler_UpdateAll(t *testing.T) {
	h, src, dst := newZimHandler(t)
	writeFile(t, filepath.Join(src, "wikipedia_2026-07.zim"), 20)
	writeFile(t, filepath.Join(src, "wiktionary_2026-05.zim"), 30)
	// wikipedia installed but stale, wiktionary not installed at all
	writeFile(t, filepath.Join(dst, "wikipedia_2026-01.zim"), 10)

	updated, err := h.UpdateAll(context.Background())
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "wikipedia", updated[0].Name)
	assert.FileExists(t, filepath.Join(dst, "wikipedia_2026-07.zim"))
	assert.NoFileExists(t, filepath.Join(dst, "wikipedia_2026-01.zim"))
	// update-all never installs packages that were not already present
	assert.NoFileExists(t, filepath.Join(dst, "wiktionary_2026-05.zim"))
}

func TestBuildHandlers_DispatchByName(t *testing.T) {
	cfg := &config.Config{
		ContentTypes: map[string]config.ContentTypeConfig{
			"archive": {Source: "/src", LocalPath: "/dst"},
			"media":   {Source: "/src", LocalPath: "/dst"},
			"zim":     {Source: "/src", LocalPath: "/dst"},
		},
	}
	e := newTestEngine()
	BuildHandlers(e, cfg)

	assert.IsType(t, &ArchiveHandler{}, e.Handler("archive"))
	assert.IsType(t, &MediaHandler{}, e.Handler("media"))
	assert.IsType(t, &ZimHandler{}, e.Handler("zim"))
}
