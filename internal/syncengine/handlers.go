package syncengine

import (
	"strings"

	"github.com/gridhaven/haven/internal/config"
)

// NewHandler builds the handler for a named content type. Dispatch is by
// name: "media" gets the metadata-driven library handler, "zim" the
// versioned mirror handler, everything else the plain directory mirror.
func NewHandler(name string, cfg config.ContentTypeConfig) Handler {
	switch strings.ToLower(name) {
	case "media", "plex":
		return NewMediaHandler(name, cfg)
	case "zim", "kiwix":
		return NewZimHandler(name, cfg)
	default:
		return NewArchiveHandler(name, cfg)
	}
}

// BuildHandlers creates one handler per configured content type and registers
// them on the engine
func BuildHandlers(e *Engine, cfg *config.Config) {
	for name, ct := range cfg.ContentTypes {
		e.Register(NewHandler(name, ct))
	}
}
