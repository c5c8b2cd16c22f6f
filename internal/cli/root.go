package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gridhaven/haven/internal/config"
	"github.com/gridhaven/haven/internal/notify"
	"github.com/gridhaven/haven/internal/progress"
	"github.com/gridhaven/haven/internal/syncengine"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:           "haven-sync",
	Short:         "Content sync service for offline content hubs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to the service config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "machine-readable JSON output")

	rootCmd.AddCommand(
		runCmd,
		syncAllCmd,
		syncContentCmd,
		storageStatsCmd,
		listAvailableCmd,
		downloadCmd,
		updateAllCmd,
		statsCmd,
		healthCmd,
	)
}

// Execute runs the CLI; every failure path exits non-zero with one error line
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if jsonOut {
			out, _ := json.Marshal(map[string]string{"error": err.Error()})
			fmt.Fprintln(os.Stderr, string(out))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// loadEngine builds a one-shot engine for CLI commands that sync directly
// without the daemon lifecycle
func loadEngine() (*config.Config, *syncengine.Engine, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	engine := syncengine.New(cfg, progress.NewManager(), notify.New(cfg.Notifications))
	syncengine.BuildHandlers(engine, cfg)
	return cfg, engine, nil
}

// zimHandler finds the versioned-mirror handler among the configured content
// types; the package commands only make sense for that handler kind
func zimHandler(engine *syncengine.Engine) (*syncengine.ZimHandler, error) {
	for _, name := range engine.RegisteredTypes() {
		if h, ok := engine.Handler(name).(*syncengine.ZimHandler); ok {
			return h, nil
		}
	}
	return nil, fmt.Errorf("no zim content type configured")
}

// printJSON writes v as indented JSON to stdout
func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
