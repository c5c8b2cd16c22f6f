package cli

import (
	"fmt"
	"time"

	"github.com/gridhaven/haven/internal/config"
	"github.com/gridhaven/haven/internal/service"
	"github.com/gridhaven/haven/internal/storage"
	"github.com/gridhaven/haven/internal/syncengine"
	"github.com/spf13/cobra"
)

var syncAllCmd = &cobra.Command{
	Use:   "sync-all",
	Short: "Sync every configured content type sequentially",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, engine, err := loadEngine()
		if err != nil {
			return err
		}

		results := engine.SyncAll(cmd.Context())
		if jsonOut {
			if err := printJSON(results); err != nil {
				return err
			}
		} else {
			for name, result := range results {
				fmt.Printf("%-12s %s  items=%d  size=%s  duration=%s\n",
					name, statusWord(result.Success), result.ItemsProcessed,
					config.FormatSize(result.TotalSize), result.Duration.Round(time.Millisecond))
			}
		}

		for name, result := range results {
			if !result.Success {
				return fmt.Errorf("sync of %s failed: %v", name, result.Errors)
			}
		}
		return nil
	},
}

var syncContentCmd = &cobra.Command{
	Use:   "sync-content <type>",
	Short: "Sync one content type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, engine, err := loadEngine()
		if err != nil {
			return err
		}

		ran, err := engine.SyncContentType(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ran {
			return fmt.Errorf("sync of %s skipped: another sync is running", args[0])
		}

		status := engine.Status()
		if jsonOut {
			return printJSON(status.Results[0])
		}
		result := status.Results[0]
		fmt.Printf("%s: %s  items=%d  size=%s  duration=%s\n",
			result.ContentType, statusWord(result.Success), result.ItemsProcessed,
			config.FormatSize(result.TotalSize), result.Duration.Round(time.Millisecond))
		return nil
	},
}

var storageStatsCmd = &cobra.Command{
	Use:   "storage-stats",
	Short: "Show storage volume and per-content-type usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		report, err := storage.Collect(cfg)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(report)
		}

		fmt.Printf("volume %s: %s used of %s (%.1f%%), %s free\n",
			report.Disk.Path, report.Disk.Used, report.Disk.Total,
			report.Disk.UsedPercent, report.Disk.Free)
		for name, usage := range report.ContentTypes {
			fmt.Printf("%-12s %8s  %d files\n", name, usage.Size, usage.Files)
		}
		return nil
	},
}

var listAvailableCmd = &cobra.Command{
	Use:   "list-available",
	Short: "List packages available in the mirror",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, engine, err := loadEngine()
		if err != nil {
			return err
		}
		zim, err := zimHandler(engine)
		if err != nil {
			return err
		}

		packages, err := zim.ListAvailable()
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(packages)
		}

		for _, pkg := range packages {
			marker := " "
			if pkg.Installed {
				marker = "*"
			}
			fmt.Printf("%s %-24s %-10s %s\n", marker, pkg.Name, pkg.Version, pkg.Size)
		}
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <package>",
	Short: "Download the newest version of one package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, engine, err := loadEngine()
		if err != nil {
			return err
		}
		zim, err := zimHandler(engine)
		if err != nil {
			return err
		}

		pkg, err := zim.Download(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(pkg)
		}
		fmt.Printf("downloaded %s %s (%s)\n", pkg.Name, pkg.Version, pkg.Size)
		return nil
	},
}

var updateAllCmd = &cobra.Command{
	Use:   "update-all",
	Short: "Update every installed package with a newer mirror version",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, engine, err := loadEngine()
		if err != nil {
			return err
		}
		zim, err := zimHandler(engine)
		if err != nil {
			return err
		}

		updated, err := zim.UpdateAll(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(updated)
		}
		if len(updated) == 0 {
			fmt.Println("all packages up to date")
			return nil
		}
		for _, pkg := range updated {
			fmt.Printf("updated %s to %s (%s)\n", pkg.Name, pkg.Version, pkg.Size)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sync history and storage usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, engine, err := loadEngine()
		if err != nil {
			return err
		}

		report, err := storage.Collect(cfg)
		if err != nil {
			return err
		}

		combined := struct {
			Engine  syncengine.EngineStatus `json:"engine"`
			Storage storage.Report          `json:"storage"`
		}{
			Engine:  engine.Status(),
			Storage: report,
		}
		if jsonOut {
			return printJSON(combined)
		}

		fmt.Printf("content types: %v\n", combined.Engine.RegisteredTypes)
		fmt.Printf("volume: %s used of %s (%.1f%%)\n",
			report.Disk.Used, report.Disk.Total, report.Disk.UsedPercent)
		for name, usage := range report.ContentTypes {
			fmt.Printf("%-12s %8s  %d files\n", name, usage.Size, usage.Files)
		}
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Evaluate service health checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		registry := service.NewHealthRegistry()
		registry.Register("storage", true, storage.HealthCheck(cfg.Storage.BasePath))

		report := registry.RunChecks(cmd.Context())
		if jsonOut {
			if err := printJSON(report); err != nil {
				return err
			}
		} else {
			fmt.Printf("status: %s\n", report.Status)
			for name, result := range report.Components {
				fmt.Printf("%-12s %-8s %s\n", name, result.Status, result.Message)
			}
		}

		if report.Status == service.OverallError {
			return fmt.Errorf("service health is %s", report.Status)
		}
		return nil
	},
}

// statusWord renders a result's success flag for the human-readable output
func statusWord(success bool) string {
	if success {
		return "ok"
	}
	return "FAILED"
}
