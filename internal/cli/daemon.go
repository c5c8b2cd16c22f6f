package cli

import (
	"context"
	"fmt"

	"github.com/gridhaven/haven/internal/config"
	"github.com/gridhaven/haven/internal/logging"
	"github.com/gridhaven/haven/internal/observability"
	"github.com/gridhaven/haven/internal/scheduler"
	"github.com/gridhaven/haven/internal/server"
	"github.com/gridhaven/haven/internal/service"
	"github.com/gridhaven/haven/internal/storage"
	"github.com/gridhaven/haven/internal/syncengine"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// daemonRunner wires the engine, the HTTP server and the scheduled sync
// tasks into the service lifecycle
type daemonRunner struct {
	svc    *service.BaseService
	engine *syncengine.Engine
	srv    *server.Server
}

// InitializeComponents builds the engine and its handlers, registers health
// checks and schedules one task per content type with a cron expression
func (r *daemonRunner) InitializeComponents(ctx context.Context, cfg *config.Config) error {
	r.engine = syncengine.New(cfg, r.svc.Progress(), r.svc.Notifier())
	syncengine.BuildHandlers(r.engine, cfg)

	r.svc.Health().Register("storage", true, storage.HealthCheck(cfg.Storage.BasePath))

	for name, ct := range cfg.ContentTypes {
		if ct.Schedule == "" {
			continue
		}
		name := name
		err := r.svc.Scheduler().Schedule("sync-"+name, ct.Schedule, func(ctx context.Context) error {
			ran, err := r.engine.SyncContentType(ctx, name)
			if !ran {
				// busy engine skips are not failures for the tick
				return nil
			}
			return err
		}, scheduler.TaskOptions{
			Name:              fmt.Sprintf("%s sync", name),
			EnableHealthCheck: true,
			RetryOnFailure:    false, // the engine already retries internally
			NotifyOnFailure:   true,
		})
		if err != nil {
			return err
		}
	}

	r.srv = server.New(cfg.Server, server.Deps{
		Engine:   r.engine,
		Progress: r.svc.Progress(),
		Health:   r.svc.Health(),
	})
	return nil
}

// StartService starts tracing and the HTTP endpoint
func (r *daemonRunner) StartService(ctx context.Context) error {
	observability.InitTracer()

	go func() {
		if err := r.srv.Start(); err != nil {
			logging.Logger.Error("http server exited", zap.Error(err))
		}
	}()
	return nil
}

// StopService drains the HTTP server and flushes tracing
func (r *daemonRunner) StopService(ctx context.Context) error {
	err := r.srv.Shutdown(ctx)
	observability.ShutdownTracer()
	return err
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner := &daemonRunner{}
		svc := service.New(service.Options{
			Name:       "haven-sync",
			ConfigPath: cfgPath,
		}, runner)
		runner.svc = svc

		ctx := cmd.Context()
		if err := svc.Initialize(ctx); err != nil {
			return err
		}
		if err := svc.Start(ctx); err != nil {
			return err
		}

		svc.WaitForShutdown()
		return nil
	},
}
