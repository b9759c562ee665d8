package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/dats-backend/internal/app"
	types "github.com/yungbote/dats-backend/internal/domain"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dats",
		Short:         "Document preprocessing and analysis backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newWorkerCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and an in-process cpu worker when WORKER_INPROCESS=true)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				ctx, cancel := context.WithCancel(ctx)
				defer cancel()
				if a.Cfg.WorkerInProcess {
					if err := a.StartWorkers(ctx, types.Device(a.Cfg.WorkerDevice)); err != nil {
						return err
					}
				}
				err := a.Serve(ctx)
				cancel()
				a.Wait()
				return err
			})
		},
	}
}

func newWorkerCmd() *cobra.Command {
	var device string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run job worker loops for one device",
		Long: `Run job worker loops for one device.

Examples:
  dats worker --device cpu
  dats worker --device gpu`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				if err := a.StartWorkers(ctx, types.Device(strings.ToLower(strings.TrimSpace(device)))); err != nil {
					return err
				}
				<-ctx.Done()
				a.Wait()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&device, "device", string(types.DeviceCPU), "worker device: cpu or gpu")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := app.NewLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			return app.Migrate(log)
		},
	}
}

// withApp builds the application, runs fn until SIGINT/SIGTERM and closes
// everything afterwards.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, err := app.NewLogger()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, log)
	if err != nil {
		log.Error("App init failed", "error", err)
		log.Sync()
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
