package main

import (
	"context"
	"os"

	"github.com/example/task-tracker/config"
	"github.com/example/task-tracker/logging"
	"github.com/example/task-tracker/modules/activity"
	"github.com/example/task-tracker/modules/api"
	"github.com/example/task-tracker/modules/auth"
	"github.com/example/task-tracker/modules/storage"
	"github.com/example/task-tracker/modules/tasks"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	flag "github.com/spf13/pflag"
)

func main() {
	fs := flag.NewFlagSet("task-tracker", flag.ExitOnError)
	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		logging.Logger().WithError(err).Fatal("invalid configuration")
	}

	log := logging.Init(cfg.Log.Level, cfg.Log.Format).WithField("module", "main")
	log.Infof("=== %s %s ===", cfg.Name, cfg.Version)
	if cfg.UsesDevSecret() {
		log.Warn("using the built-in JWT secret; set JWT_SECRET outside local development")
	}

	monoLevel := mono.LogLevelInfo
	if cfg.Log.Level == "warn" || cfg.Log.Level == "error" {
		monoLevel = mono.LogLevelError
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout.Duration),
		mono.WithLogLevel(monoLevel),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to create application")
	}

	// The framework calls SetPlugin("storage", ...) on every module that
	// implements UsePluginModule.
	if err := app.RegisterPlugin(storage.NewPluginModule(cfg.Database), "storage"); err != nil {
		log.WithError(err).Fatal("failed to register storage plugin")
	}

	// Order: independent modules first, then dependent modules
	modules := []mono.Module{
		auth.NewModule(cfg.Auth, cfg.Redis),
		tasks.NewModule(),
		activity.NewModule(activity.DefaultFeedSize),
		api.NewModule(cfg),
	}
	for _, m := range modules {
		if err := app.Register(m); err != nil {
			log.WithError(err).Fatalf("failed to register %s module", m.Name())
		}
	}

	if err := app.Start(context.Background()); err != nil {
		log.WithError(err).Fatal("failed to start application")
	}

	log.WithField("addr", cfg.HTTP.Addr).Info("application started, press Ctrl+C to shut down")

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout.Duration,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Info("graceful shutdown initiated")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Infof("application exited with code %d", exitCode)
	os.Exit(exitCode)
}
