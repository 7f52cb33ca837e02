package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/resumind/resumind/internal/api"
	"github.com/resumind/resumind/internal/auth"
	"github.com/resumind/resumind/internal/config"
	"github.com/resumind/resumind/internal/logging"
	"github.com/resumind/resumind/internal/run"
	"github.com/resumind/resumind/internal/store"
	"github.com/resumind/resumind/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the resumind API server.

The server exposes the JSON API and the Server-Sent Events streams the
frontend consumes. Analyses keep running when the viewer disconnects;
reconnecting to the stream replays what was missed.

Examples:
  # Start with defaults (0.0.0.0:8000)
  resumind serve

  # Start on a custom host and port
  resumind serve --host 127.0.0.1 --port 3000`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "0.0.0.0",
		"Host address to bind to")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000,
		"Port to listen on")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(_ *cobra.Command, _ []string) error {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if file := loader.ConfigFile(); file != "" {
		logger.Info("loaded config", "file", file)
	}
	if cfg.Auth.Secret == config.DefaultAuthSecret {
		logger.Warn("auth.secret is the built-in development default; set RESUMIND_AUTH_SECRET before exposing this server")
	}

	steps, err := workflow.Steps()
	if err != nil {
		return fmt.Errorf("loading workflow steps: %w", err)
	}

	st, err := store.New(cfg.Database.Path, store.WithFinalStep(workflow.FinalStep(steps)))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Warn("closing database", "error", closeErr)
		}
	}()

	uploads, err := api.NewUploads(cfg.Uploads.Dir)
	if err != nil {
		return fmt.Errorf("preparing uploads dir: %w", err)
	}

	prompts, err := workflow.NewPrompts(cfg.Prompts.Dir, logger)
	if err != nil {
		return fmt.Errorf("loading prompts: %w", err)
	}

	registry := run.NewRegistry(run.Options{
		MaxConcurrent: cfg.Analysis.MaxConcurrent,
		QueueSize:     cfg.Analysis.QueueSize,
		SendTimeout:   cfg.Analysis.SendTimeout,
		Store:         st,
		Logger:        logger,
	})

	issuer := auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	// The run context outlives any single request but not the process:
	// cancelling it stops every in-flight analysis.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	server, err := api.NewServer(api.Options{
		Store:       st,
		Registry:    registry,
		Issuer:      issuer,
		Uploads:     uploads,
		Prompts:     prompts,
		Steps:       steps,
		BaseContext: gctx,
		Settings: api.Settings{
			TestEmail:         cfg.Auth.TestEmail,
			TestPassword:      cfg.Auth.TestPassword,
			KeepConversations: cfg.Analysis.KeepConversations,
			MaxResumes:        cfg.Analysis.MaxResumes,
			MaxUploadBytes:    cfg.Uploads.MaxSizeMB << 20,
			Temperature:       cfg.Analysis.Temperature,
			CORSOrigins:       cfg.Server.CORSOrigins,
		},
		Logger:  logger,
		Version: appVersion,
	})
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))

	g.Go(func() error {
		return server.ListenAndServe(gctx, addr)
	})
	g.Go(func() error {
		if err := prompts.Watch(gctx); err != nil {
			return fmt.Errorf("watching prompts: %w", err)
		}
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("server stopped")
	return nil
}
