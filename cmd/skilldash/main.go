package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ent0n29/skilldash/internal/app"
	"github.com/ent0n29/skilldash/internal/config"
	"github.com/ent0n29/skilldash/internal/extraction"
	"github.com/ent0n29/skilldash/internal/logging"
	"github.com/ent0n29/skilldash/internal/skill"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

type cliEnv struct {
	envFile string
	stdout  io.Writer
	stderr  io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	env := &cliEnv{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:          "skilldash",
		Short:        "Skill dashboard extraction service",
		Long:         "skilldash turns chat messages and voice transcripts into structured skill records and serves the skill dashboard API.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), env)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.PersistentFlags().StringVar(&env.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP and WebSocket API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), env)
			},
		},
		newChatCmd(env),
		&cobra.Command{
			Use:   "voice <transcript>",
			Short: "Extract a complete skill draft from a transcript",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runVoice(cmd.Context(), env, strings.Join(args, " "))
			},
		},
	)
	return rootCmd
}

func newChatCmd(env *cliEnv) *cobra.Command {
	var clientKey string
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Run one chat turn through the extraction pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), env, clientKey, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&clientKey, "client", "cli", "rate limit key for this invocation")
	return cmd
}

func bootstrap(env *cliEnv) (config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(env.envFile); err != nil {
		return config.Config{}, nil, fmt.Errorf("dotenv: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config error: %w", err)
	}
	logger, err := logging.Init(env.stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("logging: %w", err)
	}
	return cfg, logger, nil
}

func runServe(ctx context.Context, env *cliEnv) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger, err := bootstrap(env)
	if err != nil {
		return err
	}

	built, err := app.Build(ctx, cfg, app.Options{
		Logger:     logger,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return err
	}
	defer cleanup(built, logger)
	logger.Info("completion provider", "provider", built.Completion.Provider, "detail", built.Completion.Detail)

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, runCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer runCancel()
	built.Sessions.StartJanitor(runCtx, 5*time.Second)

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("listen error: %w", err)
		}
		return nil
	case <-runCtx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
	return nil
}

type chatOutput struct {
	Message   string        `json:"message"`
	SkillData *skill.Update `json:"skillData"`
}

func runChat(ctx context.Context, env *cliEnv, clientKey, message string) error {
	built, logger, err := buildOneShot(ctx, env)
	if err != nil {
		return err
	}
	defer cleanup(built, logger)

	res, err := built.Chat.Extract(ctx, extraction.ChatRequest{
		ClientKey: clientKey,
		Message:   message,
	})
	if err != nil {
		return err
	}
	return writeJSON(env.stdout, chatOutput{Message: res.Reply, SkillData: res.Update})
}

func runVoice(ctx context.Context, env *cliEnv, transcript string) error {
	built, logger, err := buildOneShot(ctx, env)
	if err != nil {
		return err
	}
	defer cleanup(built, logger)

	draft, err := built.Voice.Extract(ctx, transcript)
	if err != nil {
		return err
	}
	return writeJSON(env.stdout, draft)
}

func buildOneShot(ctx context.Context, env *cliEnv) (*app.BuildResult, *slog.Logger, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger, err := bootstrap(env)
	if err != nil {
		return nil, nil, err
	}
	built, err := app.Build(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	return built, logger, nil
}

// cleanup releases the database and Redis handles, logging any close error.
func cleanup(built *app.BuildResult, logger *slog.Logger) {
	if err := built.Cleanup(); err != nil {
		logger.Error("cleanup failed", "error", err)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
