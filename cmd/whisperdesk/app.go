package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"whisper-desk/internal/bootstrap"
	"whisper-desk/internal/config"
	"whisper-desk/internal/domain"
	"whisper-desk/internal/observability"
)

// session bundles what every command needs once flags are parsed.
type session struct {
	ctx    context.Context
	cfg    *config.Config
	logger *zap.Logger
	app    *bootstrap.App
	stop   func()
}

func loadConfig() (*config.Config, error) {
	var opts []config.LoadOption
	if configFile != "" {
		opts = append(opts, config.WithFile(configFile))
	}
	if dataRoot != "" {
		opts = append(opts, config.WithOverride("data_root", dataRoot))
	}
	if logLevel != "" {
		opts = append(opts, config.WithOverride("logging.level", logLevel))
	}
	return config.Load(opts...)
}

// openSession resolves config, builds the logger and wires the application.
// The returned context is cancelled on SIGINT or SIGTERM.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(observability.LoggerOptions{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		cancel()
		_ = logger.Sync()
		return nil, fmt.Errorf("initialize: %w", err)
	}

	return &session{
		ctx:    ctx,
		cfg:    cfg,
		logger: logger,
		app:    app,
		stop: func() {
			app.Close()
			cancel()
			_ = logger.Sync()
		},
	}, nil
}

// withSession runs fn against a freshly opened session and always closes it.
func withSession(fn func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.stop()
		return fn(cmd, s, args)
	}
}

// resolveJobID accepts a full job id or a unique prefix of one.
func resolveJobID(app *bootstrap.App, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", &domain.ValidationError{Field: "job_id", Message: "job id is required"}
	}
	if _, err := app.GetHistory(ref); err == nil {
		return ref, nil
	} else if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrInvalidInput) {
		return "", err
	}

	records, err := app.Store.LoadIndex()
	if err != nil {
		return "", err
	}
	var matches []string
	for _, rec := range records {
		if strings.HasPrefix(rec.ID, ref) {
			matches = append(matches, rec.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: no job matches %q", domain.ErrNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return "", &domain.ValidationError{Field: "job_id", Message: fmt.Sprintf("%q is ambiguous (%d jobs match)", ref, len(matches))}
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
