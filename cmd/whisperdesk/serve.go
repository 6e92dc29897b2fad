package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"whisper-desk/internal/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP and WebSocket API",
	Args:  cobra.NoArgs,
	RunE:  withSession(runServe),
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, s *session, _ []string) error {
	if ids, err := s.app.RecoverInterrupted(); err != nil {
		s.logger.Warn("recover interrupted jobs", zap.Error(err))
	} else if len(ids) > 0 {
		s.logger.Info("marked interrupted jobs as failed", zap.Strings("job_ids", ids))
	}

	cfg := s.cfg.Server
	if cmd.Flags().Changed("host") {
		cfg.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}
	return server.New(s.app, cfg, s.logger).Start(s.ctx)
}
