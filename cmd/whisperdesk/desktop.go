package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var desktopCmd = &cobra.Command{
	Use:   "desktop",
	Short: "Open the desktop window",
	Args:  cobra.NoArgs,
	RunE:  withSession(runDesktop),
}

func init() {
	rootCmd.AddCommand(desktopCmd)
}

func runDesktop(_ *cobra.Command, s *session, _ []string) error {
	if _, err := s.app.RecoverInterrupted(); err != nil {
		s.logger.Warn("recover interrupted jobs", zap.Error(err))
	}
	return s.app.Run()
}
