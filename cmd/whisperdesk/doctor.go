package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"whisper-desk/internal/domain"
)

var (
	doctorJSON bool
	doctorFix  []string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the engine, tools, models and data directory",
	Long: `Doctor runs environment checks and prints one line per item. It exits
non-zero when any check fails. --fix <item> attempts the remediation for an
item (engine, models, default_model, data_root, tool_git, tool_cmake) first.`,
	Args: cobra.NoArgs,
	RunE: withSession(runDoctor),
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Print the report as JSON")
	doctorCmd.Flags().StringSliceVar(&doctorFix, "fix", nil, "Diagnostic items to remediate before reporting")
	rootCmd.AddCommand(doctorCmd)
}

var errDiagnosticsFailed = errors.New("one or more checks failed")

func runDoctor(cmd *cobra.Command, s *session, _ []string) error {
	report := s.app.GetDiagnostics()
	for _, item := range doctorFix {
		fmt.Fprintf(cmd.ErrOrStderr(), "Fixing %s...\n", item)
		fixed, err := s.app.FixDiagnostic(strings.TrimSpace(item))
		if err != nil {
			return fmt.Errorf("fix %s: %w", item, err)
		}
		report = fixed
	}

	if doctorJSON {
		if err := printJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		for _, item := range report.Items {
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %-16s %s\n", statusLabel(item.Status), item.ID, item.Message)
			if item.Hint != "" && item.Status != domain.DiagnosticStatusPass {
				fmt.Fprintf(cmd.OutOrStdout(), "       %-16s hint: %s\n", "", item.Hint)
			}
		}
	}

	if report.HasFailures {
		return errDiagnosticsFailed
	}
	return nil
}

func statusLabel(status domain.DiagnosticStatus) string {
	switch status {
	case domain.DiagnosticStatusPass:
		return " ok "
	case domain.DiagnosticStatusWarn:
		return "warn"
	default:
		return "FAIL"
	}
}
