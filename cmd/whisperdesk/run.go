package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"whisper-desk/internal/domain"
	"whisper-desk/internal/jobs"
)

var (
	runModel   string
	runOptions []string
	runVerbose bool
	runJSON    bool
)

var runCmd = &cobra.Command{
	Use:   "run <input-file>",
	Short: "Transcribe one media file and wait for the result",
	Long: `Run starts a transcription job, streams its progress and exits once the
job reaches a terminal state. Engine options are passed with --opt key=value;
a bare --opt key sets a boolean switch.`,
	Example: `  whisperdesk run meeting.wav --model base --opt language=en --opt output-srt`,
	Args:    cobra.ExactArgs(1),
	RunE:    withSession(runTranscription),
}

func init() {
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model name (default: settings default_model)")
	runCmd.Flags().StringArrayVarP(&runOptions, "opt", "o", nil, "Engine option as key=value (repeatable)")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print engine output lines")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the final job record as JSON")
	rootCmd.AddCommand(runCmd)
}

func runTranscription(cmd *cobra.Command, s *session, args []string) error {
	options, err := parseOptions(runOptions)
	if err != nil {
		return err
	}

	// Subscribe first so no event published after submit is missed.
	ch, unsubscribe := s.app.SubscribeEvents()
	defer unsubscribe()

	jobID, err := s.app.StartTranscription(domain.TranscriptionConfig{
		InputFile: args[0],
		Model:     runModel,
		Options:   options,
	})
	if err != nil {
		if jobID != "" {
			return fmt.Errorf("job %s: %w", jobID, err)
		}
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Started job %s\n", jobID)

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range ch {
			if ev.JobID != jobID {
				continue
			}
			printEvent(cmd.ErrOrStderr(), ev, runVerbose)
			if ev.Type.IsTerminal() {
				return
			}
		}
	}()

	rec, err := s.app.WaitForJob(s.ctx, jobID)
	if err != nil {
		return err
	}
	select {
	case <-printed:
	case <-time.After(2 * time.Second):
	}

	if runJSON {
		if err := printJSON(cmd.OutOrStdout(), rec); err != nil {
			return err
		}
	} else {
		printRecordSummary(cmd.OutOrStdout(), rec)
	}
	if rec.Status == domain.JobStatusFailed {
		return fmt.Errorf("job %s failed", jobID)
	}
	return nil
}

// parseOptions turns key=value pairs into engine options. A bare key is a
// boolean switch and maps to "true".
func parseOptions(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	options := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimLeft(strings.TrimSpace(key), "-")
		if key == "" {
			return nil, &domain.ValidationError{Field: "opt", Message: fmt.Sprintf("invalid option %q", pair)}
		}
		if !found {
			value = "true"
		}
		options[key] = strings.TrimSpace(value)
	}
	return options, nil
}

func printEvent(w io.Writer, ev jobs.Event, verbose bool) {
	switch ev.Type {
	case jobs.EventTypeLog:
		if verbose {
			fmt.Fprintf(w, "  [%s] %s\n", ev.Stream, ev.Message)
		}
	case jobs.EventTypeProgress:
		if ev.Progress == nil {
			return
		}
		if ev.Progress.Progress > 0 {
			fmt.Fprintf(w, "  %5.1f%%  %s\n", ev.Progress.Progress*100, ev.Progress.Message)
		} else if ev.Progress.CurrentTime != nil {
			fmt.Fprintf(w, "  %7.1fs  %s\n", *ev.Progress.CurrentTime, ev.Progress.Message)
		}
	default:
		fmt.Fprintf(w, "%s: %s\n", ev.Type, ev.Message)
	}
}

func printRecordSummary(w io.Writer, rec *domain.JobRecord) {
	fmt.Fprintf(w, "Job:      %s\n", rec.ID)
	fmt.Fprintf(w, "File:     %s\n", rec.OriginalFileName)
	fmt.Fprintf(w, "Model:    %s\n", rec.ModelUsed)
	fmt.Fprintf(w, "Status:   %s\n", rec.Status)
	fmt.Fprintf(w, "Created:  %s\n", rec.CreatedAt)
	if rec.CompletedAt != nil {
		fmt.Fprintf(w, "Finished: %s\n", *rec.CompletedAt)
	}
	if rec.DurationSeconds != nil {
		fmt.Fprintf(w, "Duration: %.1fs\n", *rec.DurationSeconds)
	}
	if len(rec.Tags) > 0 {
		fmt.Fprintf(w, "Tags:     %s\n", strings.Join(rec.Tags, ", "))
	}
	if rec.Notes != nil && *rec.Notes != "" {
		fmt.Fprintf(w, "Notes:    %s\n", *rec.Notes)
	}
	if rec.ErrorMessage != nil {
		fmt.Fprintf(w, "Error:    %s\n", *rec.ErrorMessage)
	}
	for _, res := range rec.Results {
		fmt.Fprintf(w, "  %-5s %8d  %s\n", res.Format, res.FileSize, res.FilePath)
	}
}
