package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"whisper-desk/internal/bootstrap"
	"whisper-desk/internal/jobs"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage whisper.cpp model files",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog models and whether they are downloaded",
	Args:  cobra.NoArgs,
	RunE:  withSession(runModelsList),
}

var modelsDownloadCmd = &cobra.Command{
	Use:   "download <model>",
	Short: "Download a catalog model into the models directory",
	Args:  cobra.ExactArgs(1),
	RunE:  withSession(runModelsDownload),
}

var modelsDeleteCmd = &cobra.Command{
	Use:   "delete <model>",
	Short: "Remove a downloaded model",
	Args:  cobra.ExactArgs(1),
	RunE:  withSession(runModelsDelete),
}

func init() {
	modelsListCmd.Flags().BoolVar(&modelsJSON, "json", false, "Print the catalog as JSON")
	modelsCmd.AddCommand(modelsListCmd, modelsDownloadCmd, modelsDeleteCmd)
	rootCmd.AddCommand(modelsCmd)
}

func runModelsList(cmd *cobra.Command, s *session, _ []string) error {
	catalog := s.app.GetWhisperModels()
	if modelsJSON {
		return printJSON(cmd.OutOrStdout(), catalog)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSIZE\tDOWNLOADED\tDESCRIPTION")
	for _, m := range catalog {
		downloaded := "-"
		if m.Downloaded {
			downloaded = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.SizeLabel, downloaded, m.Description)
	}
	return w.Flush()
}

func runModelsDownload(cmd *cobra.Command, s *session, args []string) error {
	stop := followStream(s.app, bootstrap.ModelDownloadStream+args[0], cmd.ErrOrStderr())
	path, err := s.app.DownloadModel(args[0])
	stop()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %s to %s\n", args[0], path)
	return nil
}

func runModelsDelete(cmd *cobra.Command, s *session, args []string) error {
	if err := s.app.DeleteModel(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

// followStream prints events for one stream key until the returned stop
// function is called.
func followStream(app *bootstrap.App, key string, w io.Writer) func() {
	ch, unsubscribe := app.SubscribeEvents()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			if ev.JobID != key {
				continue
			}
			switch {
			case ev.Type == jobs.EventTypeProgress && ev.Progress != nil:
				fmt.Fprintf(w, "  %5.1f%%  %s\n", ev.Progress.Progress*100, ev.Message)
			default:
				fmt.Fprintf(w, "  %s\n", ev.Message)
			}
		}
	}()
	return func() {
		unsubscribe()
		<-done
	}
}
