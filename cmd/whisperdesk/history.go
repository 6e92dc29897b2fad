package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"whisper-desk/internal/domain"
)

var historyFlags struct {
	search, model, format, tag, status, from, to string
	limit, offset                                int
	json                                         bool
}

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"jobs"},
	Short:   "Browse and manage past transcription jobs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	Args:  cobra.NoArgs,
	RunE:  withSession(runHistoryList),
}

var historyShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job record",
	Args:  cobra.ExactArgs(1),
	RunE:  withSession(runHistoryShow),
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job and its result files",
	Args:  cobra.ExactArgs(1),
	RunE:  withSession(runHistoryDelete),
}

var historyPathCmd = &cobra.Command{
	Use:   "path <job-id> <format>",
	Short: "Print the path of a job's result file",
	Args:  cobra.ExactArgs(2),
	RunE:  withSession(runHistoryPath),
}

var historyTagCmd = &cobra.Command{
	Use:   "tag <job-id> [tag...]",
	Short: "Replace a job's tags (no tags clears them)",
	Args:  cobra.MinimumNArgs(1),
	RunE:  withSession(runHistoryTag),
}

var historyNotesCmd = &cobra.Command{
	Use:   "notes <job-id> [text]",
	Short: "Set a job's notes (no text clears them)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  withSession(runHistoryNotes),
}

var historyReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the history index from job metadata",
	Args:  cobra.NoArgs,
	RunE:  withSession(runHistoryReindex),
}

var historyRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Mark jobs left running by a previous process as failed",
	Args:  cobra.NoArgs,
	RunE:  withSession(runHistoryRecover),
}

func init() {
	f := historyListCmd.Flags()
	f.StringVarP(&historyFlags.search, "search", "s", "", "Case-insensitive file name search")
	f.StringVar(&historyFlags.model, "model", "", "Only jobs run with this model")
	f.StringVar(&historyFlags.format, "format", "", "Only jobs with a result in this format")
	f.StringVar(&historyFlags.tag, "tag", "", "Only jobs carrying this tag")
	f.StringVar(&historyFlags.status, "status", "", "Only jobs in this status (running, completed, failed)")
	f.StringVar(&historyFlags.from, "from", "", "Only jobs created at or after this date (YYYY-MM-DD)")
	f.StringVar(&historyFlags.to, "to", "", "Only jobs created on or before this date (YYYY-MM-DD)")
	f.IntVarP(&historyFlags.limit, "limit", "n", domain.DefaultPageLimit, "Page size")
	f.IntVar(&historyFlags.offset, "offset", 0, "Records to skip")
	f.BoolVar(&historyFlags.json, "json", false, "Print the page as JSON")

	historyShowCmd.Flags().BoolVar(&historyFlags.json, "json", false, "Print the record as JSON")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historyPathCmd,
		historyTagCmd, historyNotesCmd, historyReindexCmd, historyRecoverCmd)
	rootCmd.AddCommand(historyCmd)
}

// listQuery maps set flags onto a query. Unset flags do not filter.
func listQuery(cmd *cobra.Command) (domain.JobQuery, error) {
	var q domain.JobQuery
	flags := cmd.Flags()
	str := func(name, value string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v := strings.TrimSpace(value)
		return &v
	}

	q.Search = str("search", historyFlags.search)
	q.ModelFilter = str("model", historyFlags.model)
	q.FormatFilter = str("format", historyFlags.format)
	q.TagFilter = str("tag", historyFlags.tag)
	q.DateFrom = str("from", historyFlags.from)
	q.DateTo = str("to", historyFlags.to)
	if flags.Changed("status") {
		status := domain.JobStatus(strings.ToLower(strings.TrimSpace(historyFlags.status)))
		if !status.Valid() {
			return q, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", historyFlags.status)}
		}
		q.StatusFilter = &status
	}
	limit, offset := historyFlags.limit, historyFlags.offset
	q.Limit, q.Offset = &limit, &offset
	return q, nil
}

func runHistoryList(cmd *cobra.Command, s *session, _ []string) error {
	query, err := listQuery(cmd)
	if err != nil {
		return err
	}
	page, err := s.app.ListHistory(query)
	if err != nil {
		return err
	}
	if historyFlags.json {
		return printJSON(cmd.OutOrStdout(), page)
	}
	return printHistoryTable(cmd.OutOrStdout(), page)
}

func printHistoryTable(out io.Writer, page domain.JobListResponse) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tSTATUS\tMODEL\tFORMATS\tFILE")
	for _, rec := range page.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(rec.ID), shortTime(rec.CreatedAt), rec.Status, rec.ModelUsed,
			strings.Join(rec.Formats(), ","), rec.OriginalFileName)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	shown := len(page.Items)
	fmt.Fprintf(out, "\n%d of %d jobs", shown, page.TotalCount)
	if page.HasMore {
		fmt.Fprint(out, " (more with --offset)")
	}
	fmt.Fprintln(out)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// shortTime trims a stored timestamp to minute precision for tables.
func shortTime(ts string) string {
	if t, err := domain.ParseTimestamp(ts); err == nil {
		return t.Local().Format("2006-01-02 15:04")
	}
	return ts
}

func runHistoryShow(cmd *cobra.Command, s *session, args []string) error {
	id, err := resolveJobID(s.app, args[0])
	if err != nil {
		return err
	}
	rec, err := s.app.GetHistory(id)
	if err != nil {
		return err
	}
	if historyFlags.json {
		return printJSON(cmd.OutOrStdout(), rec)
	}
	printRecordSummary(cmd.OutOrStdout(), rec)
	return nil
}

func runHistoryDelete(cmd *cobra.Command, s *session, args []string) error {
	id, err := resolveJobID(s.app, args[0])
	if err != nil {
		return err
	}
	if err := s.app.DeleteHistory(id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
	return nil
}

func runHistoryPath(cmd *cobra.Command, s *session, args []string) error {
	id, err := resolveJobID(s.app, args[0])
	if err != nil {
		return err
	}
	path, err := s.app.GetResultFilePath(id, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runHistoryTag(cmd *cobra.Command, s *session, args []string) error {
	id, err := resolveJobID(s.app, args[0])
	if err != nil {
		return err
	}
	rec, err := s.app.UpdateTags(id, args[1:])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s tags: %s\n", rec.ID, strings.Join(rec.Tags, ", "))
	return nil
}

func runHistoryNotes(cmd *cobra.Command, s *session, args []string) error {
	id, err := resolveJobID(s.app, args[0])
	if err != nil {
		return err
	}
	var notes *string
	if len(args) == 2 {
		notes = &args[1]
	}
	rec, err := s.app.UpdateNotes(id, notes)
	if err != nil {
		return err
	}
	if rec.Notes == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s notes cleared\n", rec.ID)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s notes: %s\n", rec.ID, *rec.Notes)
	return nil
}

func runHistoryReindex(cmd *cobra.Command, s *session, _ []string) error {
	n, err := s.app.RebuildIndex()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d jobs\n", n)
	return nil
}

func runHistoryRecover(cmd *cobra.Command, s *session, _ []string) error {
	ids, err := s.app.RecoverInterrupted()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No interrupted jobs")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintf(cmd.OutOrStdout(), "Marked %s as failed\n", id)
	}
	return nil
}
