package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"whisper-desk/internal/domain"
)

var (
	exportFormat string
	exportS3     bool
)

var exportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Convert a job's transcript to another format or archive it to S3",
	Long: `Export derives srt, vtt or fcpxml from a job's txt result and registers
the new file with the job. With --s3 the finished job (metadata and every
result file) is uploaded to the configured archive bucket.`,
	Example: `  whisperdesk export 3f2a --format fcpxml
  whisperdesk export 3f2a --s3`,
	Args: cobra.ExactArgs(1),
	RunE: withSession(runExport),
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "", "Target format: srt, vtt or fcpxml")
	exportCmd.Flags().BoolVar(&exportS3, "s3", false, "Upload the job to the configured archive bucket")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, s *session, args []string) error {
	if exportFormat == "" && !exportS3 {
		return &domain.ValidationError{Field: "format", Message: "pass --format, --s3 or both"}
	}
	id, err := resolveJobID(s.app, args[0])
	if err != nil {
		return err
	}

	if exportFormat != "" {
		if _, err := s.app.ExportResult(id, exportFormat); err != nil {
			return err
		}
		path, err := s.app.GetResultFilePath(id, exportFormat)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %s\n", path)
	}

	if exportS3 {
		uploaded, err := s.app.ArchiveJob(id)
		if err != nil {
			return err
		}
		for _, key := range uploaded.Keys {
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded s3://%s/%s\n", uploaded.Bucket, key)
		}
	}
	return nil
}
