package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"whisper-desk/internal/bootstrap"
)

var engineJSON bool

var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Install and inspect the whisper.cpp engine",
}

var engineInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Clone and build whisper.cpp under the data root",
	Args:  cobra.NoArgs,
	RunE:  withSession(runEngineInstall),
}

var engineOptionsCmd = &cobra.Command{
	Use:   "options",
	Short: "List the command-line options the installed engine accepts",
	Args:  cobra.NoArgs,
	RunE:  withSession(runEngineOptions),
}

func init() {
	engineOptionsCmd.Flags().BoolVar(&engineJSON, "json", false, "Print options as JSON")
	engineCmd.AddCommand(engineInstallCmd, engineOptionsCmd)
	rootCmd.AddCommand(engineCmd)
}

func runEngineInstall(cmd *cobra.Command, s *session, _ []string) error {
	stop := followStream(s.app, bootstrap.EngineInstallStream, cmd.ErrOrStderr())
	path, err := s.app.InstallEngine()
	stop()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Engine ready at %s\n", path)
	return nil
}

func runEngineOptions(cmd *cobra.Command, s *session, _ []string) error {
	options := s.app.EngineOptions()
	if engineJSON {
		return printJSON(cmd.OutOrStdout(), options)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OPTION\tSHORT\tTYPE\tDEFAULT\tDESCRIPTION")
	for _, opt := range options {
		desc := opt.Description
		if len(opt.PossibleValues) > 0 {
			desc += " [" + strings.Join(opt.PossibleValues, "|") + "]"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", opt.Name, opt.ShortName, opt.Type, opt.DefaultValue, desc)
	}
	return w.Flush()
}
