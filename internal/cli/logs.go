package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"promochat/internal/config"
	"promochat/internal/pkg/logger"

	"github.com/spf13/cobra"
)

func newLogsCommand() *cobra.Command {
	var (
		level string
		limit int
		path  string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the most recent client log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = config.Load().App.LogFilePath
			}
			entries, err := logger.NewIsolatedLogger(path, false).Tail(strings.ToUpper(level), limit)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no log entries")
				return nil
			}
			// Oldest first reads naturally in a terminal.
			for i := len(entries) - 1; i >= 0; i-- {
				e := entries[i]
				line := fmt.Sprintf("%s %-5s %-18s %s", e.Timestamp, e.Level, e.Module, e.Message)
				if len(e.Details) > 0 {
					details, _ := json.Marshal(e.Details)
					line += " " + string(details)
				}
				fmt.Fprintln(out, colorForLevel(e.Level).Sprint(line))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&level, "level", "", "only show entries of this level (debug, info, warn, error)")
	cmd.Flags().IntVarP(&limit, "lines", "n", 20, "number of entries")
	cmd.Flags().StringVar(&path, "file", "", "log file (defaults to LOG_FILE_PATH)")
	return cmd
}
