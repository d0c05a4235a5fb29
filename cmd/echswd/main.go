// Command echswd is the execution helper: it reads one VTODO from
// standard input, supervises the command it describes, and writes a
// VJOURNAL completion record (§4.5).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"echse/internal/helper"
	"echse/internal/mailer"
)

func main() {
	var daemonMode bool
	var noRun bool
	var emitVJournal bool
	var journalPath string

	rootCmd := &cobra.Command{
		Use:   "echswd",
		Short: "echse execution helper",
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := helper.ReadVTODO(os.Stdin)
			if err != nil {
				fmt.Fprintln(os.Stderr, "echswd:", err)
				os.Exit(1)
			}

			opts := helper.Options{
				NoRun:       noRun,
				JournalPath: journalPath,
				Mailer:      mailer.NewSendmail(""),
			}
			if emitVJournal {
				opts.JournalPath = ""
			}

			result := helper.Run(context.Background(), tk, opts)
			if result.Err != nil && result.ExitCode == 0 {
				result.ExitCode = 1
			}
			os.Exit(result.ExitCode)
			return nil
		},
	}

	rootCmd.Flags().BoolVar(&daemonMode, "daemon", false, "spawned by echsd rather than run interactively")
	rootCmd.Flags().BoolVar(&noRun, "no-run", false, "write a skipped journal entry without running the command")
	rootCmd.Flags().BoolVar(&emitVJournal, "vjournal", false, "emit the VJOURNAL record on stdout instead of the journal file")
	rootCmd.Flags().StringVar(&journalPath, "journal", "", "path to append the VJOURNAL record to (defaults to stdout)")
	_ = daemonMode // recorded for parity with the daemon's --daemon invocation; behavior doesn't branch on it today

	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
}
