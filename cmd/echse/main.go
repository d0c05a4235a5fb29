// Command echse is the scheduling client: it pushes and queries
// iCalendar streams against a running echsd over its AF_UNIX socket
// (§6). A bare invocation is equivalent to "echse list --brief".
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"echse/internal/queuedir"
)

func main() {
	var queueDirFlag string

	rootCmd := &cobra.Command{
		Use:           "echse",
		Short:         "echse scheduling client",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(queueDirFlag, listOptions{Brief: true}, nil)
		},
	}
	rootCmd.PersistentFlags().StringVar(&queueDirFlag, "queuedir", "", "queue directory root (default: platform spool)")

	rootCmd.AddCommand(
		newListCmd(&queueDirFlag),
		newAddCmd(&queueDirFlag),
		newEditCmd(&queueDirFlag),
		newCancelCmd(&queueDirFlag),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "echse:", err)
		if _, ok := err.(argumentError); ok {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

// argumentError marks a failure as a usage/argument error, exit code 1
// rather than the generic initialization-failure exit code 2 (§6).
type argumentError struct{ err error }

func (a argumentError) Error() string { return a.err.Error() }
func (a argumentError) Unwrap() error { return a.err }

func resolveQueueDir(flagValue string) (queuedir.Dir, error) {
	if flagValue != "" {
		return queuedir.New(flagValue), nil
	}
	return queuedir.Default()
}
