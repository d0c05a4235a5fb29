package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCancelCmd(queueDirFlag *string) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cancel tuid...",
		Short: "Unschedule one or more tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCancel(*queueDirFlag, dryRun, args)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be cancelled without pushing to the daemon")
	return cmd
}

func runCancel(queueDirFlag string, dryRun bool, tuids []string) error {
	if len(tuids) == 0 {
		return argumentError{fmt.Errorf("cancel requires at least one tuid")}
	}

	if dryRun {
		for _, t := range tuids {
			fmt.Printf("would cancel %s\n", t)
		}
		return nil
	}

	qd, err := resolveQueueDir(queueDirFlag)
	if err != nil {
		return err
	}
	reply, err := push(qd, cancelCalendar(tuids))
	if err != nil {
		return err
	}
	printReplies(reply)
	return nil
}

// cancelCalendar builds a METHOD:CANCEL iCalendar stream containing one
// empty VEVENT per tuid, sufficient for the daemon's verbFor to resolve
// VerbUnschedule (§4.1).
func cancelCalendar(tuids []string) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nMETHOD:CANCEL\r\n")
	for _, t := range tuids {
		fmt.Fprintf(&b, "BEGIN:VEVENT\r\nUID:%s\r\nEND:VEVENT\r\n", t)
	}
	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}
