package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"echse/internal/ical"
	"echse/internal/intern"
)

func newAddCmd(queueDirFlag *string) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "add [files...]",
		Short: "Schedule the tasks described by one or more iCalendar files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(*queueDirFlag, dryRun, args)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and report without pushing to the daemon")
	return cmd
}

func runAdd(queueDirFlag string, dryRun bool, files []string) error {
	data, err := readAllInputs(files)
	if err != nil {
		return argumentError{err}
	}

	if dryRun {
		return describeCalendar(data)
	}

	qd, err := resolveQueueDir(queueDirFlag)
	if err != nil {
		return err
	}
	reply, err := push(qd, string(data))
	if err != nil {
		return err
	}
	printReplies(reply)
	return nil
}

// readAllInputs concatenates the named files, or reads standard input
// when none are given.
func readAllInputs(files []string) ([]byte, error) {
	if len(files) == 0 {
		return io.ReadAll(os.Stdin)
	}
	var out []byte
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		out = append(out, data...)
	}
	return out, nil
}

// describeCalendar parses data locally and prints what would be
// scheduled, without contacting the daemon (--dry-run).
func describeCalendar(data []byte) error {
	parser := ical.New(intern.New(), intern.NewStateTable())
	instructions, err := parser.Feed(data)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	final, err := parser.Close()
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	instructions = append(instructions, final...)

	for _, in := range instructions {
		summary := ""
		if in.Task != nil {
			summary = in.Task.Summary
		}
		fmt.Printf("would %s %s: %s\n", in.Verb, in.OID, summary)
	}
	return nil
}

// printReplies prints each REPLY VEVENT's outcome in "uid\tstatus" form.
func printReplies(reply string) {
	for _, rec := range splitReplyVEvents(reply) {
		fmt.Printf("%s\t%s\n", rec.uid, rec.status)
	}
}
