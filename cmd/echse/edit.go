package main

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
)

func newEditCmd(queueDirFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit tuid...",
		Short: "Edit one or more scheduled tasks interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(*queueDirFlag, args)
		},
	}
	return cmd
}

func runEdit(queueDirFlag string, tuids []string) error {
	if len(tuids) == 0 {
		return argumentError{fmt.Errorf("edit requires at least one tuid")}
	}

	editor, err := resolveEditor()
	if err != nil {
		return argumentError{err}
	}

	qd, err := resolveQueueDir(queueDirFlag)
	if err != nil {
		return err
	}

	for _, tuid := range tuids {
		path := fmt.Sprintf("/u/%d/queue?tuid=%s", os.Getuid(), url.QueryEscape(tuid))
		body, err := query(qd, path)
		if err != nil {
			return err
		}
		if !strings.Contains(body, "BEGIN:VEVENT") {
			fmt.Fprintf(os.Stderr, "echse: %s: not found\n", tuid)
			continue
		}

		f, err := os.CreateTemp("", "echse-edit-*.ics")
		if err != nil {
			return fmt.Errorf("create temp file: %w", err)
		}
		tmpPath := f.Name()
		if _, err := f.WriteString(body); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("write temp file: %w", err)
		}
		f.Close()

		cmd := exec.Command(editor[0], append(editor[1:], tmpPath)...)
		cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
		runErr := cmd.Run()
		if runErr != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("run editor: %w", runErr)
		}

		edited, err := os.ReadFile(tmpPath)
		os.Remove(tmpPath)
		if err != nil {
			return fmt.Errorf("read edited file: %w", err)
		}

		reply, err := push(qd, string(edited))
		if err != nil {
			return err
		}
		printReplies(reply)
	}
	return nil
}

// resolveEditor picks the interactive editor per VISUAL, then EDITOR,
// then "vi", and refuses entirely when the terminal can't support one
// (§6 environment contract).
func resolveEditor() ([]string, error) {
	if os.Getenv("TERM") == "dumb" {
		return nil, fmt.Errorf("interactive editing disabled: TERM=dumb")
	}
	for _, env := range []string{"VISUAL", "EDITOR"} {
		if v := os.Getenv(env); v != "" {
			return strings.Fields(v), nil
		}
	}
	return []string{"vi"}, nil
}
