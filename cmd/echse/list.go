package main

import (
	"fmt"
	"net/url"
	"os"
	"os/user"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"echse/internal/queuedir"
)

type listOptions struct {
	User  string
	Next  bool
	Brief bool
}

func newListCmd(queueDirFlag *string) *cobra.Command {
	opts := listOptions{}

	cmd := &cobra.Command{
		Use:   "list [tuid...]",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(*queueDirFlag, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.User, "user", "", "uid or username to list (default: current user); not applied with --brief")
	cmd.Flags().BoolVar(&opts.Next, "next", false, "show only the next task due to fire")
	cmd.Flags().BoolVar(&opts.Brief, "brief", false, "tab-separated tuid/range listing instead of full iCalendar")
	return cmd
}

func runList(queueDirFlag string, opts listOptions, tuids []string) error {
	qd, err := resolveQueueDir(queueDirFlag)
	if err != nil {
		return err
	}

	uid := os.Getuid()
	if opts.User != "" {
		n, err := resolveUID(opts.User)
		if err != nil {
			return argumentError{err}
		}
		uid = n
	}

	if opts.Brief {
		return listBrief(qd, opts.Next, tuids)
	}
	return listFull(qd, uid, tuids)
}

func listBrief(qd queuedir.Dir, next bool, tuids []string) error {
	body, err := query(qd, "/sched")
	if err != nil {
		return err
	}

	wanted := make(map[string]bool, len(tuids))
	for _, t := range tuids {
		wanted[t] = true
	}

	type row struct {
		tuid  string
		begin string
		end   string
	}
	var rows []row
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			continue
		}
		if len(wanted) > 0 && !wanted[fields[0]] {
			continue
		}
		ranges := strings.SplitN(fields[1], "/", 2)
		if len(ranges) != 2 {
			continue
		}
		rows = append(rows, row{tuid: fields[0], begin: ranges[0], end: ranges[1]})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].begin < rows[j].begin })
	if next && len(rows) > 1 {
		rows = rows[:1]
	}

	for _, r := range rows {
		fmt.Printf("%s\t%s\t%s\n", r.tuid, r.begin, r.end)
	}
	return nil
}

func listFull(qd queuedir.Dir, uid int, tuids []string) error {
	q := url.Values{}
	for _, t := range tuids {
		q.Add("tuid", t)
	}
	path := fmt.Sprintf("/u/%d/queue", uid)
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	body, err := query(qd, path)
	if err != nil {
		return err
	}
	fmt.Print(body)
	return nil
}

func resolveUID(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	u, err := user.Lookup(s)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, fmt.Errorf("parse uid for %q: %w", s, err)
	}
	return n, nil
}
