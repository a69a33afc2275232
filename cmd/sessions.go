package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/eclipsesource/tabris-js-cli-sub000/internal/config"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/storage"
)

func runSessions(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	fs.SetOutput(stderr)

	sessionDB := fs.String("session-db", "", "Path to the session journal (default: ~/.tabris/sessions.db)")
	limit := fs.Int("limit", 20, "Maximum number of sessions to list")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: tabris sessions [options]\n\nList recorded debug sessions, newest first.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	path := *sessionDB
	if path == "" {
		var err error
		path, err = config.DefaultSessionDBPath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(stdout, "No sessions recorded.")
		return 0
	}

	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open session journal: %v\n", err)
		return 1
	}
	defer store.Close()

	sessions, err := store.ListSessions(*limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to list sessions: %v\n", err)
		return 1
	}

	if len(sessions) == 0 {
		fmt.Fprintln(stdout, "No sessions recorded.")
		return 0
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVER\tSESSION\tDEVICE\tOPENED\tDURATION\tCLOSE REASON")
	fmt.Fprintln(w, "------\t-------\t------\t------\t--------\t------------")

	for _, s := range sessions {
		device := s.Platform
		if s.Model != "" {
			device += " " + s.Model
		}
		if device == "" {
			device = "-"
		}

		duration := "open"
		reason := "-"
		if !s.Open() {
			duration = formatDuration(s.ClosedAt.Sub(s.OpenedAt))
			reason = s.CloseReason
		}

		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			shortID(s.ServerID),
			s.SessionID,
			device,
			s.OpenedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
			reason,
		)
	}
	w.Flush()

	return 0
}

// shortID keeps the first block of a UUID, which is enough to tell server
// runs apart in a listing.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return "<1s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
