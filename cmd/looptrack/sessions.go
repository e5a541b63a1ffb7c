package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"backend-territory/internal/auth"
	"backend-territory/internal/config"
	"backend-territory/internal/session"
)

func cmdList(ctx context.Context, cfg config.Config, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("list", stderr)
	storePath := fs.String("store", cfg.SessionStorePath, "Session file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sessions, err := session.NewFileStore(*storePath).List(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(stdout, "No sessions")
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tPOINTS\tLOOPS\tPENDING\tSTATUS")
	for _, ws := range sessions {
		status := "open"
		if ws.Ended() {
			status = "ended"
		}
		started := time.UnixMilli(ws.StartedAtMs).UTC().Format(time.RFC3339)
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", ws.ID, started, len(ws.Points), len(ws.Loops), len(ws.Pending()), status)
	}
	return tw.Flush()
}

func cmdExport(ctx context.Context, cfg config.Config, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("export", stderr)
	storePath := fs.String("store", cfg.SessionStorePath, "Session file")
	id := fs.String("session", "", "Session id")
	out := fs.String("out", "-", "Output KML file, - for stdout")
	masked := fs.Bool("masked", false, "Apply the session's privacy offset")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("export needs -session")
	}

	ws, err := session.NewFileStore(*storePath).Get(ctx, *id)
	if err != nil {
		return err
	}
	if *out == "-" {
		return session.ExportKML(stdout, ws, *masked)
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := session.ExportKML(f, ws, *masked); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", *out)
	return nil
}

func cmdToken(cfg config.Config, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("token", stderr)
	user := fs.String("user", "", "User id carried by the token")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	secret := fs.String("secret", cfg.JWTSecret, "HMAC secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	token, err := auth.IssueToken(*secret, *user, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}
