// Command looptrack is the device-side companion of the API: it records
// walks from an NMEA log or a serial GPS into the local session file,
// lists and exports them, and syncs closed loops as territory claims.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"backend-territory/internal/config"
	"backend-territory/internal/logger"
)

var loadConfig = config.Load

const usage = `usage: looptrack <command> [flags]

commands:
  record   record a walk from -nmea FILE or -port DEVICE
  list     list stored sessions
  export   write a session as KML
  sync     submit a session's pending loops to the API
  token    issue a bearer token signed with JWT_SECRET
  ports    list serial devices

run "looptrack <command> -h" for command flags
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cfg := loadConfig()
	logger.Setup(cfg.LogLevel, cfg.LogFormat)

	var err error
	switch args[0] {
	case "record":
		err = cmdRecord(ctx, cfg, args[1:], stdout, stderr)
	case "list":
		err = cmdList(ctx, cfg, args[1:], stdout, stderr)
	case "export":
		err = cmdExport(ctx, cfg, args[1:], stdout, stderr)
	case "sync":
		err = cmdSync(ctx, cfg, args[1:], stdout, stderr)
	case "token":
		err = cmdToken(cfg, args[1:], stdout, stderr)
	case "ports":
		err = cmdPorts(stdout)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}
