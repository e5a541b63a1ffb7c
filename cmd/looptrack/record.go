package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"backend-territory/internal/config"
	"backend-territory/internal/gpsfeed"
	"backend-territory/internal/logger"
	"backend-territory/internal/loop"
	"backend-territory/internal/session"
)

var openSerial = gpsfeed.OpenSerial

func cmdRecord(ctx context.Context, cfg config.Config, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("record", stderr)
	storePath := fs.String("store", cfg.SessionStorePath, "Session file")
	nmeaPath := fs.String("nmea", "", "Replay an NMEA log file")
	port := fs.String("port", "", "Serial GPS device (e.g., /dev/ttyUSB0)")
	baud := fs.Int("baud", gpsfeed.DefaultBaud, "Baud rate for -port")
	user := fs.String("user", "", "Owner recorded on the session")
	mask := fs.Bool("mask", cfg.PrivacyMask, "Attach a random privacy offset for exports")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*nmeaPath == "") == (*port == "") {
		return errors.New("record needs exactly one of -nmea or -port")
	}

	var src io.ReadCloser
	var err error
	if *nmeaPath != "" {
		src, err = os.Open(*nmeaPath)
	} else {
		src, err = openSerial(*port, *baud)
		if err == nil {
			fmt.Fprintf(stdout, "Recording from %s at %d baud, interrupt to stop\n", *port, *baud)
		}
	}
	if err != nil {
		return err
	}
	defer src.Close()

	// Closing the source unblocks a pending serial read on interrupt.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = src.Close()
		case <-done:
		}
	}()

	var m *session.Mask
	if *mask {
		m = session.RandomMask()
	}
	ws, err := record(ctx, session.NewFileStore(*storePath), src, cfg.LoopConfig(), *user, m, stdout)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Session %s: %d points, %d loops, %.0f m\n", ws.ID, len(ws.Points), len(ws.Loops), ws.DistanceMeters())
	return nil
}

// record feeds every fix from r through a fresh detector and persists the
// accepted points and closed loops as one session. The session is ended when
// the input runs out or ctx is cancelled.
func record(ctx context.Context, store session.Store, r io.Reader, cfg loop.Config, userID string, mask *session.Mask, stdout io.Writer) (session.WalkSession, error) {
	log := logger.L()
	ws, err := store.Create(ctx, userID, mask)
	if err != nil {
		return session.WalkSession{}, err
	}

	det := loop.NewDetector(cfg)
	feed := gpsfeed.NewNMEAReader(r)
	for {
		p, err := feed.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return session.WalkSession{}, err
		}

		step, err := det.Push(p)
		if err != nil {
			log.Warn("fix rejected", "session_id", ws.ID, "error", err)
			continue
		}
		if !step.Accepted {
			continue
		}
		point := session.PathPoint{Lat: p.Latitude, Lng: p.Longitude, T: p.TimestampMs}
		if step.Loop == nil {
			if err := store.Record(ctx, ws.ID, point, nil); err != nil {
				return session.WalkSession{}, err
			}
			continue
		}
		l := session.Loop{
			ID:           step.Loop.ID,
			ClosedAtMs:   step.Loop.ClosedAtMs,
			AreaSqMeters: step.Loop.AreaSqMeters,
			Ring:         step.Loop.Ring,
		}
		if err := store.Record(ctx, ws.ID, point, &l); err != nil {
			return session.WalkSession{}, err
		}
		fmt.Fprintf(stdout, "Loop %s closed: %.0f m²\n", l.ID, l.AreaSqMeters)
	}

	det.Stop()
	if n := det.Stats().DiscardedOnStop; n > 0 {
		log.Info("open ring discarded", "session_id", ws.ID, "points", n)
	}
	if feed.Skipped > 0 {
		log.Info("non-advancing fixes skipped", "session_id", ws.ID, "count", feed.Skipped)
	}
	return store.End(context.WithoutCancel(ctx), ws.ID)
}

func cmdPorts(stdout io.Writer) error {
	ports, err := gpsfeed.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(stdout, "No serial ports found")
	}
	for _, p := range ports {
		fmt.Fprintln(stdout, p)
	}
	return nil
}
