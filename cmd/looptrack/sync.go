package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"backend-territory/internal/config"
	"backend-territory/internal/geodesy"
	"backend-territory/internal/session"
	"backend-territory/internal/territory"

	"github.com/goccy/go-json"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

func cmdSync(ctx context.Context, cfg config.Config, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("sync", stderr)
	storePath := fs.String("store", cfg.SessionStorePath, "Session file")
	id := fs.String("session", "", "Session id")
	api := fs.String("api", envOr("LOOPTRACK_API", "http://localhost:8080"), "API base URL")
	token := fs.String("token", os.Getenv("LOOPTRACK_TOKEN"), "Bearer token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("sync needs -session")
	}
	if *token == "" {
		return errors.New("sync needs -token or LOOPTRACK_TOKEN")
	}

	store := session.NewFileStore(*storePath)
	submitted, err := syncSession(ctx, store, *id, strings.TrimRight(*api, "/"), *token, stdout)
	fmt.Fprintf(stdout, "Submitted %d loops\n", submitted)
	return err
}

// syncSession submits every pending loop in order and records the returned
// territory id. It stops at the first failure; loops already recorded stay
// submitted, so a rerun only sends the rest.
func syncSession(ctx context.Context, store session.Store, id, api, token string, stdout io.Writer) (int, error) {
	ws, err := store.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	var submitted int
	for _, l := range ws.Pending() {
		res, err := submitClaim(ctx, api, token, territory.Claim{
			Coordinates:  [][]geodesy.LatLng{l.Ring},
			AreaSqMeters: l.AreaSqMeters,
		})
		if err != nil {
			return submitted, fmt.Errorf("loop %s: %w", l.ID, err)
		}
		if err := store.MarkSubmitted(ctx, id, l.ID, res.Territory.ID); err != nil {
			return submitted, err
		}
		submitted++
		fmt.Fprintf(stdout, "Loop %s -> territory %s (+%d XP, %d neighbours affected)\n", l.ID, res.Territory.ID, res.XpAwarded, len(res.Outcomes))
	}
	return submitted, nil
}

func submitClaim(ctx context.Context, api, token string, claim territory.Claim) (territory.Result, error) {
	body, err := json.Marshal(claim)
	if err != nil {
		return territory.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, api+"/territories", bytes.NewReader(body))
	if err != nil {
		return territory.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return territory.Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return territory.Result{}, fmt.Errorf("api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var res territory.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return territory.Result{}, err
	}
	if res.Territory.ID == "" {
		return territory.Result{}, errors.New("api response has no territory id")
	}
	return res, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
