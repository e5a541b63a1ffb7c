package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"backend-territory/internal/auth"
	"backend-territory/internal/config"
	"backend-territory/internal/geodesy"
	"backend-territory/internal/territory"
	"backend-territory/internal/xp"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		JWTSecret:        "secret",
		ServerPort:       ":0",
		Timezone:         "UTC",
		SessionStorePath: filepath.Join(t.TempDir(), "sessions.json"),
	}
}

func TestHealthRoute(t *testing.T) {
	s := NewServer(testConfig(t), nil, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 status")
	}
}

func TestClaimAwardsXpInMemory(t *testing.T) {
	s := NewServer(testConfig(t), nil, nil)
	token, err := auth.IssueToken("secret", "user-1", time.Minute)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	pl := geodesy.NewPlane(geodesy.LatLng{Lat: -6.2, Lng: 106.8})
	ring := []geodesy.LatLng{pl.FromXY(0, 0), pl.FromXY(200, 0), pl.FromXY(200, 200), pl.FromXY(0, 200), pl.FromXY(0, 0)}
	body, _ := json.Marshal(territory.Claim{Coordinates: [][]geodesy.LatLng{ring}})

	req := httptest.NewRequest(http.MethodPost, "/territories", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %v %d", err, resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/xp/me?window=all", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("me: %v %d", err, resp.StatusCode)
	}
	var me xp.Me
	_ = json.NewDecoder(resp.Body).Decode(&me)
	if want := xp.AreaToXp(40000, xp.DefaultPerSqMile); me.XP != want {
		t.Fatalf("expected %d xp, got %d", want, me.XP)
	}
}

func TestRoutesRequireToken(t *testing.T) {
	s := NewServer(testConfig(t), nil, nil)
	for _, target := range []string{"/territories", "/xp/leaderboard", "/tracking/sessions/x/summary"} {
		resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, target, nil))
		if err != nil {
			t.Fatalf("request %s: %v", target, err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", target, resp.StatusCode)
		}
	}
	_ = s.Shutdown(context.Background())
}

func TestShutdownClosesStreamSubscription(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewServer(testConfig(t), nil, client)
	if mr.PubSubNumPat() != 1 {
		t.Fatalf("expected the stream hub to hold one pattern subscription, got %d", mr.PubSubNumPat())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.Shutdown(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for mr.PubSubNumPat() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream subscription still open after shutdown")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
