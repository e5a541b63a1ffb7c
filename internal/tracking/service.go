// Package tracking runs live walk sessions: every pushed point goes through
// the session's loop detector, accepted points and closed loops are
// persisted, and closures are published to the session's stream topic.
package tracking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"backend-territory/internal/logger"
	"backend-territory/internal/loop"
	"backend-territory/internal/session"
	"backend-territory/internal/stream"
)

// Publisher delivers an event to every subscriber of a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, eventType string, data any) error
}

type tracker struct {
	mu     sync.Mutex
	userID string
	mask   *session.Mask
	det    *loop.Detector
}

type Service struct {
	store   session.Store
	cfg     loop.Config
	pub     Publisher
	masking bool

	mu     sync.Mutex
	active map[string]*tracker

	log     *slog.Logger
	now     func() time.Time
	newMask func() *session.Mask
}

// NewService builds the tracking service. pub may be nil.
func NewService(store session.Store, cfg loop.Config, pub Publisher, masking bool) *Service {
	return &Service{
		store:   store,
		cfg:     cfg.Normalize(),
		pub:     pub,
		masking: masking,
		active:  map[string]*tracker{},
		log:     logger.L(),
		now:     time.Now,
		newMask: session.RandomMask,
	}
}

func (s *Service) StartSession(ctx context.Context, userID string) (session.WalkSession, error) {
	var mask *session.Mask
	if s.masking {
		mask = s.newMask()
	}
	ws, err := s.store.Create(ctx, userID, mask)
	if err != nil {
		return session.WalkSession{}, err
	}

	s.mu.Lock()
	s.active[ws.ID] = &tracker{userID: userID, mask: mask, det: loop.NewDetector(s.cfg)}
	s.mu.Unlock()

	s.log.Info("tracking session started", "session_id", ws.ID, "user_id", userID, "masked", mask != nil)
	return ws, nil
}

// tracker returns the live detector for a session, rebuilding it from the
// stored points when the process has restarted since the session began.
// The store read and replay run without holding the service lock.
func (s *Service) tracker(ctx context.Context, userID, sessionID string) (*tracker, error) {
	s.mu.Lock()
	tr, ok := s.active[sessionID]
	s.mu.Unlock()
	if ok {
		if tr.userID != userID {
			return nil, session.ErrSessionNotFound
		}
		return tr, nil
	}

	ws, err := s.owned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if ws.Ended() {
		return nil, session.ErrSessionEnded
	}

	det := loop.NewDetector(s.cfg)
	for _, p := range ws.Points {
		if _, err := det.Push(loop.GpsPoint{Latitude: p.Lat, Longitude: p.Lng, TimestampMs: p.T}); err != nil {
			s.log.Warn("skipping stored point during replay", "session_id", sessionID, "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.active[sessionID]; ok {
		return existing, nil
	}
	tr = &tracker{userID: ws.UserID, mask: ws.Mask, det: det}
	s.active[sessionID] = tr
	s.log.Info("tracking session rehydrated", "session_id", sessionID, "points", len(ws.Points))
	return tr, nil
}

func (s *Service) owned(ctx context.Context, userID, sessionID string) (session.WalkSession, error) {
	ws, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return session.WalkSession{}, err
	}
	if ws.UserID != userID {
		return session.WalkSession{}, session.ErrSessionNotFound
	}
	return ws, nil
}

// AddPoint feeds one fix to the session's detector. Points are handled
// strictly one at a time per session.
func (s *Service) AddPoint(ctx context.Context, userID, sessionID string, p loop.GpsPoint) (PointResult, error) {
	tr, err := s.tracker(ctx, userID, sessionID)
	if err != nil {
		return PointResult{}, err
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()

	// The detector only advances once the point and any loop it closed are
	// stored, so a failed write can be retried with the same fix.
	next := tr.det.Clone()
	step, err := next.Push(p)
	if err != nil {
		return PointResult{}, err
	}
	if !step.Accepted {
		tr.det = next
		return PointResult{Accepted: false, State: next.State().String()}, nil
	}

	point := session.PathPoint{Lat: p.Latitude, Lng: p.Longitude, T: p.TimestampMs}
	var stored *session.Loop
	if step.Loop != nil {
		stored = &session.Loop{
			ID:           step.Loop.ID,
			ClosedAtMs:   step.Loop.ClosedAtMs,
			AreaSqMeters: step.Loop.AreaSqMeters,
			Ring:         step.Loop.Ring,
		}
	}
	if err := s.store.Record(ctx, sessionID, point, stored); err != nil {
		return PointResult{}, err
	}
	tr.det = next

	res := PointResult{Accepted: true, State: next.State().String()}
	if stored == nil {
		return res, nil
	}

	rendered := renderLoop(*stored, tr.mask)
	res.Loop = &rendered
	s.log.Info("loop closed", "session_id", sessionID, "loop_id", stored.ID, "area_sq_meters", stored.AreaSqMeters)
	if s.pub != nil {
		if err := s.pub.Publish(ctx, stream.SessionTopic(sessionID), EventLoopClosed, rendered); err != nil {
			s.log.Warn("loop publish failed", "session_id", sessionID, "error", err)
		}
	}
	return res, nil
}

// StopSession discards any open candidate ring and ends the session.
// Stopping an already ended session returns it unchanged.
func (s *Service) StopSession(ctx context.Context, userID, sessionID string) (session.WalkSession, error) {
	if _, err := s.owned(ctx, userID, sessionID); err != nil {
		return session.WalkSession{}, err
	}

	s.mu.Lock()
	tr, ok := s.active[sessionID]
	delete(s.active, sessionID)
	s.mu.Unlock()
	if ok {
		tr.mu.Lock()
		tr.det.Stop()
		discarded := tr.det.Stats().DiscardedOnStop
		tr.mu.Unlock()
		if discarded > 0 {
			s.log.Info("open ring discarded on stop", "session_id", sessionID, "points", discarded)
		}
	}
	return s.store.End(ctx, sessionID)
}

func (s *Service) Summary(ctx context.Context, userID, sessionID string) (Summary, error) {
	ws, err := s.owned(ctx, userID, sessionID)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		SessionID:        ws.ID,
		State:            loop.StateIdle.String(),
		StartedAtMs:      ws.StartedAtMs,
		EndedAtMs:        ws.EndedAtMs,
		PointCount:       len(ws.Points),
		LoopCount:        len(ws.Loops),
		PendingLoops:     len(ws.Pending()),
		DistanceM:        ws.DistanceMeters(),
		LoopAreaSqMeters: ws.LoopAreaSqMeters(),
		Masked:           ws.Mask != nil,
	}
	end := s.now().UnixMilli()
	if ws.Ended() {
		end = *ws.EndedAtMs
		sum.State = loop.StateStopped.String()
	} else if len(ws.Points) > 0 {
		sum.State = loop.StateTracking.String()
	}
	if end > ws.StartedAtMs {
		sum.DurationSec = (end - ws.StartedAtMs) / 1000
	}

	s.mu.Lock()
	tr, ok := s.active[sessionID]
	s.mu.Unlock()
	if ok {
		tr.mu.Lock()
		sum.State = tr.det.State().String()
		sum.Stats = tr.det.Stats()
		tr.mu.Unlock()
	}
	return sum, nil
}

// Points returns the session path as it should be rendered.
func (s *Service) Points(ctx context.Context, userID, sessionID string) ([]session.PathPoint, error) {
	ws, err := s.owned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]session.PathPoint, len(ws.Points))
	for i, p := range ws.Points {
		ll := ws.Mask.Apply(p.LatLng())
		out[i] = session.PathPoint{Lat: ll.Lat, Lng: ll.Lng, T: p.T}
	}
	return out, nil
}

func (s *Service) Loops(ctx context.Context, userID, sessionID string) ([]session.Loop, error) {
	ws, err := s.owned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]session.Loop, len(ws.Loops))
	for i, l := range ws.Loops {
		out[i] = renderLoop(l, ws.Mask)
	}
	return out, nil
}

// Detect replays a finished point list through a fresh detector. A nil cfg
// uses the service's thresholds.
func (s *Service) Detect(points []loop.GpsPoint, cfg *loop.Config) (DetectResult, error) {
	c := s.cfg
	if cfg != nil {
		c = *cfg
	}
	loops, stats, err := loop.Detect(c, points)
	if err != nil {
		return DetectResult{}, err
	}
	if loops == nil {
		loops = []loop.Loop{}
	}
	return DetectResult{Loops: loops, Stats: stats}, nil
}

func renderLoop(l session.Loop, mask *session.Mask) session.Loop {
	l.Ring = mask.ApplyRing(l.Ring)
	return l
}
