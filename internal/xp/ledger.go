package xp

import (
	"context"
	"sync"
	"time"

	"backend-territory/internal/db"
)

// Ledger is the append-only XP event store.
type Ledger interface {
	Append(ctx context.Context, e Event) (Event, error)
	// Totals sums XP per user inside w. A nil userIDs slice means everyone.
	Totals(ctx context.Context, w Window, userIDs []string) ([]Total, error)
	Sum(ctx context.Context, userID string, w Window) (int, error)
}

type PostgresLedger struct {
	db db.Querier
}

func NewPostgresLedger(q db.Querier) *PostgresLedger {
	return &PostgresLedger{db: q}
}

func (l *PostgresLedger) Append(ctx context.Context, e Event) (Event, error) {
	var territoryID *string
	if e.TerritoryID != "" {
		territoryID = &e.TerritoryID
	}
	row := l.db.QueryRow(ctx, `
		INSERT INTO xp_events (user_id, delta_xp, territory_id, reason)
		VALUES ($1,$2,$3,$4)
		RETURNING id, created_at
	`, e.UserID, e.DeltaXp, territoryID, e.Reason)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return Event{}, err
	}
	return e, nil
}

func (l *PostgresLedger) Totals(ctx context.Context, w Window, userIDs []string) ([]Total, error) {
	rows, err := l.db.Query(ctx, `
		SELECT e.user_id, COALESCE(u.username, e.user_id), COALESCE(SUM(e.delta_xp),0)
		FROM xp_events e
		LEFT JOIN users u ON u.id = e.user_id
		WHERE e.created_at >= $1 AND e.created_at <= $2
		  AND ($3::text[] IS NULL OR e.user_id = ANY($3))
		GROUP BY e.user_id, u.username
	`, w.Start, w.End, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []Total
	for rows.Next() {
		var t Total
		if err := rows.Scan(&t.UserID, &t.Username, &t.XP); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func (l *PostgresLedger) Sum(ctx context.Context, userID string, w Window) (int, error) {
	var total int
	err := l.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(delta_xp),0) FROM xp_events
		WHERE user_id=$1 AND created_at >= $2 AND created_at <= $3
	`, userID, w.Start, w.End).Scan(&total)
	return total, err
}

// MemoryLedger keeps events in process. Usernames default to user ids.
type MemoryLedger struct {
	mu        sync.RWMutex
	events    []Event
	usernames map[string]string
	now       func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{usernames: map[string]string{}, now: time.Now}
}

func (l *MemoryLedger) SetUsername(userID, username string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.usernames[userID] = username
}

func (l *MemoryLedger) Append(_ context.Context, e Event) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.ID = int64(len(l.events) + 1)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}
	l.events = append(l.events, e)
	return e, nil
}

func (l *MemoryLedger) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Event(nil), l.events...)
}

func (l *MemoryLedger) Totals(_ context.Context, w Window, userIDs []string) ([]Total, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var allowed map[string]bool
	if userIDs != nil {
		allowed = make(map[string]bool, len(userIDs))
		for _, id := range userIDs {
			allowed[id] = true
		}
	}
	byUser := map[string][]Event{}
	var order []string
	for _, e := range l.events {
		if allowed != nil && !allowed[e.UserID] {
			continue
		}
		if _, ok := byUser[e.UserID]; !ok {
			order = append(order, e.UserID)
		}
		byUser[e.UserID] = append(byUser[e.UserID], e)
	}

	var totals []Total
	for _, id := range order {
		events := byUser[id]
		if !anyInside(events, w) {
			continue
		}
		name := l.usernames[id]
		if name == "" {
			name = id
		}
		totals = append(totals, Total{UserID: id, Username: name, XP: Aggregate(events, w)})
	}
	return totals, nil
}

func (l *MemoryLedger) Sum(_ context.Context, userID string, w Window) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var events []Event
	for _, e := range l.events {
		if e.UserID == userID {
			events = append(events, e)
		}
	}
	return Aggregate(events, w), nil
}

func anyInside(events []Event, w Window) bool {
	for _, e := range events {
		if w.Contains(e.CreatedAt) {
			return true
		}
	}
	return false
}
