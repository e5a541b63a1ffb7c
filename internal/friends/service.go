// Package friends reads the accepted friend graph. Sending and accepting
// requests happens elsewhere; this package only reads.
package friends

import (
	"context"
	"sort"

	"backend-territory/internal/db"
)

// Provider answers who a user's accepted friends are.
type Provider interface {
	AcceptedFriendIDs(ctx context.Context, userID string) ([]string, error)
}

type Service struct {
	db db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

// AcceptedFriendIDs returns the other side of every accepted friendship the
// user takes part in, whichever side sent the request.
func (s *Service) AcceptedFriendIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT CASE WHEN requester_id=$1 THEN addressee_id ELSE requester_id END
		FROM friendships
		WHERE status='accepted' AND (requester_id=$1 OR addressee_id=$1)
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := map[string]bool{}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if id == userID || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Friends returns accepted friends with their usernames, sorted by username.
func (s *Service) Friends(ctx context.Context, userID string) ([]Friend, error) {
	ids, err := s.AcceptedFriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Friend{}, nil
	}
	names, err := s.Usernames(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Friend, 0, len(ids))
	for _, id := range ids {
		out = append(out, Friend{UserID: id, Username: names[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Usernames maps user ids to usernames. Unknown ids map to themselves.
func (s *Service) Usernames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		names[id] = id
	}
	if len(ids) == 0 {
		return names, nil
	}
	rows, err := s.db.Query(ctx, `SELECT id, username FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

// Static is a fixed, symmetric friend graph.
type Static map[string][]string

func (s Static) AcceptedFriendIDs(_ context.Context, userID string) ([]string, error) {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id != userID && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range s[userID] {
		add(id)
	}
	for other, list := range s {
		for _, id := range list {
			if id == userID {
				add(other)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}
