package xp

import (
	"context"
	"time"
)

type Service struct {
	ledger Ledger
	board  *Leaderboard
	loc    *time.Location
	now    func() time.Time
}

func NewService(ledger Ledger, board *Leaderboard, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{ledger: ledger, board: board, loc: loc, now: time.Now}
}

func (s *Service) Window(name string) (Window, error) {
	return WindowByName(name, s.now(), s.loc)
}

func (s *Service) Leaderboard(ctx context.Context, window string, limit int, scopeUserID string) ([]Entry, error) {
	w, err := s.Window(window)
	if err != nil {
		return nil, err
	}
	return s.board.Top(ctx, w, limit, scopeUserID)
}

type Me struct {
	UserID string `json:"user_id"`
	Window Window `json:"window"`
	XP     int    `json:"xp"`
}

func (s *Service) Me(ctx context.Context, userID, window string) (Me, error) {
	w, err := s.Window(window)
	if err != nil {
		return Me{}, err
	}
	total, err := s.ledger.Sum(ctx, userID, w)
	if err != nil {
		return Me{}, err
	}
	return Me{UserID: userID, Window: w, XP: total}, nil
}
