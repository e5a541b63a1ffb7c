package xp

import "sort"

// Total is one user's XP inside a window.
type Total struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	XP       int    `json:"xp"`
}

type Entry struct {
	Rank int `json:"rank"`
	Total
}

// Rank orders totals by XP descending, then username ascending, and numbers
// them from 1. The input slice is not modified.
func Rank(totals []Total) []Entry {
	sorted := append([]Total(nil), totals...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].XP != sorted[j].XP {
			return sorted[i].XP > sorted[j].XP
		}
		return sorted[i].Username < sorted[j].Username
	})
	entries := make([]Entry, len(sorted))
	for i, t := range sorted {
		entries[i] = Entry{Rank: i + 1, Total: t}
	}
	return entries
}
