package gamification

import (
	"context"
	"database/sql"
	"fmt"
)

// Stats are the per-user counters missions are evaluated against. They are
// derived from storage on every evaluation, never stored.
type Stats struct {
	Ratings            int `json:"ratings"`
	Reviews            int `json:"reviews"`
	GenresRated        int `json:"genres_rated"`
	Votes              int `json:"votes"`
	EventsAttended     int `json:"events_attended"`
	CandidatesProposed int `json:"candidates_proposed"`
	WinningProposals   int `json:"winning_proposals"`
	ChatMessages       int `json:"chat_messages"`
	TriviaPlayed       int `json:"trivia_played"`
	TriviaCorrect      int `json:"trivia_correct"`
	TimelineGames      int `json:"timeline_games"`
	TimelinePerfect    int `json:"timeline_perfect"`
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var statQueries = []struct {
	name  string
	query string
	dest  func(*Stats) *int
}{
	{"ratings", `SELECT COUNT(*) FROM ratings WHERE user_id = ?`, func(s *Stats) *int { return &s.Ratings }},
	{"reviews", `SELECT COUNT(*) FROM ratings WHERE user_id = ? AND review != ''`, func(s *Stats) *int { return &s.Reviews }},
	{"genres", `SELECT COUNT(DISTINCT g.value) FROM ratings r JOIN movies m ON m.id = r.movie_id, json_each(m.genres) g WHERE r.user_id = ?`, func(s *Stats) *int { return &s.GenresRated }},
	{"votes", `SELECT COUNT(*) FROM event_votes WHERE user_id = ?`, func(s *Stats) *int { return &s.Votes }},
	{"attendance", `SELECT COUNT(*) FROM event_attendance WHERE user_id = ?`, func(s *Stats) *int { return &s.EventsAttended }},
	{"candidates", `SELECT COUNT(*) FROM event_candidates WHERE proposed_by = ?`, func(s *Stats) *int { return &s.CandidatesProposed }},
	{"winning proposals", `SELECT COUNT(*) FROM event_candidates c JOIN events e ON e.id = c.event_id AND e.winner_movie_id = c.movie_id WHERE c.proposed_by = ?`, func(s *Stats) *int { return &s.WinningProposals }},
	{"chat", `SELECT COUNT(*) FROM chat_messages WHERE user_id = ?`, func(s *Stats) *int { return &s.ChatMessages }},
	{"trivia played", `SELECT COUNT(*) FROM trivia_rounds WHERE user_id = ? AND completed_at IS NOT NULL`, func(s *Stats) *int { return &s.TriviaPlayed }},
	{"trivia correct", `SELECT COALESCE(SUM(correct), 0) FROM trivia_rounds WHERE user_id = ? AND completed_at IS NOT NULL`, func(s *Stats) *int { return &s.TriviaCorrect }},
	{"timeline games", `SELECT COUNT(*) FROM timeline_rounds WHERE user_id = ? AND completed_at IS NOT NULL`, func(s *Stats) *int { return &s.TimelineGames }},
	{"timeline perfect", `SELECT COUNT(*) FROM timeline_rounds WHERE user_id = ? AND perfect = 1`, func(s *Stats) *int { return &s.TimelinePerfect }},
}

// DeriveStats computes a user's counters.
func DeriveStats(ctx context.Context, q querier, userID string) (Stats, error) {
	var s Stats
	for _, sq := range statQueries {
		if err := q.QueryRowContext(ctx, sq.query, userID).Scan(sq.dest(&s)); err != nil {
			return Stats{}, fmt.Errorf("counting %s: %w", sq.name, err)
		}
	}
	return s, nil
}
