package gamification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/cineforum/internal/db"
	"github.com/ziadkadry99/cineforum/internal/logging"
	"github.com/ziadkadry99/cineforum/internal/realtime"
	"github.com/ziadkadry99/cineforum/internal/users"
)

// Award is the outcome of one Refresh.
type Award struct {
	UserID        string    `json:"user_id"`
	Missions      []Mission `json:"missions"`
	XPGained      int       `json:"xp_gained"`
	XP            int       `json:"xp"`
	Level         int       `json:"level"`
	PreviousLevel int       `json:"previous_level"`
}

// LeveledUp reports whether the award crossed a level threshold.
func (a *Award) LeveledUp() bool { return a.Level > a.PreviousLevel }

// Engine re-evaluates missions and persists XP and level.
type Engine struct {
	db       *db.DB
	pub      realtime.Publisher
	missions []Mission
}

// NewEngine creates an engine over the built-in mission catalog.
func NewEngine(database *db.DB, pub realtime.Publisher) *Engine {
	if pub == nil {
		pub = realtime.Discard
	}
	return &Engine{db: database, pub: pub, missions: Missions}
}

// Refresh derives the user's stats, completes every newly satisfied
// mission, adds its XP and recomputes the level, all in one transaction.
func (e *Engine) Refresh(ctx context.Context, userID string) (*Award, error) {
	award := &Award{UserID: userID, Missions: []Mission{}}

	err := e.db.WithTx(ctx, func(tx *sql.Tx) error {
		var xp, storedLevel int
		err := tx.QueryRowContext(ctx, `SELECT xp, level FROM users WHERE id = ?`, userID).Scan(&xp, &storedLevel)
		if errors.Is(err, sql.ErrNoRows) {
			return users.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading xp: %w", err)
		}

		completed, err := completedSet(ctx, tx, userID)
		if err != nil {
			return err
		}
		stats, err := DeriveStats(ctx, tx, userID)
		if err != nil {
			return err
		}

		newly := Evaluate(e.missions, completed, stats)
		award.PreviousLevel = LevelFor(xp)
		award.XPGained = TotalXP(newly)
		award.XP = xp + award.XPGained
		award.Level = LevelFor(award.XP)
		award.Missions = append(award.Missions, newly...)

		now := time.Now().UTC()
		for _, m := range newly {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO user_missions (user_id, mission_id, completed_at) VALUES (?, ?, ?)`,
				userID, m.ID, now,
			); err != nil {
				return fmt.Errorf("recording mission %s: %w", m.ID, err)
			}
		}

		if award.XPGained == 0 && award.Level == storedLevel {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET xp = ?, level = ? WHERE id = ?`, award.XP, award.Level, userID); err != nil {
			return fmt.Errorf("updating xp: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(award.Missions) > 0 {
		logging.Info().Str("user", userID).Int("xp_gained", award.XPGained).Int("level", award.Level).
			Int("missions", len(award.Missions)).Msg("missions completed")
		e.pub.Publish("users", "progress", award)
	}
	return award, nil
}

// Track runs Refresh after a triggering action. A failure is logged and
// does not affect the action that triggered it.
func (e *Engine) Track(ctx context.Context, userID string) *Award {
	award, err := e.Refresh(ctx, userID)
	if err != nil {
		logging.Error().Err(err).Str("user", userID).Msg("mission evaluation failed")
		return nil
	}
	return award
}

// Stats returns the user's current counters.
func (e *Engine) Stats(ctx context.Context, userID string) (Stats, error) {
	return DeriveStats(ctx, e.db, userID)
}

// CompletedMission is a mission with the time it was completed.
type CompletedMission struct {
	Mission
	CompletedAt time.Time `json:"completed_at"`
}

// Completed returns the user's completed missions, oldest first.
func (e *Engine) Completed(ctx context.Context, userID string) ([]CompletedMission, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT mission_id, completed_at FROM user_missions WHERE user_id = ? ORDER BY completed_at, mission_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing missions: %w", err)
	}
	defer rows.Close()

	out := []CompletedMission{}
	for rows.Next() {
		var id string
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("scanning mission: %w", err)
		}
		m, ok := MissionByID(id)
		if !ok {
			m = Mission{ID: id, Title: id}
		}
		out = append(out, CompletedMission{Mission: m, CompletedAt: at})
	}
	return out, rows.Err()
}

func completedSet(ctx context.Context, tx *sql.Tx, userID string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT mission_id FROM user_missions WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing completed missions: %w", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning mission: %w", err)
		}
		set[id] = true
	}
	return set, rows.Err()
}
