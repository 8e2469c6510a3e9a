package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func TestOpenMemory(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	tables := []string{
		"users", "sessions", "user_missions", "movies", "ratings",
		"events", "event_candidates", "event_votes", "event_attendance",
		"chat_messages", "trivia_rounds", "timeline_rounds", "news_articles", "audit_entries",
	}

	for _, table := range tables {
		var count int
		err := d.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
		if err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	if err := d.migrate(); err != nil {
		t.Fatalf("second migrate() error: %v", err)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "club.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer d.Close()

	if d.Path() != path {
		t.Errorf("expected path %q, got %q", path, d.Path())
	}
}

func TestRatingScoreConstraint(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	mustExec(t, d, `INSERT INTO users (id, username, password_hash) VALUES ('u1', 'ada', 'x')`)
	mustExec(t, d, `INSERT INTO movies (id, title) VALUES (1, 'Stalker')`)

	if _, err := d.Exec(`INSERT INTO ratings (user_id, movie_id, score) VALUES ('u1', 1, 11)`); err == nil {
		t.Error("expected CHECK constraint to reject score 11")
	}
}

func TestWithTxRollsBack(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	boom := errors.New("boom")
	err = d.WithTx(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO movies (id, title) VALUES (7, 'Ran')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var n int
	d.QueryRow(`SELECT COUNT(*) FROM movies`).Scan(&n)
	if n != 0 {
		t.Errorf("expected rollback, found %d movies", n)
	}
}

func TestWithTxConcurrentReadModifyWrite(t *testing.T) {
	d, err := Open(filepath.Join(t.TempDir(), "club.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer d.Close()

	mustExec(t, d, `INSERT INTO users (id, username, password_hash) VALUES ('u1', 'ada', 'x')`)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- d.WithTx(context.Background(), func(tx *sql.Tx) error {
				var xp int
				if err := tx.QueryRow(`SELECT xp FROM users WHERE id = 'u1'`).Scan(&xp); err != nil {
					return err
				}
				_, err := tx.Exec(`UPDATE users SET xp = ? WHERE id = 'u1'`, xp+10)
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("WithTx: %v", err)
		}
	}

	var xp int
	if err := d.QueryRow(`SELECT xp FROM users WHERE id = 'u1'`).Scan(&xp); err != nil {
		t.Fatalf("reading xp: %v", err)
	}
	if xp != workers*10 {
		t.Errorf("expected xp %d, got %d", workers*10, xp)
	}
}

func mustExec(t *testing.T, d *DB, q string) {
	t.Helper()
	if _, err := d.Exec(q); err != nil {
		t.Fatalf("exec %q: %v", q, err)
	}
}
