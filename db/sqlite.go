package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/reddit-banbot/models"
)

// Database is the moderation log: one row per ban, removal or dry-run decision
type Database struct {
	db    *sql.DB
	mutex sync.RWMutex
	log   *logrus.Logger
}

// NewDatabase creates a new SQLite database connection
func NewDatabase(dbPath string, log *logrus.Logger) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &Database{
		db:  db,
		log: log,
	}

	if err := database.initTables(); err != nil {
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.db.Close()
}

// initTables creates the necessary tables if they don't exist
func (d *Database) initTables() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	query := `
	CREATE TABLE IF NOT EXISTS moderation_actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		subreddit TEXT NOT NULL,
		username TEXT NOT NULL,
		action TEXT NOT NULL,
		status TEXT NOT NULL,
		detail TEXT,
		bad_karma INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_actions_username ON moderation_actions(username);
	CREATE INDEX IF NOT EXISTS idx_actions_run ON moderation_actions(run_id);
	`

	_, err := d.db.Exec(query)
	return err
}

// RecordAction saves an action to the moderation log and sets its ID
func (d *Database) RecordAction(action *models.ModerationAction) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO moderation_actions (
		run_id, subreddit, username, action, status, detail, bad_karma, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := d.db.Exec(
		query,
		action.RunID, action.Subreddit, action.Username, action.Action,
		action.Status, action.Detail, action.BadKarma, action.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		action.ID = id
	}

	return nil
}

// GetActionsByUser returns every logged action against a user, oldest first
func (d *Database) GetActionsByUser(username string) ([]models.ModerationAction, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	query := `
	SELECT id, run_id, subreddit, username, action, status, detail, bad_karma, created_at
	FROM moderation_actions
	WHERE username = ?
	ORDER BY id ASC
	`

	rows, err := d.db.Query(query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions for %s: %w", username, err)
	}
	defer rows.Close()

	actions := make([]models.ModerationAction, 0)
	for rows.Next() {
		var action models.ModerationAction
		var detail sql.NullString

		err := rows.Scan(
			&action.ID, &action.RunID, &action.Subreddit, &action.Username,
			&action.Action, &action.Status, &detail, &action.BadKarma, &action.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		action.Detail = detail.String
		actions = append(actions, action)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return actions, nil
}

// CountActionsByStatus returns "action/status" -> count for one run
func (d *Database) CountActionsByStatus(runID string) (map[string]int, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	query := `
	SELECT action, status, COUNT(*)
	FROM moderation_actions
	WHERE run_id = ?
	GROUP BY action, status
	`

	rows, err := d.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count actions for run %s: %w", runID, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action, status string
		var count int

		if err := rows.Scan(&action, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan action count: %w", err)
		}

		counts[action+"/"+status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return counts, nil
}
