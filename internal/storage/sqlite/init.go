package sqlite

import (
	"database/sql"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database and creates the history table if it
// doesn't exist.
func InitDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS download_history (
		download_id TEXT PRIMARY KEY,
		url TEXT,
		title TEXT,
		filename TEXT,
		format TEXT,
		platform TEXT,
		status TEXT DEFAULT 'prepared',
		total_bytes INTEGER DEFAULT 0,
		prepared_at DATETIME,
		updated_at DATETIME
	)`)

	if err != nil {
		return nil, err
	}

	return db, nil
}
