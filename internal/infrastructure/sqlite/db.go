package sqlite

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; funneling everything through one
	// connection avoids SQLITE_BUSY instead of handling it per statement.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

func RunMigrations(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			amount_required TEXT NOT NULL,
			amount_paid TEXT NOT NULL,
			currency TEXT NOT NULL,
			backend TEXT NOT NULL,
			status TEXT NOT NULL,
			external_id TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			paid_at DATETIME,
			version INTEGER NOT NULL DEFAULT 0
		);`,

		`CREATE INDEX IF NOT EXISTS idx_payments_created_at ON payments (created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments (status);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
