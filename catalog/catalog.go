/*Package catalog maintains a small sqlite index of every sweep file the
sink writes. The dashboard tooling otherwise has to glob the output
directory and parse filenames; the index gives it run identity, row counts
and byte sizes for free.
*/
package catalog

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const createTableStmt = `CREATE TABLE IF NOT EXISTS sweeps (
	"ID"        INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	"RunID"     TEXT NOT NULL,
	"File"      TEXT NOT NULL,
	"Rows"      INTEGER,
	"FreqStart" REAL,
	"FreqEnd"   REAL,
	"Label"     TEXT,
	"Bytes"     INTEGER,
	"WrittenAt" INTEGER
);`

const insertStmt = `INSERT INTO sweeps(
	RunID, File, Rows, FreqStart, FreqEnd, Label, Bytes, WrittenAt
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);`

// Entry describes one written sweep file.
type Entry struct {
	RunID     string
	File      string
	Rows      int
	FreqStart float64
	FreqEnd   float64
	Label     string
	Bytes     int64
	WrittenAt time.Time
}

// DB is an open sweep catalog.
type DB struct {
	db *sql.DB
}

// Open opens (creating if necessary) the catalog at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sweep catalog %q: %w", path, err)
	}
	if _, err := db.Exec(createTableStmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sweeps table: %w", err)
	}
	return &DB{db: db}, nil
}

// Record inserts one entry.
func (d *DB) Record(e Entry) error {
	_, err := d.db.Exec(insertStmt,
		e.RunID, e.File, e.Rows, e.FreqStart, e.FreqEnd, e.Label, e.Bytes, e.WrittenAt.Unix())
	return err
}

// ForRun returns every entry recorded under the given run id, oldest first.
func (d *DB) ForRun(runID string) ([]Entry, error) {
	rows, err := d.db.Query(
		`SELECT RunID, File, Rows, FreqStart, FreqEnd, Label, Bytes, WrittenAt
		 FROM sweeps WHERE RunID = ? ORDER BY ID;`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var at int64
		if err := rows.Scan(&e.RunID, &e.File, &e.Rows, &e.FreqStart, &e.FreqEnd, &e.Label, &e.Bytes, &at); err != nil {
			return nil, err
		}
		e.WrittenAt = time.Unix(at, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}
