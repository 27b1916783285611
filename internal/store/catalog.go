package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/schedule"
)

// Catalog is the SQLite index of everything recorded under the dataset root.
// The files on disk are the data of record; the catalog exists so sessions can
// be listed and resumed without walking the tree.
type Catalog struct {
	db *sql.DB
}

// CatalogSubject is one enrolled subject.
type CatalogSubject struct {
	ID     string
	Age    int
	Gender string
}

// CatalogPosition is one recorded Position row.
type CatalogPosition struct {
	ID        int64
	Subject   string
	Sitting   int
	Position  int
	StartedAt time.Time
	EndedAt   *time.Time
	Status    string // "recording", "complete", "aborted"
	Dir       string
}

const catalogSchema = `
CREATE TABLE IF NOT EXISTS subjects (
	id TEXT PRIMARY KEY,
	age INTEGER NOT NULL,
	gender TEXT NOT NULL,
	createdAt REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS positions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	subjectId TEXT NOT NULL REFERENCES subjects(id),
	sitting INTEGER NOT NULL,
	position INTEGER NOT NULL,
	startedAt REAL NOT NULL,
	endedAt REAL,
	status TEXT NOT NULL,
	dir TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trials (
	positionId INTEGER NOT NULL REFERENCES positions(id),
	trialId INTEGER NOT NULL,
	gesture TEXT NOT NULL,
	holdStartNs INTEGER NOT NULL,
	holdEndNs INTEGER NOT NULL,
	restEndNs INTEGER NOT NULL,
	completed INTEGER NOT NULL,
	PRIMARY KEY (positionId, trialId)
);
`

// OpenCatalog opens (creating if needed) the catalog database.
func OpenCatalog(path string) (*Catalog, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}
	if _, err := db.Exec(catalogSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// EnsureSubject inserts the subject if it is not already enrolled.
func (c *Catalog) EnsureSubject(s CatalogSubject) error {
	_, err := c.db.Exec(`
		INSERT INTO subjects (id, age, gender, createdAt)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, s.ID, s.Age, s.Gender, unixFloat(time.Now()))
	if err != nil {
		return fmt.Errorf("insert subject: %w", err)
	}
	return nil
}

// BeginPosition records that a Position recording has started and returns its
// catalog id.
func (c *Catalog) BeginPosition(subject string, sitting, position int, dir string, startedAt time.Time) (int64, error) {
	res, err := c.db.Exec(`
		INSERT INTO positions (subjectId, sitting, position, startedAt, status, dir)
		VALUES (?, ?, ?, ?, 'recording', ?)
	`, subject, sitting, position, unixFloat(startedAt), dir)
	if err != nil {
		return 0, fmt.Errorf("insert position: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("position id: %w", err)
	}
	return id, nil
}

// FinishPosition closes a Position row with its final status.
func (c *Catalog) FinishPosition(id int64, endedAt time.Time, complete bool) error {
	status := "complete"
	if !complete {
		status = "aborted"
	}
	_, err := c.db.Exec(`
		UPDATE positions SET endedAt = ?, status = ? WHERE id = ?
	`, unixFloat(endedAt), status, id)
	if err != nil {
		return fmt.Errorf("finish position: %w", err)
	}
	return nil
}

// InsertTrials records the realized trial table for a Position.
func (c *Catalog) InsertTrials(positionID int64, trials []schedule.Trial) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("begin trials tx: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO trials (positionId, trialId, gesture, holdStartNs, holdEndNs, restEndNs, completed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare trial insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range trials {
		if _, err := stmt.Exec(positionID, t.ID, t.Gesture,
			t.HoldStart.Nanoseconds(), t.HoldEnd.Nanoseconds(),
			t.RestEnd.Nanoseconds(), t.Completed); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert trial %d: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trials: %w", err)
	}
	return nil
}

// Positions lists recorded Positions for a subject, newest first. An empty
// subject lists everything.
func (c *Catalog) Positions(subject string) ([]CatalogPosition, error) {
	query := `
		SELECT id, subjectId, sitting, position, startedAt, endedAt, status, dir
		FROM positions
	`
	var args []any
	if subject != "" {
		query += ` WHERE subjectId = ?`
		args = append(args, subject)
	}
	query += ` ORDER BY startedAt DESC`

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []CatalogPosition
	for rows.Next() {
		var p CatalogPosition
		var startedAt float64
		var endedAt sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.Subject, &p.Sitting, &p.Position,
			&startedAt, &endedAt, &p.Status, &p.Dir); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.StartedAt = timeFromUnix(startedAt)
		if endedAt.Valid {
			t := timeFromUnix(endedAt.Float64)
			p.EndedAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// NextSitting returns 1 + the highest sitting recorded for the subject.
func (c *Catalog) NextSitting(subject string) (int, error) {
	row := c.db.QueryRow(`
		SELECT COALESCE(MAX(sitting), 0) FROM positions WHERE subjectId = ?
	`, subject)
	var max int
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("scan max sitting: %w", err)
	}
	return max + 1, nil
}

func unixFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
