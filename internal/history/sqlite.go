// Package history keeps past scan reports in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/ethanolivertroy/depaudit/internal/models"
	"github.com/ethanolivertroy/depaudit/internal/report"
)

// ErrNotFound is returned by Get for an unknown scan id
var ErrNotFound = errors.New("scan not found")

// Store records scan reports
type Store interface {
	Close() error
	Save(ctx context.Context, manifest string, r models.ScanReport) (int64, error)
	List(ctx context.Context, limit int) ([]Entry, error)
	Get(ctx context.Context, id int64) (*models.ScanReport, error)
}

// Entry is the summary row of one stored scan
type Entry struct {
	ID       int64          `json:"id"`
	ScanDate time.Time      `json:"scanDate"`
	Manifest string         `json:"manifest"`
	Summary  models.Summary `json:"summary"`
}

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and applies migrations
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS scans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_date TEXT NOT NULL,
		manifest TEXT NOT NULL,
		total_packages INTEGER NOT NULL,
		direct_count INTEGER NOT NULL,
		transitive_count INTEGER NOT NULL,
		vulnerable_packages INTEGER NOT NULL,
		vulnerable_direct INTEGER NOT NULL,
		vulnerable_transitive INTEGER NOT NULL,
		report TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scans_date ON scans(scan_date);
	`
	_, err := s.db.Exec(query)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save appends a scan and returns its id
func (s *SQLiteStore) Save(ctx context.Context, manifest string, r models.ScanReport) (int64, error) {
	doc, err := report.Encode(r, report.FormatJSON)
	if err != nil {
		return 0, err
	}

	query := `INSERT INTO scans (scan_date, manifest, total_packages, direct_count, transitive_count,
		vulnerable_packages, vulnerable_direct, vulnerable_transitive, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sum := r.Summary
	res, err := s.db.ExecContext(ctx, query,
		r.ScanDate.UTC().Format(time.RFC3339Nano), manifest,
		sum.TotalPackages, sum.DirectCount, sum.TransitiveCount,
		sum.VulnerablePackages, sum.VulnerableDirect, sum.VulnerableTransitive,
		string(doc))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// List returns the most recent scans, newest first
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, scan_date, manifest, total_packages, direct_count, transitive_count,
		vulnerable_packages, vulnerable_direct, vulnerable_transitive
		FROM scans ORDER BY scan_date DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		var e Entry
		var date string
		sum := &e.Summary
		if err := rows.Scan(&e.ID, &date, &e.Manifest, &sum.TotalPackages, &sum.DirectCount,
			&sum.TransitiveCount, &sum.VulnerablePackages, &sum.VulnerableDirect,
			&sum.VulnerableTransitive); err != nil {
			return nil, err
		}
		if e.ScanDate, err = time.Parse(time.RFC3339Nano, date); err != nil {
			return nil, fmt.Errorf("scan %d: bad date %q: %w", e.ID, date, err)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// Get returns the full report of a stored scan
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*models.ScanReport, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM scans WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return report.Decode([]byte(doc), report.FormatJSON)
}
