package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// Snapshot sources.
const (
	SourceConsole = "console"
	SourcePreset  = "preset"
)

// ErrNoSnapshot is returned when a calendar has never been saved through
// this service.
var ErrNoSnapshot = errors.New("no snapshot recorded")

// Snapshot records what a save wrote to the backend.
type Snapshot struct {
	ID             int64     `json:"id"`
	RunID          string    `json:"runId"`
	CalendarID     string    `json:"calendarId"`
	ServiceItemID  string    `json:"serviceItemId"`
	EncodedName    string    `json:"encodedName"`
	IsActive       bool      `json:"isActive"`
	RulesCount     int       `json:"rulesCount"`
	BlackoutsCount int       `json:"blackoutsCount"`
	Source         string    `json:"source"`
	SavedAt        time.Time `json:"savedAt"`
}

var snapshotColumns = []string{
	"id", "run_id", "calendar_id", "service_item_id", "encoded_name",
	"is_active", "rules_count", "blackouts_count", "source", "saved_at",
}

// RecordSnapshot stores s, filling RunID, Source and SavedAt when empty.
func (db *DB) RecordSnapshot(ctx context.Context, s *Snapshot) error {
	if s.RunID == "" {
		s.RunID = uuid.NewString()
	}
	if s.Source == "" {
		s.Source = SourceConsole
	}
	if s.SavedAt.IsZero() {
		s.SavedAt = time.Now()
	}
	s.SavedAt = s.SavedAt.UTC().Truncate(time.Millisecond)

	query, args, err := db.builder.Insert("save_snapshots").
		Columns(snapshotColumns[1:]...).
		Values(s.RunID, s.CalendarID, s.ServiceItemID, s.EncodedName,
			s.IsActive, s.RulesCount, s.BlackoutsCount, s.Source, s.SavedAt.UnixMilli()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert snapshot: %w", err)
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	if s.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("snapshot id: %w", err)
	}
	return nil
}

// LastSnapshot returns the most recent snapshot of a calendar.
func (db *DB) LastSnapshot(ctx context.Context, calendarID string) (*Snapshot, error) {
	snaps, err := db.ListSnapshots(ctx, calendarID, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrNoSnapshot
	}
	return &snaps[0], nil
}

// ListSnapshots returns snapshots newest first. An empty calendarID lists all
// calendars; limit <= 0 means no limit.
func (db *DB) ListSnapshots(ctx context.Context, calendarID string, limit int) ([]Snapshot, error) {
	qb := db.builder.Select(snapshotColumns...).
		From("save_snapshots").
		OrderBy("saved_at DESC", "id DESC")
	if calendarID != "" {
		qb = qb.Where(sq.Eq{"calendar_id": calendarID})
	}
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select snapshots: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneSnapshots deletes snapshots saved before cutoff, keeping the latest
// snapshot of every calendar so drift detection keeps working.
func (db *DB) PruneSnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	latest := db.builder.Select("MAX(id)").From("save_snapshots").GroupBy("calendar_id")
	latestSQL, latestArgs, err := latest.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build latest snapshots: %w", err)
	}

	query, args, err := db.builder.Delete("save_snapshots").
		Where(sq.Lt{"saved_at": cutoff.UTC().UnixMilli()}).
		Where(sq.Expr("id NOT IN ("+latestSQL+")", latestArgs...)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build prune snapshots: %w", err)
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

func scanSnapshot(rows *sql.Rows) (Snapshot, error) {
	var s Snapshot
	var savedAt int64
	if err := rows.Scan(
		&s.ID, &s.RunID, &s.CalendarID, &s.ServiceItemID, &s.EncodedName,
		&s.IsActive, &s.RulesCount, &s.BlackoutsCount, &s.Source, &savedAt,
	); err != nil {
		return Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	s.SavedAt = time.UnixMilli(savedAt).UTC()
	return s, nil
}
