package viewstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore persists view states in the view_states table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load returns the saved view state for key.
func (s *SQLiteStore) Load(ctx context.Context, key Key) (ViewState, bool, error) {
	if err := key.validate(); err != nil {
		return ViewState{}, false, err
	}

	var vs ViewState
	err := s.db.QueryRowContext(ctx, `
		SELECT zoom, center_lat, center_lng FROM view_states
		WHERE scope = ? AND building_id = ? AND level_index = ?`,
		key.Scope, key.BuildingID, key.Level,
	).Scan(&vs.Zoom, &vs.Center.Lat, &vs.Center.Lng)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ViewState{}, false, nil
		}
		return ViewState{}, false, fmt.Errorf("querying view state: %w", err)
	}
	return vs, true, nil
}

// Save upserts vs under key.
func (s *SQLiteStore) Save(ctx context.Context, key Key, vs ViewState) error {
	if err := key.validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO view_states (scope, building_id, level_index, zoom, center_lat, center_lng, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, building_id, level_index) DO UPDATE SET
			zoom = excluded.zoom,
			center_lat = excluded.center_lat,
			center_lng = excluded.center_lng,
			updated_at = excluded.updated_at`,
		key.Scope, key.BuildingID, key.Level, vs.Zoom, vs.Center.Lat, vs.Center.Lng,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving view state: %w", err)
	}
	return nil
}
