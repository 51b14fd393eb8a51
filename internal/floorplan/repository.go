package floorplan

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines the configuration store operations.
type Repository interface {
	GetBuilding(ctx context.Context, id string) (*Building, error)
	ListBuildings(ctx context.Context) ([]Building, error)
	SaveBuilding(ctx context.Context, b *Building) error
	DeleteBuilding(ctx context.Context, id string) error

	GetWidget(ctx context.Context, id string) (*WidgetConfig, error)
	SaveWidget(ctx context.Context, w *WidgetConfig) error
	DeleteWidget(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed configuration store.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetBuilding returns a building with its levels and markers.
func (r *SQLiteRepository) GetBuilding(ctx context.Context, id string) (*Building, error) {
	var b Building
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM buildings WHERE id = ?`, id,
	).Scan(&b.ID, &b.Name, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBuildingNotFound
		}
		return nil, fmt.Errorf("querying building %s: %w", id, err)
	}
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)

	levels, err := r.queryLevels(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Levels = levels
	return &b, nil
}

// ListBuildings returns all buildings without their levels, ordered by name.
func (r *SQLiteRepository) ListBuildings(ctx context.Context) ([]Building, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM buildings ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("querying buildings: %w", err)
	}
	defer rows.Close()

	var out []Building
	for rows.Next() {
		var b Building
		var createdAt, updatedAt string
		if err := rows.Scan(&b.ID, &b.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning building row: %w", err)
		}
		b.CreatedAt = parseTime(createdAt)
		b.UpdatedAt = parseTime(updatedAt)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating building rows: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) queryLevels(ctx context.Context, buildingID string) ([]Level, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT level_index, name, binary_id, width, height, corners
		FROM levels WHERE building_id = ? ORDER BY level_index`, buildingID)
	if err != nil {
		return nil, fmt.Errorf("querying levels: %w", err)
	}
	defer rows.Close()

	var levels []Level
	for rows.Next() {
		var (
			idx     int
			l       Level
			corners string
		)
		if err := rows.Scan(&idx, &l.Name, &l.BinaryID, &l.Dimensions.Width, &l.Dimensions.Height, &corners); err != nil {
			return nil, fmt.Errorf("scanning level row: %w", err)
		}
		if err := json.Unmarshal([]byte(corners), &l.Corners); err != nil {
			return nil, fmt.Errorf("decoding corners of level %d: %w", idx, err)
		}
		l.Markers = []Marker{}
		levels = append(levels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating level rows: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("closing level rows: %w", err)
	}

	markerRows, err := r.db.QueryContext(ctx, `
		SELECT level_index, device_id, device_name, lat, lng
		FROM markers WHERE building_id = ? ORDER BY level_index, sort_order, device_id`, buildingID)
	if err != nil {
		return nil, fmt.Errorf("querying markers: %w", err)
	}
	defer markerRows.Close()

	for markerRows.Next() {
		var (
			idx      int
			m        Marker
			lat, lng sql.NullFloat64
		)
		if err := markerRows.Scan(&idx, &m.DeviceID, &m.DeviceName, &lat, &lng); err != nil {
			return nil, fmt.Errorf("scanning marker row: %w", err)
		}
		if idx < 0 || idx >= len(levels) {
			continue
		}
		if lat.Valid && lng.Valid {
			m.Position = &Position{Lat: lat.Float64, Lng: lng.Float64}
		}
		levels[idx].Markers = append(levels[idx].Markers, m)
	}
	if err := markerRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating marker rows: %w", err)
	}
	return levels, nil
}

// SaveBuilding inserts or replaces a building together with all its levels
// and markers in one transaction.
func (r *SQLiteRepository) SaveBuilding(ctx context.Context, b *Building) error {
	if err := ValidateBuilding(b); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO buildings (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		b.ID, b.Name, now, now); err != nil {
		return fmt.Errorf("upserting building %s: %w", b.ID, err)
	}

	// Markers cascade from levels.
	if _, err := tx.ExecContext(ctx, `DELETE FROM levels WHERE building_id = ?`, b.ID); err != nil {
		return fmt.Errorf("clearing levels of %s: %w", b.ID, err)
	}

	for idx, l := range b.Levels {
		corners, err := json.Marshal(nonNilCorners(l.Corners))
		if err != nil {
			return fmt.Errorf("encoding corners of level %d: %w", idx, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO levels (building_id, level_index, name, binary_id, width, height, corners)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.ID, idx, l.Name, l.BinaryID, l.Dimensions.Width, l.Dimensions.Height, string(corners)); err != nil {
			return fmt.Errorf("inserting level %d: %w", idx, err)
		}
		for order, m := range l.Markers {
			var lat, lng sql.NullFloat64
			if m.Position != nil {
				lat = sql.NullFloat64{Float64: m.Position.Lat, Valid: true}
				lng = sql.NullFloat64{Float64: m.Position.Lng, Valid: true}
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO markers (building_id, level_index, device_id, device_name, lat, lng, sort_order)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				b.ID, idx, m.DeviceID, m.DeviceName, lat, lng, order); err != nil {
				return fmt.Errorf("inserting marker %s on level %d: %w", m.DeviceID, idx, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing building %s: %w", b.ID, err)
	}
	return nil
}

// DeleteBuilding removes a building, its levels, markers and widgets.
func (r *SQLiteRepository) DeleteBuilding(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM buildings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting building %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // SQLite always reports rows affected
		return ErrBuildingNotFound
	}
	return nil
}

// GetWidget returns a widget configuration by ID.
func (r *SQLiteRepository) GetWidget(ctx context.Context, id string) (*WidgetConfig, error) {
	var (
		w                     WidgetConfig
		thresholds, popupJSON string
		updatedAt             string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, building_id, primary_fragment, primary_series, zoom_level,
			legend_title, thresholds, popup_datapoints, updated_at
		FROM widgets WHERE id = ?`, id,
	).Scan(&w.ID, &w.BuildingID, &w.Primary.Fragment, &w.Primary.Series, &w.ZoomLevel,
		&w.LegendTitle, &thresholds, &popupJSON, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWidgetNotFound
		}
		return nil, fmt.Errorf("querying widget %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(thresholds), &w.Thresholds); err != nil {
		return nil, fmt.Errorf("decoding thresholds of widget %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(popupJSON), &w.PopupDatapoints); err != nil {
		return nil, fmt.Errorf("decoding popup datapoints of widget %s: %w", id, err)
	}
	w.UpdatedAt = parseTime(updatedAt)
	return &w, nil
}

// SaveWidget inserts or replaces a widget configuration.
func (r *SQLiteRepository) SaveWidget(ctx context.Context, w *WidgetConfig) error {
	if err := ValidateWidget(w); err != nil {
		return err
	}

	thresholds, err := json.Marshal(nonNil(w.Thresholds))
	if err != nil {
		return fmt.Errorf("encoding thresholds: %w", err)
	}
	popup, err := json.Marshal(nonNil(w.PopupDatapoints))
	if err != nil {
		return fmt.Errorf("encoding popup datapoints: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO widgets (id, building_id, primary_fragment, primary_series, zoom_level,
			legend_title, thresholds, popup_datapoints, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			building_id = excluded.building_id,
			primary_fragment = excluded.primary_fragment,
			primary_series = excluded.primary_series,
			zoom_level = excluded.zoom_level,
			legend_title = excluded.legend_title,
			thresholds = excluded.thresholds,
			popup_datapoints = excluded.popup_datapoints,
			updated_at = excluded.updated_at`,
		w.ID, w.BuildingID, w.Primary.Fragment, w.Primary.Series, w.ZoomLevel,
		w.LegendTitle, string(thresholds), string(popup), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting widget %s: %w", w.ID, err)
	}
	return nil
}

// DeleteWidget removes a widget configuration.
func (r *SQLiteRepository) DeleteWidget(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM widgets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting widget %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // SQLite always reports rows affected
		return ErrWidgetNotFound
	}
	return nil
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s) //nolint:errcheck // Zero time on malformed rows
	return t
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nonNilCorners(c [][2]float64) [][2]float64 {
	return nonNil(c)
}
