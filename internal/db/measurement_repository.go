package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/unklstewy/mount-modeler/pkg/devices"
	"github.com/unklstewy/mount-modeler/pkg/measurement"
)

// MeasurementRepository stores measurement sets under named slots.
type MeasurementRepository struct {
	db      *DB
	retries int
}

var _ devices.PersistentStore = (*MeasurementRepository)(nil)

// SlotInfo summarizes one stored set.
type SlotInfo struct {
	Slot       string    `json:"slot"`
	PointCount int       `json:"pointCount"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NewMeasurementRepository creates a new measurement repository.
func NewMeasurementRepository(db *DB) *MeasurementRepository {
	return &MeasurementRepository{db: db, retries: 2}
}

// SaveMeasurements replaces the set stored under slot.
func (r *MeasurementRepository) SaveMeasurements(ctx context.Context, slot string, points []measurement.Point) error {
	return WithRetry(ctx, func() error {
		return r.save(ctx, slot, points)
	}, r.retries)
}

func (r *MeasurementRepository) save(ctx context.Context, slot string, points []measurement.Point) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, r.db.rebind(`DELETE FROM measurements WHERE slot = ?`), slot); err != nil {
		return fmt.Errorf("failed to clear slot %s: %w", slot, err)
	}

	_, err = tx.ExecContext(ctx, r.db.rebind(`
		INSERT INTO measurement_sets (slot, point_count, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (slot) DO UPDATE SET
			point_count = excluded.point_count,
			updated_at = excluded.updated_at
	`), slot, len(points), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert slot %s: %w", slot, err)
	}

	insert := r.db.rebind(`
		INSERT INTO measurements (slot, idx, azimuth, altitude, ra_error, dec_error, model_error, captured_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	for i, p := range points {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode point %d: %w", p.Index, err)
		}
		var captured any
		if !p.CapturedAt.IsZero() {
			captured = p.CapturedAt.UTC()
		}
		// idx keeps slice order even when Index values repeat
		_, err = tx.ExecContext(ctx, insert,
			slot, i+1, p.AzimuthTarget, p.AltitudeTarget,
			p.RAError, p.DecError, p.ModelError, captured, string(data))
		if err != nil {
			return fmt.Errorf("failed to insert point %d: %w", p.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit slot %s: %w", slot, err)
	}
	return nil
}

// LoadMeasurements returns the set stored under slot in stored order.
func (r *MeasurementRepository) LoadMeasurements(ctx context.Context, slot string) ([]measurement.Point, error) {
	var points []measurement.Point
	err := WithRetry(ctx, func() error {
		var err error
		points, err = r.load(ctx, slot)
		return err
	}, r.retries)
	return points, err
}

func (r *MeasurementRepository) load(ctx context.Context, slot string) ([]measurement.Point, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		r.db.rebind(`SELECT point_count FROM measurement_sets WHERE slot = ?`), slot,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", devices.ErrNotFound, slot)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query slot %s: %w", slot, err)
	}

	rows, err := r.db.QueryContext(ctx,
		r.db.rebind(`SELECT data FROM measurements WHERE slot = ? ORDER BY idx`), slot)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer rows.Close()

	points := make([]measurement.Point, 0, count)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		var p measurement.Point
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("failed to decode measurement: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// Slots lists the stored sets, most recent first.
func (r *MeasurementRepository) Slots(ctx context.Context) ([]SlotInfo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT slot, point_count, updated_at FROM measurement_sets ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer rows.Close()

	var slots []SlotInfo
	for rows.Next() {
		var s SlotInfo
		if err := rows.Scan(&s.Slot, &s.PointCount, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// DeleteSlot removes a stored set. Deleting an unknown slot is not an error.
func (r *MeasurementRepository) DeleteSlot(ctx context.Context, slot string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, r.db.rebind(`DELETE FROM measurements WHERE slot = ?`), slot); err != nil {
		return fmt.Errorf("failed to delete measurements: %w", err)
	}
	if _, err := tx.ExecContext(ctx, r.db.rebind(`DELETE FROM measurement_sets WHERE slot = ?`), slot); err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	return tx.Commit()
}
