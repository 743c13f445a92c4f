package alignment

import (
	"context"
	"errors"
	"fmt"

	"github.com/unklstewy/mount-modeler/pkg/devices"
)

// SaveSlot stores the active model on the mount under slot, replacing any
// previous content, and stores the reconciled measurement set under the
// same name.
func (m *Manager) SaveSlot(ctx context.Context, name string) error {
	slot, err := ParseSlot(name)
	if err != nil {
		return err
	}
	if err := m.guard(ctx, "Save model"); err != nil {
		return err
	}
	if err := m.saveSlot(slot); err != nil {
		devices.Postf(m.sink, devices.LevelWarning, "Model could not be saved to %s", slot)
		return err
	}
	m.Reconcile(ctx)
	m.persist(ctx, string(slot))
	devices.Postf(m.sink, devices.LevelInfo, "Model saved to %s", slot)
	return nil
}

func (m *Manager) saveSlot(slot Slot) error {
	// deleting first makes the save an overwrite
	if _, err := m.link.SendString("modeldel0" + string(slot)); err != nil {
		return err
	}
	reply, err := m.link.SendString("modelsv0" + string(slot))
	if err != nil {
		return err
	}
	if reply != "1" {
		return fmt.Errorf("mount refused to save model %s: %q", slot, reply)
	}
	return nil
}

// LoadSlot activates the model stored under slot, downloads it and
// reconciles it with the measurements stored under the same name.
func (m *Manager) LoadSlot(ctx context.Context, name string) error {
	slot, err := ParseSlot(name)
	if err != nil {
		return err
	}
	if err := m.guard(ctx, "Load model"); err != nil {
		return err
	}

	reply, err := m.link.SendString("modelld0" + string(slot))
	if err != nil {
		return err
	}
	if reply != "1" {
		devices.Postf(m.sink, devices.LevelWarning, "Model %s could not be loaded", slot)
		return fmt.Errorf("%s: %w", slot, ErrSlotEmpty)
	}

	if _, err := m.Download(ctx); err != nil {
		return err
	}

	if m.store != nil {
		points, err := m.store.LoadMeasurements(ctx, string(slot))
		switch {
		case err == nil:
			m.SetMeasurements(points)
		case errors.Is(err, devices.ErrNotFound):
			m.SetMeasurements(nil)
		default:
			m.log.Warnw("failed to load measurements", "slot", slot, "error", err)
		}
	}

	m.Reconcile(ctx)
	devices.Postf(m.sink, devices.LevelInfo, "Model %s loaded", slot)
	return nil
}

// DeleteSlot removes a stored model from the mount.
func (m *Manager) DeleteSlot(ctx context.Context, name string) error {
	slot, err := ParseSlot(name)
	if err != nil {
		return err
	}
	if err := m.guard(ctx, "Delete model"); err != nil {
		return err
	}
	reply, err := m.link.SendString("modeldel0" + string(slot))
	if err != nil {
		return err
	}
	if reply != "1" {
		return fmt.Errorf("mount refused to delete model %s: %q", slot, reply)
	}
	devices.Postf(m.sink, devices.LevelInfo, "Model %s deleted", slot)
	return nil
}

// ReplaySlot programs the measurement set stored under slot as a new
// alignment model.
func (m *Manager) ReplaySlot(ctx context.Context, name string) error {
	slot, err := ParseSlot(name)
	if err != nil {
		return err
	}
	if err := m.guard(ctx, "Replay model"); err != nil {
		return err
	}
	if m.store == nil {
		return fmt.Errorf("replay %s: measurement store %w", slot, devices.ErrUnavailable)
	}
	points, err := m.store.LoadMeasurements(ctx, string(slot))
	if err != nil {
		return fmt.Errorf("replay %s: %w", slot, err)
	}
	if err := m.ProgramBatch(ctx, points); err != nil {
		devices.Postf(m.sink, devices.LevelWarning, "Measurements of %s could not be replayed", slot)
		return err
	}
	devices.Postf(m.sink, devices.LevelInfo, "Model replayed from %s: %d of %d points", slot, len(m.Measurements()), len(points))
	return nil
}
