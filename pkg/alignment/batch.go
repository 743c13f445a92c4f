package alignment

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/unklstewy/mount-modeler/pkg/devices"
	"github.com/unklstewy/mount-modeler/pkg/measurement"
	"github.com/unklstewy/mount-modeler/pkg/mount"
)

// Star is a refinement star: where the mount pointed and where the solve
// says it pointed, both JNow.
type Star struct {
	RAJNow            float64 // hours
	DecJNow           float64 // degrees
	Pierside          string  // E or W
	RAJNowSolved      float64
	DecJNowSolved     float64
	LocalSiderealTime float64 // hours
}

// StarFromMeasurement builds the refinement star of a measurement.
func StarFromMeasurement(p measurement.Point) Star {
	return Star{
		RAJNow:            p.RAJNow,
		DecJNow:           p.DecJNow,
		Pierside:          p.Pierside,
		RAJNowSolved:      p.RAJNowSolved,
		DecJNowSolved:     p.DecJNowSolved,
		LocalSiderealTime: p.LocalSiderealTime,
	}
}

func (s Star) command() (string, error) {
	if s.Pierside != "E" && s.Pierside != "W" {
		return "", fmt.Errorf("invalid pier side %q", s.Pierside)
	}
	return fmt.Sprintf("newalpt%s,%s,%s,%s,%s,%s",
		mount.FormatRA(s.RAJNow), mount.FormatDec(s.DecJNow), s.Pierside,
		mount.FormatRA(s.RAJNowSolved), mount.FormatDec(s.DecJNowSolved),
		mount.FormatRA(s.LocalSiderealTime)), nil
}

// BeginBatch saves the active model to BACKUP and opens a new alignment.
// Until EndBatch succeeds the mount keeps using the previous model.
func (m *Manager) BeginBatch(ctx context.Context) error {
	if err := m.guard(ctx, "New alignment"); err != nil {
		return err
	}
	if err := m.saveSlot(SlotBackup); err != nil {
		return fmt.Errorf("failed to save backup model: %w", err)
	}
	reply, err := m.link.SendString("newalig")
	if err != nil {
		return err
	}
	if reply == "E" {
		return errors.New("mount refused to open a new alignment")
	}
	m.log.Infow("alignment batch opened")
	return nil
}

// AddStar adds a star to the open batch and returns its 1-based index.
func (m *Manager) AddStar(ctx context.Context, s Star) (int, error) {
	if err := m.guard(ctx, "Add star"); err != nil {
		return 0, err
	}
	cmd, err := s.command()
	if err != nil {
		return 0, err
	}
	reply, err := m.link.SendString(cmd)
	if err != nil {
		return 0, err
	}
	index, err := strconv.Atoi(reply)
	if err != nil {
		return 0, fmt.Errorf("mount refused star %s: %q", cmd, reply)
	}
	return index, nil
}

// EndBatch closes the batch. On success the new model is downloaded and
// reconciled; on rejection the previous model stays active.
func (m *Manager) EndBatch(ctx context.Context) error {
	reply, err := m.link.SendString("endalig")
	if err != nil {
		return err
	}
	if reply != "V" {
		devices.Postf(m.sink, devices.LevelError, "Alignment model rejected by mount, previous model still active (BACKUP)")
		return fmt.Errorf("%w: endalig replied %q", ErrModelRejected, reply)
	}

	model, err := m.Download(ctx)
	if err != nil {
		return err
	}
	m.Reconcile(ctx)
	devices.Postf(m.sink, devices.LevelInfo, "Alignment model computed: %d stars, RMS %.2f arcsec", model.NumberStars, model.RMS)
	return nil
}

// ProgramBatch replays a measurement set as a new alignment model. Points
// the mount refuses are dropped from the set.
func (m *Manager) ProgramBatch(ctx context.Context, points []measurement.Point) error {
	if len(points) == 0 {
		return errors.New("no measurements to program")
	}
	if err := m.BeginBatch(ctx); err != nil {
		return err
	}

	accepted := make([]measurement.Point, 0, len(points))
	for _, p := range points {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := m.AddStar(ctx, StarFromMeasurement(p)); err != nil {
			m.log.Warnw("star not accepted", "index", p.Index, "error", err)
			continue
		}
		accepted = append(accepted, p)
	}

	m.SetMeasurements(accepted)
	return m.EndBatch(ctx)
}
