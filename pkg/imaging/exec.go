// Package imaging captures model images by running an external capture
// program, one process per exposure.
package imaging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unklstewy/mount-modeler/internal/logger"
	"github.com/unklstewy/mount-modeler/pkg/config"
	"github.com/unklstewy/mount-modeler/pkg/devices"
)

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ExecImager runs cfg.Command with the configured args followed by
//
//	--exposure S --binning N --frame Light --out PATH [--gain G] [--iso I]
//	[--subframe X,Y,W,H] [--fast]
//
// and expects the image at PATH when the command exits.
type ExecImager struct {
	command string
	args    []string
	dir     string
	props   devices.CameraProperties
	log     *logger.Logger
	run     runFunc

	mu     sync.Mutex
	seq    int
	status atomic.Value // devices.ImagerStatus
}

var _ devices.Imager = (*ExecImager)(nil)

// NewExecImager creates an imager from configuration.
func NewExecImager(cfg config.ImagerConfig, log *logger.Logger) (*ExecImager, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("imager: %w", devices.ErrUnavailable)
	}
	dir := cfg.Directory
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	im := &ExecImager{
		command: cfg.Command,
		args:    cfg.Args,
		dir:     dir,
		props:   devices.CameraProperties{SizeX: cfg.SizeX, SizeY: cfg.SizeY, CanSubframe: true},
		log:     logger.OrNop(log).Component("imager"),
		run:     execRun,
	}
	im.status.Store(devices.ImagerIdle)
	return im, nil
}

// Status returns CAPTURING while a command runs.
func (im *ExecImager) Status() devices.ImagerStatus {
	return im.status.Load().(devices.ImagerStatus)
}

func (im *ExecImager) CameraProperties() devices.CameraProperties {
	return im.props
}

// Capture runs one exposure. Captures are serialized.
func (im *ExecImager) Capture(ctx context.Context, req devices.CaptureRequest) (string, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	im.seq++
	path := filepath.Join(im.dir, fmt.Sprintf("model-%s-%03d.fits", time.Now().UTC().Format("20060102-150405"), im.seq))

	im.status.Store(devices.ImagerCapturing)
	defer im.status.Store(devices.ImagerIdle)

	out, err := im.run(ctx, im.command, im.buildArgs(req, path)...)
	if ctx.Err() != nil {
		return "", fmt.Errorf("capture cancelled: %w", ctx.Err())
	}
	if err != nil {
		im.log.Debugw("capture command output", "output", string(out))
		return "", fmt.Errorf("capture failed: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("capture produced no image at %s", path)
		}
		return "", err
	}
	im.log.Debugw("image captured", "path", path, "exposure", req.Exposure)
	return path, nil
}

func (im *ExecImager) buildArgs(req devices.CaptureRequest, path string) []string {
	frame := req.FrameType
	if frame == "" {
		frame = devices.FrameLight
	}
	binning := req.Binning
	if binning < 1 {
		binning = 1
	}

	args := append([]string(nil), im.args...)
	args = append(args,
		"--exposure", strconv.FormatFloat(req.Exposure, 'f', -1, 64),
		"--binning", strconv.Itoa(binning),
		"--frame", string(frame),
		"--out", path,
	)
	if req.Gain != nil {
		args = append(args, "--gain", strconv.FormatFloat(*req.Gain, 'f', -1, 64))
	}
	if req.ISO != nil {
		args = append(args, "--iso", strconv.Itoa(*req.ISO))
	}
	if sf := req.Subframe; sf != nil {
		args = append(args, "--subframe", fmt.Sprintf("%d,%d,%d,%d", sf.OffsetX, sf.OffsetY, sf.Width, sf.Height))
	}
	if req.FastDownload {
		args = append(args, "--fast")
	}
	return args
}
