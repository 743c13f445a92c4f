package imaging

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/unklstewy/mount-modeler/pkg/config"
	"github.com/unklstewy/mount-modeler/pkg/devices"
)

// outPath returns the value after --out.
func outPath(args []string) string {
	for i := range args {
		if args[i] == "--out" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestNewExecImagerNeedsCommand(t *testing.T) {
	if _, err := NewExecImager(config.ImagerConfig{}, nil); !errors.Is(err, devices.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestCapture(t *testing.T) {
	im, err := NewExecImager(config.ImagerConfig{Command: "capture", Args: []string{"--camera", "asi"}, Directory: t.TempDir(), SizeX: 4144, SizeY: 2822}, nil)
	if err != nil {
		t.Fatalf("NewExecImager failed: %v", err)
	}

	var got []string
	var during devices.ImagerStatus
	im.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		got = append([]string{name}, args...)
		during = im.Status()
		return nil, os.WriteFile(outPath(args), []byte("SIMPLE"), 0644)
	}

	gain := 120.0
	path, err := im.Capture(context.Background(), devices.CaptureRequest{
		Exposure: 2.5,
		Binning:  2,
		Gain:     &gain,
		Subframe: &devices.Subframe{OffsetX: 10, OffsetY: 20, Width: 300, Height: 400},
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if !strings.HasSuffix(path, "-001.fits") {
		t.Errorf("Expected sequence in file name, got %s", path)
	}
	if during != devices.ImagerCapturing || im.Status() != devices.ImagerIdle {
		t.Errorf("Expected CAPTURING during and IDLE after, got %s and %s", during, im.Status())
	}

	want := "capture --camera asi --exposure 2.5 --binning 2 --frame Light --out " + path + " --gain 120 --subframe 10,20,300,400"
	if cmd := strings.Join(got, " "); cmd != want {
		t.Errorf("Expected command %q, got %q", want, cmd)
	}
	if im.CameraProperties().SizeX != 4144 {
		t.Errorf("Expected sensor width 4144, got %d", im.CameraProperties().SizeX)
	}
}

func TestCaptureFailures(t *testing.T) {
	im, err := NewExecImager(config.ImagerConfig{Command: "capture", Directory: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewExecImager failed: %v", err)
	}

	im.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, nil
	}
	if _, err := im.Capture(context.Background(), devices.CaptureRequest{Exposure: 1}); err == nil || !strings.Contains(err.Error(), "no image") {
		t.Errorf("Expected missing image error, got %v", err)
	}

	im.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("camera not found"), errors.New("exit status 2")
	}
	if _, err := im.Capture(context.Background(), devices.CaptureRequest{Exposure: 1}); err == nil || !strings.Contains(err.Error(), "capture failed") {
		t.Errorf("Expected capture failure, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := im.Capture(ctx, devices.CaptureRequest{Exposure: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected cancellation, got %v", err)
	}
}
