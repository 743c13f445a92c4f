// Package solver adapts the ASTAP command line plate solver to the
// devices.Solver capability.
package solver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/unklstewy/mount-modeler/internal/logger"
	"github.com/unklstewy/mount-modeler/pkg/config"
	"github.com/unklstewy/mount-modeler/pkg/devices"
)

// ErrNotSolved is returned when ASTAP ran but found no solution.
var ErrNotSolved = errors.New("image not solved")

// blindRadius makes ASTAP search the whole sky.
const blindRadius = 180.0

// runFunc runs the solver binary and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ASTAP runs one astap process per solve.
type ASTAP struct {
	binary   string
	database string
	radius   float64
	log      *logger.Logger
	run      runFunc
}

var _ devices.Solver = (*ASTAP)(nil)

// NewASTAP creates a solver from configuration.
func NewASTAP(cfg config.SolverConfig, log *logger.Logger) *ASTAP {
	binary := cfg.Path
	if binary == "" {
		binary = "astap"
	}
	radius := cfg.SearchRadius
	if radius <= 0 {
		radius = 10
	}
	return &ASTAP{
		binary:   binary,
		database: cfg.DatabasePath,
		radius:   radius,
		log:      logger.OrNop(log).Component("astap"),
		run:      execRun,
	}
}

// Solve plate solves imagePath. A hinted solve searches around the position
// in the image header; a blind one searches the whole sky. pixelScaleHint,
// when set, is compared with the result.
func (a *ASTAP) Solve(ctx context.Context, imagePath string, pixelScaleHint float64, blind bool) (devices.Solution, error) {
	base := strings.TrimSuffix(imagePath, filepath.Ext(imagePath))
	result := base + ".ini"
	_ = os.Remove(result)

	radius := a.radius
	if blind {
		radius = blindRadius
	}
	args := []string{"-f", imagePath, "-r", strconv.FormatFloat(radius, 'f', 1, 64), "-o", base, "-z", "0"}
	if a.database != "" {
		args = append(args, "-d", a.database)
	}

	start := time.Now()
	out, err := a.run(ctx, a.binary, args...)
	elapsed := time.Since(start)
	if ctx.Err() != nil {
		return devices.Solution{}, fmt.Errorf("astap cancelled: %w", ctx.Err())
	}
	if err != nil {
		a.log.Debugw("astap exited with error", "error", err, "output", string(out))
	}

	values, rerr := readINI(result)
	if rerr != nil {
		if err != nil {
			return devices.Solution{}, fmt.Errorf("astap failed: %w", err)
		}
		return devices.Solution{}, rerr
	}

	sol, err := solutionFromINI(values)
	if err != nil {
		return devices.Solution{}, err
	}
	sol.SolveTime = elapsed.Seconds()

	if pixelScaleHint > 0 && math.Abs(sol.PixelScale-pixelScaleHint)/pixelScaleHint > 0.2 {
		a.log.Warnw("solved pixel scale differs from hint", "hint", pixelScaleHint, "solved", sol.PixelScale)
	}
	a.log.Debugw("image solved", "image", imagePath, "ra", sol.RAJ2000, "dec", sol.DecJ2000, "seconds", sol.SolveTime)
	return sol, nil
}

// solutionFromINI converts ASTAP's WCS keywords. CRVAL1 is degrees, CDELT
// degrees per pixel.
func solutionFromINI(v map[string]string) (devices.Solution, error) {
	if v["PLTSOLVD"] != "T" {
		if msg := v["ERROR"]; msg != "" {
			return devices.Solution{}, fmt.Errorf("%w: %s", ErrNotSolved, msg)
		}
		return devices.Solution{}, ErrNotSolved
	}

	num := func(key string) (float64, error) {
		s, ok := v[key]
		if !ok {
			return 0, fmt.Errorf("astap result lacks %s", key)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("astap result %s=%q: %w", key, s, err)
		}
		return f, nil
	}

	ra, err := num("CRVAL1")
	if err != nil {
		return devices.Solution{}, err
	}
	dec, err := num("CRVAL2")
	if err != nil {
		return devices.Solution{}, err
	}
	cdelt, err := num("CDELT2")
	if err != nil {
		return devices.Solution{}, err
	}
	// rotation is optional
	rot, _ := num("CROTA2")

	return devices.Solution{
		RAJ2000:       ra / 15.0,
		DecJ2000:      dec,
		PixelScale:    math.Abs(cdelt) * 3600.0,
		PositionAngle: rot,
	}, nil
}

// readINI reads KEY=VALUE lines.
func readINI(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read astap result: %w", err)
	}
	defer f.Close()

	values := map[string]string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return values, sc.Err()
}
