package points

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadHorizonFile reads horizon samples. Files ending in .yaml or .yml hold
// a list of {az, alt} mappings; anything else holds one "az alt" pair per
// line, separated by blanks, commas, colons or semicolons, with '#'
// comments.
func LoadHorizonFile(path string) ([]Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read horizon file: %w", err)
	}

	if isYAML(path) {
		var samples []Sample
		if err := yaml.Unmarshal(data, &samples); err != nil {
			return nil, fmt.Errorf("failed to parse horizon file %s: %w", path, err)
		}
		return samples, nil
	}

	var samples []Sample
	err = eachLine(data, func(n int, fields []string) error {
		if len(fields) != 2 {
			return fmt.Errorf("line %d: want az and alt, got %d fields", n, len(fields))
		}
		az, alt, err := parsePair(fields)
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		samples = append(samples, Sample{Azimuth: az, Altitude: alt})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse horizon file %s: %w", path, err)
	}
	return samples, nil
}

// LoadPointFile reads a user built point list. YAML files hold a list of
// points; text files hold "az alt" per line with an optional third field
// "slew" marking a slew-only point.
func LoadPointFile(path string) ([]Point, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read point file: %w", err)
	}

	if isYAML(path) {
		var pts []Point
		if err := yaml.Unmarshal(data, &pts); err != nil {
			return nil, fmt.Errorf("failed to parse point file %s: %w", path, err)
		}
		for i := range pts {
			pts[i].SolveRequired = !pts[i].SlewOnly
		}
		return pts, nil
	}

	var pts []Point
	err = eachLine(data, func(n int, fields []string) error {
		if len(fields) < 2 || len(fields) > 3 {
			return fmt.Errorf("line %d: want az alt [slew], got %d fields", n, len(fields))
		}
		az, alt, err := parsePair(fields[:2])
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		p := target(az, alt)
		if len(fields) == 3 {
			if !strings.EqualFold(fields[2], "slew") {
				return fmt.Errorf("line %d: unknown flag %q", n, fields[2])
			}
			p.SlewOnly, p.SolveRequired = true, false
		}
		pts = append(pts, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse point file %s: %w", path, err)
	}
	return pts, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func eachLine(data []byte, fn func(n int, fields []string) error) error {
	sc := bufio.NewScanner(bytes.NewReader(data))
	n := 0
	for sc.Scan() {
		n++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ',' || r == ':' || r == ';'
		})
		if len(fields) == 0 {
			continue
		}
		if err := fn(n, fields); err != nil {
			return err
		}
	}
	return sc.Err()
}

func parsePair(fields []string) (float64, float64, error) {
	az, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid azimuth %q", fields[0])
	}
	alt, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid altitude %q", fields[1])
	}
	if alt < -90 || alt > 90 {
		return 0, 0, fmt.Errorf("altitude %.1f out of range", alt)
	}
	return az, alt, nil
}
