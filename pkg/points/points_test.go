package points

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

// TestBase tests the three base points.
func TestBase(t *testing.T) {
	pts := Base(55, 300)
	want := []float64{300, 60, 180}
	if len(pts) != 3 {
		t.Fatalf("Expected 3 base points, got %d", len(pts))
	}
	for i, p := range pts {
		if math.Abs(p.Azimuth-want[i]) > 1e-9 || p.Altitude != 55 {
			t.Errorf("Point %d: expected az %.0f alt 55, got %+v", i, want[i], p)
		}
		if !p.SolveRequired || p.SlewOnly {
			t.Errorf("Point %d should require a solve", i)
		}
	}
}

// TestGrid tests grid layout and row order.
func TestGrid(t *testing.T) {
	pts, err := Grid(2, 4, 20, 60)
	if err != nil {
		t.Fatalf("Grid failed: %v", err)
	}
	want := []Point{
		{Azimuth: 5, Altitude: 20}, {Azimuth: 95, Altitude: 20}, {Azimuth: 185, Altitude: 20}, {Azimuth: 275, Altitude: 20},
		{Azimuth: 275, Altitude: 60}, {Azimuth: 185, Altitude: 60}, {Azimuth: 95, Altitude: 60}, {Azimuth: 5, Altitude: 60},
	}
	if len(pts) != len(want) {
		t.Fatalf("Expected %d points, got %d", len(want), len(pts))
	}
	for i := range want {
		if math.Abs(pts[i].Azimuth-want[i].Azimuth) > 1e-9 || math.Abs(pts[i].Altitude-want[i].Altitude) > 1e-9 {
			t.Errorf("Point %d: expected %+v, got %+v", i, want[i], pts[i])
		}
	}

	single, err := Grid(1, 3, 30, 70)
	if err != nil || len(single) != 3 || single[0].Altitude != 30 {
		t.Errorf("Single row grid: got %+v, %v", single, err)
	}

	if _, err := Grid(0, 4, 20, 60); err == nil {
		t.Error("Expected error for zero rows")
	}
	if _, err := Grid(2, 2, 60, 20); err == nil {
		t.Error("Expected error for inverted altitude range")
	}
}

// TestDeclinationCircles tests the dense and normal generators.
func TestDeclinationCircles(t *testing.T) {
	dense := Dense(49)
	normal := Normal(49)

	if len(dense) == 0 || len(normal) == 0 {
		t.Fatalf("Expected points, got dense=%d normal=%d", len(dense), len(normal))
	}
	if len(normal) >= len(dense) {
		t.Errorf("Expected fewer normal than dense points, got %d vs %d", len(normal), len(dense))
	}
	for _, p := range append(dense, normal...) {
		if p.Altitude <= 0 {
			t.Fatalf("Point below horizon: %+v", p)
		}
		if p.Azimuth < 0 || p.Azimuth >= 360 {
			t.Fatalf("Azimuth out of range: %+v", p)
		}
	}

	// at the equator every declination circle is half visible
	if eq := Dense(0); len(eq) == 0 {
		t.Error("Expected points at the equator")
	}
}

// TestDSOPath tests the object path generator.
func TestDSOPath(t *testing.T) {
	pts := DSOPath(6, 20, 49, 6, 2, 4, 0)
	if len(pts) != 4 {
		t.Fatalf("Expected 4 points, got %d", len(pts))
	}
	if math.Abs(pts[0].Azimuth-180) > 1e-6 || math.Abs(pts[0].Altitude-61) > 1e-6 {
		t.Errorf("Expected first point on the meridian at alt 61, got %+v", pts[0])
	}
	for i := 1; i < len(pts); i++ {
		if pts[i].Azimuth <= 180 || pts[i].Altitude >= pts[i-1].Altitude {
			t.Errorf("Point %d should be west and lower: %+v", i, pts[i])
		}
	}

	preview := DSOPath(6, 20, 49, 6, 2, 4, 0.5)
	if preview[0].Azimuth >= 180 {
		t.Errorf("Expected preview path to start east of the meridian, got %+v", preview[0])
	}

	// an object that never rises yields nothing
	if pts := DSOPath(6, -60, 49, 6, 4, 8, 0); len(pts) != 0 {
		t.Errorf("Expected no points for a southern object, got %d", len(pts))
	}
	if pts := DSOPath(6, 20, 49, 6, 2, 0, 0); pts != nil {
		t.Error("Expected nil for zero points")
	}
}

// TestAnalysePlans tests the time change and hysteresis plans.
func TestAnalysePlans(t *testing.T) {
	tc := TimeChange(90, 45, 5)
	if len(tc) != 5 {
		t.Fatalf("Expected 5 points, got %d", len(tc))
	}
	for _, p := range tc {
		if p.Azimuth != 90 || p.Altitude != 45 {
			t.Errorf("Unexpected point %+v", p)
		}
	}

	h := Hysterese(90, 45, 270, 45, 3)
	if len(h) != 6 {
		t.Fatalf("Expected 6 points, got %d", len(h))
	}
	for i, p := range h {
		want := 90.0
		if i%2 == 1 {
			want = 270
		}
		if p.Azimuth != want {
			t.Errorf("Point %d: expected az %.0f, got %.0f", i, want, p.Azimuth)
		}
	}

	if len(TimeChange(0, 0, -1)) != 0 {
		t.Error("Expected empty plan for negative count")
	}
}

// TestSortByPier tests east/west ordering.
func TestSortByPier(t *testing.T) {
	pts := []Point{
		{Azimuth: 200, Altitude: 30},
		{Azimuth: 100, Altitude: 50},
		{Azimuth: 100, Altitude: 20},
		{Azimuth: 300, Altitude: 10},
		{Azimuth: 180, Altitude: 5},
	}
	SortByPier(pts)
	want := []Point{
		{Azimuth: 100, Altitude: 20},
		{Azimuth: 100, Altitude: 50},
		{Azimuth: 180, Altitude: 5},
		{Azimuth: 300, Altitude: 10},
		{Azimuth: 200, Altitude: 30},
	}
	for i := range want {
		if pts[i] != want[i] {
			t.Errorf("Position %d: expected %+v, got %+v", i, want[i], pts[i])
		}
	}
}

// TestPlan tests plan concatenation.
func TestPlan(t *testing.T) {
	plan := Plan{Base: Base(50, 0), Refinement: TimeChange(10, 20, 2)}
	all := plan.Points()
	if plan.Len() != 5 || len(all) != 5 {
		t.Fatalf("Expected 5 points, got %d", len(all))
	}
	if all[3].Azimuth != 10 {
		t.Errorf("Expected refinement after base, got %+v", all[3])
	}
}

// TestMask tests interpolation, extension and the floor.
func TestMask(t *testing.T) {
	m := NewMask([]Sample{{Azimuth: 180, Altitude: 10}, {Azimuth: 90, Altitude: 20}}, 5)

	tests := []struct {
		az   float64
		want float64
	}{
		{0, 20},
		{45.7, 20},
		{90, 20},
		{135, 15},
		{135.9, 15},
		{180, 10},
		{359.5, 10},
		{-1, 10},
	}
	for _, tt := range tests {
		if got := m.Limit(tt.az); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Limit(%.1f): expected %.2f, got %.2f", tt.az, tt.want, got)
		}
	}

	if m.IsAbove(Point{Azimuth: 135, Altitude: 15}) {
		t.Error("Point on the mask must not count as above")
	}
	if !m.IsAbove(Point{Azimuth: 135, Altitude: 15.1}) {
		t.Error("Point above the mask not detected")
	}

	floored := NewMask([]Sample{{Azimuth: 0, Altitude: 0}, {Azimuth: 359, Altitude: 0}}, 12)
	if floored.Limit(200) != 12 {
		t.Errorf("Expected floor 12, got %.2f", floored.Limit(200))
	}

	empty := NewMask(nil, 7)
	if empty.Limit(123) != 7 || len(empty.Samples()) != 360 {
		t.Error("Empty mask should be the floor everywhere")
	}
}

// TestDeleteBelowHorizon tests in-place filtering.
func TestDeleteBelowHorizon(t *testing.T) {
	m := NewMask([]Sample{{Azimuth: 0, Altitude: 30}, {Azimuth: 359, Altitude: 30}}, 0)
	pts := []Point{{Azimuth: 10, Altitude: 40}, {Azimuth: 20, Altitude: 20}, {Azimuth: 30, Altitude: 31}}
	kept := m.DeleteBelowHorizon(pts)
	if len(kept) != 2 || kept[0].Azimuth != 10 || kept[1].Azimuth != 30 {
		t.Errorf("Unexpected result %+v", kept)
	}
}

// TestLimits tests the mount altitude limits.
func TestLimits(t *testing.T) {
	l := LimitsFromMount(10, 80)
	if event, _ := l.Check(Point{Altitude: 5}); event != BelowLimit {
		t.Errorf("Expected BelowLimit, got %v", event)
	}
	if event, _ := l.Check(Point{Altitude: 85}); event != AboveLimit {
		t.Errorf("Expected AboveLimit, got %v", event)
	}
	if event, msg := l.Check(Point{Altitude: 45}); event != WithinLimits || msg == "" {
		t.Errorf("Expected WithinLimits, got %v %q", event, msg)
	}

	if d := LimitsFromMount(0, 0); d != DefaultLimits() {
		t.Errorf("Expected defaults for unset limits, got %+v", d)
	}

	kept := l.Filter([]Point{{Altitude: 5}, {Altitude: 50}, {Altitude: 81}})
	if len(kept) != 1 {
		t.Errorf("Expected 1 point, got %d", len(kept))
	}
}

// TestSlewTime tests the slew estimate with azimuth wrap-around.
func TestSlewTime(t *testing.T) {
	a := Point{Azimuth: 355, Altitude: 30}
	b := Point{Azimuth: 5, Altitude: 50}
	if got := SlewTime(a, b, 2); math.Abs(got-10) > 1e-9 {
		t.Errorf("Expected 10s, got %f", got)
	}
	if SlewTime(a, b, 0) != 0 {
		t.Error("Expected 0 for unknown slew rate")
	}
}

// TestLoadFiles tests text and YAML horizon and point files.
func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
		return path
	}

	samples, err := LoadHorizonFile(write("horizon.hpts", "# az alt\n0 10\n90:20\n\n180, 15 # tree\n"))
	if err != nil {
		t.Fatalf("LoadHorizonFile text failed: %v", err)
	}
	if len(samples) != 3 || samples[1] != (Sample{Azimuth: 90, Altitude: 20}) {
		t.Errorf("Unexpected samples %+v", samples)
	}

	samples, err = LoadHorizonFile(write("horizon.yaml", "- az: 0\n  alt: 12\n- az: 270\n  alt: 25.5\n"))
	if err != nil {
		t.Fatalf("LoadHorizonFile yaml failed: %v", err)
	}
	if len(samples) != 2 || samples[1].Altitude != 25.5 {
		t.Errorf("Unexpected samples %+v", samples)
	}

	if _, err := LoadHorizonFile(write("bad.txt", "0 10 20\n")); err == nil {
		t.Error("Expected error for three fields")
	}
	if _, err := LoadHorizonFile(write("range.txt", "0 95\n")); err == nil {
		t.Error("Expected error for altitude out of range")
	}

	pts, err := LoadPointFile(write("points.txt", "10 20\n370 30 slew\n"))
	if err != nil {
		t.Fatalf("LoadPointFile text failed: %v", err)
	}
	if len(pts) != 2 || !pts[0].SolveRequired || !pts[1].SlewOnly || pts[1].Azimuth != 10 {
		t.Errorf("Unexpected points %+v", pts)
	}

	pts, err = LoadPointFile(write("points.yml", "- az: 10\n  alt: 20\n- az: 30\n  alt: 40\n  slewOnly: true\n"))
	if err != nil {
		t.Fatalf("LoadPointFile yaml failed: %v", err)
	}
	if len(pts) != 2 || !pts[0].SolveRequired || pts[1].SolveRequired {
		t.Errorf("Unexpected points %+v", pts)
	}

	if _, err := LoadPointFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("Expected error for missing file")
	}
}
