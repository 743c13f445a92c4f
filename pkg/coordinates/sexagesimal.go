package coordinates

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseSexagesimal converts "DD<sep>MM<sep>SS.s" (or hours) to a decimal value.
// A leading '+' or '-' is accepted. The mount marks the degree field of a
// declination with '*', which is treated like the separator.
func ParseSexagesimal(text, sep string) (float64, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimSuffix(s, "#")
	if s == "" {
		return 0, fmt.Errorf("empty sexagesimal value")
	}
	if sep == "" {
		sep = ":"
	}
	s = strings.Replace(s, "*", sep, 1)

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	fields := strings.Split(s, sep)
	if len(fields) != 3 {
		return 0, fmt.Errorf("sexagesimal value %q needs 3 fields, got %d", text, len(fields))
	}

	var parts [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid sexagesimal field %q in %q: %w", f, text, err)
		}
		if v < 0 {
			return 0, fmt.Errorf("negative sexagesimal field %q in %q", f, text)
		}
		parts[i] = v
	}

	value := parts[0] + parts[1]/60.0 + parts[2]/3600.0
	if negative {
		value = -value
	}
	return value, nil
}

// FormatSexagesimal renders a decimal value as "DD<sep>MM<sep>SS" with optional
// sign and tenths of a second. Rounding is done on the smallest displayed unit so
// the seconds field never shows 60.
func FormatSexagesimal(value float64, withSign, withTenths bool, sep string) string {
	if sep == "" {
		sep = ":"
	}

	sign := ""
	if value < 0 {
		sign = "-"
	} else if withSign {
		sign = "+"
	}

	scale := 3600.0
	if withTenths {
		scale = 36000.0
	}
	units := int64(math.Round(math.Abs(value) * scale))

	if withTenths {
		tenths := units % 10
		secs := units / 10
		return fmt.Sprintf("%s%02d%s%02d%s%02d.%d",
			sign, secs/3600, sep, (secs/60)%60, sep, secs%60, tenths)
	}
	return fmt.Sprintf("%s%02d%s%02d%s%02d",
		sign, units/3600, sep, (units/60)%60, sep, units%60)
}
