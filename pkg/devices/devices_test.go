package devices

import "testing"

func TestClampDomeAzimuth(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-5, 0},
		{0, 0},
		{180.5, 180.5},
		{359.95, 359.9},
		{360, 359.9},
	}

	for _, tt := range tests {
		if got := ClampDomeAzimuth(tt.in); got != tt.want {
			t.Errorf("ClampDomeAzimuth(%f) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

type recordingSink struct {
	levels []Level
	texts  []string
}

func (r *recordingSink) Post(level Level, text string) {
	r.levels = append(r.levels, level)
	r.texts = append(r.texts, text)
}

func TestPostf(t *testing.T) {
	sink := &recordingSink{}
	Postf(sink, LevelWarning, "slot %s empty", "BASE")
	Postf(nil, LevelError, "dropped")

	if len(sink.texts) != 1 || sink.texts[0] != "slot BASE empty" || sink.levels[0] != LevelWarning {
		t.Errorf("unexpected messages: %v %v", sink.levels, sink.texts)
	}
	if LevelProgress.String() != "progress" {
		t.Errorf("LevelProgress.String() = %q", LevelProgress.String())
	}
	Discard.Post(LevelInfo, "ignored")
}
