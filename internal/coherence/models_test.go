package coherence

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestPointUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Point
		wantErr bool
	}{
		{"pair", `[1700000000000, 7.85]`, Point{X: 1700000000000, Y: 7.85}, false},
		{"bare value", `7.85`, Point{Y: 7.85}, false},
		{"object", `{"x": 3, "y": 1.5}`, Point{X: 3, Y: 1.5}, false},
		{"null", `null`, Point{Null: true}, false},
		{"pair with null y", `[4, null]`, Point{X: 4, Null: true}, false},
		{"object without y", `{"x": 4}`, Point{X: 4, Null: true}, false},
		{"category pair", `["2026-10-19 00:00", 7.8]`, Point{Y: 7.8}, false},
		{"category pair with null y", `["Mon", null]`, Point{Null: true}, false},
		{"object with category x", `{"x": "Mon", "y": 2.5}`, Point{Y: 2.5}, false},
		{"single element", `[4]`, Point{}, true},
		{"object with string y", `{"x": 1, "y": "2.5"}`, Point{}, true},
		{"string", `"7.85"`, Point{}, true},
		{"string pair", `["a", "b"]`, Point{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Point
			err := json.Unmarshal([]byte(tt.in), &p)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p != tt.want {
				t.Errorf("got %+v, want %+v", p, tt.want)
			}
		})
	}
}

func TestPointUnmarshalErrorIsParse(t *testing.T) {
	var p Point
	err := p.UnmarshalJSON([]byte(`"oops"`))
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestSeriesDecodeMixedShapes(t *testing.T) {
	raw := `[{"name":"GCI001","data":[[0,7.8],[1,7.85]]},{"name":"GCI002","data":[1,2,3]}]`

	var series []Series
	if err := json.Unmarshal([]byte(raw), &series); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(series))
	}
	if got := series[0].Data[1].Y; got != 7.85 {
		t.Errorf("expected 7.85, got %v", got)
	}
	if got := series[1].Data[2].Y; got != 3 {
		t.Errorf("expected 3, got %v", got)
	}
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	orig := Snapshot{Stations: map[StationID]float64{GCI001: 1}}
	c := orig.Clone()
	c.Stations[GCI001] = 2

	if orig.Stations[GCI001] != 1 {
		t.Fatalf("clone shares the stations map")
	}
}

func TestStationTable(t *testing.T) {
	if len(Stations) != 6 {
		t.Fatalf("expected 6 stations, got %d", len(Stations))
	}
	for _, id := range Stations {
		if !id.Valid() {
			t.Errorf("station %s should be valid", id)
		}
		if id.Name() == "" {
			t.Errorf("station %s has no name", id)
		}
	}
	if StationID("GCI000").Valid() {
		t.Error("GCI000 should not be valid")
	}
}
