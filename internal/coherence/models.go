package coherence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// StationID identifies one of the Global Coherence magnetometer sites.
type StationID string

const (
	GCI001 StationID = "GCI001"
	GCI002 StationID = "GCI002"
	GCI003 StationID = "GCI003"
	GCI004 StationID = "GCI004"
	GCI005 StationID = "GCI005"
	GCI006 StationID = "GCI006"
)

// Stations lists every recognised station in ascending numeric order.
// Anything that depends on column or key order must range over this slice.
var Stations = []StationID{GCI001, GCI002, GCI003, GCI004, GCI005, GCI006}

var stationNames = map[StationID]string{
	GCI001: "California, USA",
	GCI002: "Hofuf, Saudi Arabia",
	GCI003: "Birstonas, Lithuania",
	GCI004: "Alberta, Canada",
	GCI005: "Northland, New Zealand",
	GCI006: "South Africa",
}

// Name returns the human readable site of the station.
func (id StationID) Name() string {
	return stationNames[id]
}

// Valid reports whether id is one of the recognised stations.
func (id StationID) Valid() bool {
	_, ok := stationNames[id]
	return ok
}

// StationNames returns a copy of the station name table.
func StationNames() map[StationID]string {
	out := make(map[StationID]string, len(stationNames))
	for id, name := range stationNames {
		out[id] = name
	}
	return out
}

// Source records how a snapshot got into the cache.
type Source string

const (
	SourceScraper Source = "scraper"
	SourceLog     Source = "log"
)

// StationReading is the latest value of a single station.
type StationReading struct {
	StationID StationID `json:"id"`
	Value     float64   `json:"value"` // Hz
	Active    bool      `json:"active"`
}

// Snapshot is the normalized reading set produced by one fetch cycle.
type Snapshot struct {
	Timestamp     time.Time             `json:"timestamp"` // always UTC
	GlobalAverage float64               `json:"global_avg"`
	Stations      map[StationID]float64 `json:"stations"`
	ActiveCount   int                   `json:"active_stations"`
	Source        Source                `json:"source"`
}

// Readings returns the per-station readings in station order.
func (s Snapshot) Readings() []StationReading {
	out := make([]StationReading, 0, len(Stations))
	for _, id := range Stations {
		v := s.Stations[id]
		out = append(out, StationReading{StationID: id, Value: v, Active: v > 0})
	}
	return out
}

// Clone returns a deep copy so callers never share the stations map.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.Stations = make(map[StationID]float64, len(s.Stations))
	for id, v := range s.Stations {
		c.Stations[id] = v
	}
	return c
}

// Series is a named chart series as exposed by the rendered page.
type Series struct {
	Name string  `json:"name"`
	Data []Point `json:"data"`
}

// Point is a single chart point. Highcharts accepts [x, y] pairs, bare y
// values and {x, y} objects; all three decode into a Point. x may also be a
// category name, in which case X stays 0. A JSON null (a
// gap in the chart) decodes into a Null point.
type Point struct {
	X    float64
	Y    float64
	Null bool
}

// UnmarshalJSON decodes any of the Highcharts point shapes.
func (p *Point) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("%w: empty point", ErrParse)
	}

	if bytes.Equal(b, []byte("null")) {
		*p = Point{Null: true}
		return nil
	}

	switch b[0] {
	case '[':
		var pair []json.RawMessage
		if err := json.Unmarshal(b, &pair); err != nil {
			return fmt.Errorf("%w: point %s: %v", ErrParse, b, err)
		}
		if len(pair) < 2 {
			return fmt.Errorf("%w: point %s has no y value", ErrParse, b)
		}
		return p.set(pair[0], pair[1], b)
	case '{':
		var obj struct {
			X json.RawMessage `json:"x"`
			Y json.RawMessage `json:"y"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return fmt.Errorf("%w: point %s: %v", ErrParse, b, err)
		}
		return p.set(obj.X, obj.Y, b)
	default:
		var y float64
		if err := json.Unmarshal(b, &y); err != nil {
			return fmt.Errorf("%w: point %s: %v", ErrParse, b, err)
		}
		p.Y = y
	}
	return nil
}

// set fills the point from raw x and y values. x may be a category string or
// a timestamp and is kept only when numeric; y must be a number or null.
func (p *Point) set(x, y json.RawMessage, raw []byte) error {
	var xv float64
	if json.Unmarshal(x, &xv) == nil {
		p.X = xv
	}

	if len(y) == 0 || bytes.Equal(bytes.TrimSpace(y), []byte("null")) {
		p.Null = true
		return nil
	}
	var yv float64
	if err := json.Unmarshal(y, &yv); err != nil {
		return fmt.Errorf("%w: point %s: y is not a number", ErrParse, raw)
	}
	p.Y = yv
	return nil
}

// MarshalJSON writes the point back as an [x, y] pair.
func (p Point) MarshalJSON() ([]byte, error) {
	if p.Null {
		return json.Marshal([2]*float64{&p.X, nil})
	}
	return json.Marshal([2]float64{p.X, p.Y})
}
