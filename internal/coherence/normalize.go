package coherence

import (
	"math"
	"time"

	"github.com/i474232898/gaiatryst-synopsis/internal/common"
)

// Normalize turns raw chart series into a Snapshot taken at the given time.
// Only series whose whitespace-stripped name exactly matches a recognised
// station are used; the last point of each is the current value. Stations
// without a series, or whose last point is a gap or not positive, report 0
// and are inactive.
func Normalize(series []Series, at time.Time) Snapshot {
	stations := make(map[StationID]float64, len(Stations))
	for _, id := range Stations {
		stations[id] = 0
	}

	for _, s := range series {
		id := StationID(common.StripSpace(s.Name))
		if !id.Valid() {
			continue
		}

		value := 0.0
		if n := len(s.Data); n > 0 && !s.Data[n-1].Null && s.Data[n-1].Y > 0 {
			value = s.Data[n-1].Y
		}
		stations[id] = value
	}

	avg, active := GlobalAverage(stations)

	return Snapshot{
		Timestamp:     at.UTC(),
		GlobalAverage: avg,
		Stations:      stations,
		ActiveCount:   active,
		Source:        SourceScraper,
	}
}

// GlobalAverage returns the mean of strictly positive values rounded to two
// decimals, together with the number of values that contributed.
func GlobalAverage(stations map[StationID]float64) (float64, int) {
	var (
		sum    float64
		active int
	)
	for _, id := range Stations {
		if v := stations[id]; v > 0 {
			sum += v
			active++
		}
	}
	if active == 0 {
		return 0, 0
	}
	return Round2(sum / float64(active)), active
}

// Round2 rounds v half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
