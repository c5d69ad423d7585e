package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/i474232898/gaiatryst-synopsis/internal/coherence"
	"github.com/i474232898/gaiatryst-synopsis/internal/store"
)

const notAvailableMsg = "Data not available yet, please try again in a moment"

// Info describes the running service for the index and health endpoints.
type Info struct {
	Name     string
	Version  string
	Interval time.Duration

	// NextRun reports the next scheduled cycle; may be nil.
	NextRun func() time.Time

	// RefreshTimeout bounds a forced refresh. Zero means no extra bound.
	RefreshTimeout time.Duration

	// Metrics, when set, is served on /metrics.
	Metrics http.Handler
}

// ErrorHandler renders every error as {"error": "..."} with the status of a
// *fiber.Error, or 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *coherence.Service, info Info) {
	app.Get("/", func(c *fiber.Ctx) error {
		names := make(map[string]string, len(coherence.Stations))
		for id, name := range coherence.StationNames() {
			names[string(id)] = name
		}
		return c.JSON(fiber.Map{
			"name":    info.Name,
			"version": info.Version,
			"endpoints": fiber.Map{
				"GET /api/data":     "Get current Global Coherence data",
				"GET /api/stations": "Get per-station readings",
				"GET /api/health":   "Check API health status",
				"POST /api/refresh": "Force a synchronous re-fetch",
			},
			"stations":        names,
			"update_interval": formatInterval(info.Interval),
		})
	})

	api := app.Group("/api")

	api.Get("/data", func(c *fiber.Ctx) error {
		snapshot, err := service.Latest(c.UserContext())
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusServiceUnavailable, notAvailableMsg)
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read current data")
		}
		return c.JSON(newDataResponse(snapshot, info))
	})

	api.Get("/stations", func(c *fiber.Ctx) error {
		snapshot, err := service.Current()
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read current data")
		}

		type stationView struct {
			coherence.StationReading
			Name string `json:"name"`
		}
		out := make([]stationView, 0, len(coherence.Stations))
		for _, r := range snapshot.Readings() {
			out = append(out, stationView{StationReading: r, Name: r.StationID.Name()})
		}
		return c.JSON(out)
	})

	api.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":          "healthy",
			"last_update":     "Never",
			"update_interval": formatInterval(info.Interval),
		}
		if snapshot, err := service.Current(); err == nil {
			body["last_update"] = formatTime(snapshot.Timestamp)
		}
		if next := nextRun(info); !next.IsZero() {
			body["next_update"] = formatTime(next)
		}
		return c.JSON(body)
	})

	api.Post("/refresh", func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if info.RefreshTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, info.RefreshTimeout)
			defer cancel()
		}

		snapshot, err := service.Refresh(ctx)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("refresh failed: %v", err))
		}
		return c.JSON(newDataResponse(snapshot, info))
	})

	if info.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(info.Metrics))
	}
}

// dataResponse is the JSON shape of a snapshot served to clients.
type dataResponse struct {
	Timestamp      string                          `json:"timestamp"`
	GlobalAvg      float64                         `json:"global_avg"`
	Stations       map[coherence.StationID]float64 `json:"stations"`
	LastUpdate     string                          `json:"last_update"`
	NextUpdate     string                          `json:"next_update,omitempty"`
	Source         coherence.Source                `json:"source"`
	ActiveStations int                             `json:"active_stations"`
}

func newDataResponse(s coherence.Snapshot, info Info) dataResponse {
	resp := dataResponse{
		Timestamp:      formatTime(s.Timestamp),
		GlobalAvg:      s.GlobalAverage,
		Stations:       s.Stations,
		LastUpdate:     formatTime(s.Timestamp),
		Source:         s.Source,
		ActiveStations: s.ActiveCount,
	}
	if next := nextRun(info); !next.IsZero() {
		resp.NextUpdate = formatTime(next)
	}
	return resp
}

func nextRun(info Info) time.Time {
	if info.NextRun == nil {
		return time.Time{}
	}
	return info.NextRun()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatInterval(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(d/time.Second))
}
