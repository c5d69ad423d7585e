package coherence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Cycle results reported to the Recorder.
const (
	ResultSuccess    = "success"
	ResultFetchError = "fetch_error"
	ResultParseError = "parse_error"
)

// Service orchestrates fetch cycles and owns the current snapshot.
type Service struct {
	store   Store
	log     LogWriter
	fetcher Fetcher

	recorder     Recorder
	logger       zerolog.Logger
	now          func() time.Time
	fetchOnEmpty bool
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithFetchOnEmpty makes Latest run one synchronous cycle as a last resort
// when neither the cache nor the log has a snapshot.
func WithFetchOnEmpty(enabled bool) Option {
	return func(s *Service) { s.fetchOnEmpty = enabled }
}

// NewService creates a new Service. log may be nil, in which case snapshots
// are only cached.
func NewService(store Store, log LogWriter, fetcher Fetcher, opts ...Option) *Service {
	s := &Service{
		store:   store,
		log:     log,
		fetcher: fetcher,
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RunCycle performs one fetch, normalizes the result, appends it to the log
// and replaces the cached snapshot. A failed fetch leaves cache and log
// untouched. A failed log append is logged but the cache is still updated.
func (s *Service) RunCycle(ctx context.Context) (Snapshot, error) {
	if s.fetcher == nil {
		return Snapshot{}, fmt.Errorf("%w: no fetcher configured", ErrFetch)
	}

	start := s.now()
	logger := s.logger.With().
		Str("cycle_id", uuid.NewString()).
		Str("fetcher", s.fetcher.Name()).
		Logger()

	logger.Debug().Msg("fetch cycle started")

	series, err := s.fetcher.Fetch(ctx)
	if err == nil && len(series) == 0 {
		err = fmt.Errorf("%w: page returned no series", ErrParse)
	}
	if err != nil {
		result := ResultFetchError
		if errors.Is(err, ErrParse) {
			result = ResultParseError
		}
		s.recordCycle(result, start)
		logger.Warn().Err(err).Msg("fetch cycle skipped; keeping last good snapshot")
		return Snapshot{}, err
	}

	snapshot := Normalize(series, s.now())

	if s.log != nil {
		appendErr := s.log.Append(snapshot)
		if appendErr != nil {
			logger.Error().Err(appendErr).Msg("failed to append snapshot to log")
		}
		if s.recorder != nil {
			s.recorder.RecordLogAppend(appendErr)
		}
	}

	s.store.Save(snapshot)
	s.recordCycle(ResultSuccess, start)
	if s.recorder != nil {
		s.recorder.RecordSnapshot(snapshot)
	}

	logger.Info().
		Float64("global_avg", snapshot.GlobalAverage).
		Int("active_stations", snapshot.ActiveCount).
		Dur("took", s.now().Sub(start)).
		Msg("fetch cycle completed")

	return snapshot.Clone(), nil
}

// Refresh forces a synchronous cycle. It is RunCycle under the name the HTTP
// layer uses.
func (s *Service) Refresh(ctx context.Context) (Snapshot, error) {
	return s.RunCycle(ctx)
}

// Bootstrap loads the last row of the log into the cache unless the cache
// already holds something newer.
func (s *Service) Bootstrap() error {
	if s.log == nil {
		return ErrNoSnapshot
	}

	snapshot, err := s.log.Last()
	if err != nil {
		return err
	}
	snapshot.Source = SourceLog

	if s.store.SaveIfNewer(snapshot) {
		s.logger.Info().
			Time("timestamp", snapshot.Timestamp).
			Float64("global_avg", snapshot.GlobalAverage).
			Msg("snapshot loaded from log")
	}
	return nil
}

// Latest returns the cached snapshot. While the cache is empty it falls back
// to the log tail and then, if enabled, to one synchronous fetch.
func (s *Service) Latest(ctx context.Context) (Snapshot, error) {
	snapshot, err := s.store.Latest()
	if err == nil {
		return snapshot, nil
	}
	if !errors.Is(err, ErrNoSnapshot) {
		return Snapshot{}, err
	}

	if err := s.Bootstrap(); err != nil {
		s.logger.Debug().Err(err).Msg("log bootstrap unavailable")
	} else if snapshot, err := s.store.Latest(); err == nil {
		return snapshot, nil
	}

	if s.fetchOnEmpty {
		if _, err := s.RunCycle(ctx); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrNoSnapshot, err)
		}
		return s.store.Latest()
	}

	return Snapshot{}, ErrNoSnapshot
}

// Current returns the cached snapshot without any fallback.
func (s *Service) Current() (Snapshot, error) {
	return s.store.Latest()
}

func (s *Service) recordCycle(result string, start time.Time) {
	if s.recorder != nil {
		s.recorder.RecordCycle(result, s.now().Sub(start))
	}
}
