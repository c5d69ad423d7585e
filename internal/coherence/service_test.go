package coherence_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/gaiatryst-synopsis/internal/coherence"
	"github.com/i474232898/gaiatryst-synopsis/internal/csvlog"
	"github.com/i474232898/gaiatryst-synopsis/internal/store"
)

// fakeFetcher returns queued results in order, repeating the last one.
type fakeFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
}

type fetchResult struct {
	series []coherence.Series
	err    error
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) Fetch(ctx context.Context) ([]coherence.Series, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	r := f.results[i]
	return r.series, r.err
}

type fakeRecorder struct {
	mu      sync.Mutex
	cycles  map[string]int
	appends []error
}

func (r *fakeRecorder) RecordCycle(result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cycles == nil {
		r.cycles = make(map[string]int)
	}
	r.cycles[result]++
}

func (r *fakeRecorder) RecordSnapshot(coherence.Snapshot) {}

func (r *fakeRecorder) RecordLogAppend(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appends = append(r.appends, err)
}

func gciSeries(values ...float64) []coherence.Series {
	var out []coherence.Series
	for i, v := range values {
		out = append(out, coherence.Series{
			Name: string(coherence.Stations[i]),
			Data: []coherence.Point{{X: 0, Y: v}},
		})
	}
	return out
}

// stepClock advances by one minute on every call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	}
}

func TestRunCycleStoresAndLogs(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "gci.csv")
	writer := csvlog.NewWriter(logPath)
	memStore := store.NewMemoryStore()
	fetcher := &fakeFetcher{results: []fetchResult{{series: gciSeries(7.8, 8.2)}}}
	rec := &fakeRecorder{}

	svc := coherence.NewService(memStore, writer, fetcher, coherence.WithRecorder(rec))

	snap, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.GlobalAverage != 8 {
		t.Errorf("expected global average 8, got %v", snap.GlobalAverage)
	}

	cached, err := memStore.Latest()
	if err != nil {
		t.Fatalf("expected cached snapshot: %v", err)
	}
	if !cached.Timestamp.Equal(snap.Timestamp) {
		t.Errorf("cached timestamp %v differs from cycle %v", cached.Timestamp, snap.Timestamp)
	}

	rows, err := writer.ReadAll()
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 log row, got %d", len(rows))
	}
	if rec.cycles[coherence.ResultSuccess] != 1 {
		t.Errorf("expected 1 successful cycle recorded, got %v", rec.cycles)
	}
}

func TestFailedCycleKeepsSnapshot(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantResult string
	}{
		{"fetch failure", fmt.Errorf("%w: browser crashed", coherence.ErrFetch), coherence.ResultFetchError},
		{"parse failure", fmt.Errorf("%w: chart object not found", coherence.ErrParse), coherence.ResultParseError},
		{"no series", nil, coherence.ResultParseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := csvlog.NewWriter(filepath.Join(t.TempDir(), "gci.csv"))
			memStore := store.NewMemoryStore()
			fetcher := &fakeFetcher{results: []fetchResult{
				{series: gciSeries(7.5)},
				{err: tt.err},
			}}
			rec := &fakeRecorder{}
			svc := coherence.NewService(memStore, writer, fetcher,
				coherence.WithRecorder(rec),
				coherence.WithClock(stepClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))),
			)

			if _, err := svc.RunCycle(context.Background()); err != nil {
				t.Fatalf("first cycle failed: %v", err)
			}
			before, _ := memStore.Latest()

			if _, err := svc.RunCycle(context.Background()); err == nil {
				t.Fatal("expected second cycle to fail")
			}
			after, err := memStore.Latest()
			if err != nil {
				t.Fatalf("cache lost its snapshot: %v", err)
			}
			if !after.Timestamp.Equal(before.Timestamp) {
				t.Errorf("timestamp changed from %v to %v", before.Timestamp, after.Timestamp)
			}

			rows, _ := writer.ReadAll()
			if len(rows) != 1 {
				t.Errorf("expected log to keep 1 row, got %d", len(rows))
			}
			if rec.cycles[tt.wantResult] != 1 {
				t.Errorf("expected one %s cycle, got %v", tt.wantResult, rec.cycles)
			}
		})
	}
}

func TestRunCycleAllSilentStillLogged(t *testing.T) {
	writer := csvlog.NewWriter(filepath.Join(t.TempDir(), "gci.csv"))
	fetcher := &fakeFetcher{results: []fetchResult{{series: gciSeries(0, 0, 0, 0, 0, 0)}}}
	svc := coherence.NewService(store.NewMemoryStore(), writer, fetcher)

	snap, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.ActiveCount != 0 || snap.GlobalAverage != 0 {
		t.Errorf("expected no active stations and average 0, got %d / %v", snap.ActiveCount, snap.GlobalAverage)
	}

	rows, err := writer.ReadAll()
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected the silent reading to be logged, got %d rows", len(rows))
	}
}

func TestLogFailureStillUpdatesCache(t *testing.T) {
	dir := t.TempDir()
	// A directory where the log file should be makes every append fail.
	logPath := filepath.Join(dir, "gci.csv")
	if err := os.Mkdir(logPath, 0o755); err != nil {
		t.Fatal(err)
	}

	memStore := store.NewMemoryStore()
	rec := &fakeRecorder{}
	fetcher := &fakeFetcher{results: []fetchResult{{series: gciSeries(7.9)}}}
	svc := coherence.NewService(memStore, csvlog.NewWriter(logPath), fetcher, coherence.WithRecorder(rec))

	if _, err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("log failure must not fail the cycle: %v", err)
	}
	if _, err := memStore.Latest(); err != nil {
		t.Fatalf("expected cache to be updated: %v", err)
	}
	if len(rec.appends) != 1 || rec.appends[0] == nil {
		t.Errorf("expected one failed append recorded, got %v", rec.appends)
	}
}

func TestLatestBootstrapsFromLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "gci.csv")
	writer := csvlog.NewWriter(logPath)
	logged := coherence.Normalize(gciSeries(7.1, 7.3), time.Date(2026, 2, 2, 6, 0, 0, 0, time.UTC))
	if err := writer.Append(logged); err != nil {
		t.Fatal(err)
	}

	fetcher := &fakeFetcher{results: []fetchResult{{err: coherence.ErrFetch}}}
	svc := coherence.NewService(store.NewMemoryStore(), writer, fetcher)

	snap, err := svc.Latest(context.Background())
	if err != nil {
		t.Fatalf("expected snapshot from log: %v", err)
	}
	if snap.Source != coherence.SourceLog {
		t.Errorf("expected source %q, got %q", coherence.SourceLog, snap.Source)
	}
	if snap.GlobalAverage != 7.2 {
		t.Errorf("expected global average 7.2, got %v", snap.GlobalAverage)
	}
	if fetcher.calls != 0 {
		t.Errorf("expected no fetch, got %d", fetcher.calls)
	}
}

func TestLatestEmpty(t *testing.T) {
	writer := csvlog.NewWriter(filepath.Join(t.TempDir(), "missing.csv"))
	fetcher := &fakeFetcher{results: []fetchResult{{series: gciSeries(7.1)}}}
	svc := coherence.NewService(store.NewMemoryStore(), writer, fetcher)

	_, err := svc.Latest(context.Background())
	if !errors.Is(err, coherence.ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
	if fetcher.calls != 0 {
		t.Errorf("read must not fetch unless enabled, got %d calls", fetcher.calls)
	}
}

func TestLatestFetchOnEmpty(t *testing.T) {
	writer := csvlog.NewWriter(filepath.Join(t.TempDir(), "gci.csv"))
	fetcher := &fakeFetcher{results: []fetchResult{{series: gciSeries(7.1)}}}
	svc := coherence.NewService(store.NewMemoryStore(), writer, fetcher, coherence.WithFetchOnEmpty(true))

	snap, err := svc.Latest(context.Background())
	if err != nil {
		t.Fatalf("expected last-resort fetch to populate: %v", err)
	}
	if snap.Source != coherence.SourceScraper {
		t.Errorf("expected source %q, got %q", coherence.SourceScraper, snap.Source)
	}

	// Populated now; no further fetches on read.
	if _, err := svc.Latest(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fetcher.calls != 1 {
		t.Errorf("expected exactly 1 fetch, got %d", fetcher.calls)
	}
}

func TestBootstrapDoesNotOverwriteNewer(t *testing.T) {
	writer := csvlog.NewWriter(filepath.Join(t.TempDir(), "gci.csv"))
	old := coherence.Normalize(gciSeries(5), time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	if err := writer.Append(old); err != nil {
		t.Fatal(err)
	}

	memStore := store.NewMemoryStore()
	fresh := coherence.Normalize(gciSeries(9), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	memStore.Save(fresh)

	svc := coherence.NewService(memStore, writer, nil)
	if err := svc.Bootstrap(); err != nil {
		t.Fatal(err)
	}

	got, _ := memStore.Latest()
	if got.GlobalAverage != 9 {
		t.Errorf("bootstrap replaced a newer snapshot: %+v", got)
	}
}

func TestRunCycleWithoutFetcher(t *testing.T) {
	svc := coherence.NewService(store.NewMemoryStore(), nil, nil)
	if _, err := svc.RunCycle(context.Background()); !errors.Is(err, coherence.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}
