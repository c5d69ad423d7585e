package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/i474232898/gaiatryst-synopsis/internal/coherence"
)

// DefaultTargetURL is the public Global Coherence power levels chart.
const DefaultTargetURL = "https://nocc.heartmath.org/power_levels/public/charts/power_levels.html"

// chartReadyJS resolves truthy once a Highcharts chart with series exists.
const chartReadyJS = `() => typeof Highcharts !== 'undefined' &&
	Array.isArray(Highcharts.charts) &&
	Highcharts.charts.some(c => c && c.series && c.series.length > 0)`

// seriesJS reads series straight from the chart object model. It returns
// null when no chart is present.
const seriesJS = `() => {
	if (typeof Highcharts === 'undefined' || !Array.isArray(Highcharts.charts)) {
		return null;
	}
	const chart = Highcharts.charts.find(c => c && c.series && c.series.length > 0);
	if (!chart) {
		return null;
	}
	return chart.series.map(s => ({
		name: String(s.name),
		data: (s.options && s.options.data) || []
	}));
}`

// BrowserConfig configures how the chart page is rendered.
type BrowserConfig struct {
	TargetURL string

	// RenderTimeout bounds navigation plus the wait for the chart object.
	RenderTimeout time.Duration

	// Bin is an explicit Chrome binary. Empty lets the launcher find or
	// download one.
	Bin string

	// RemoteURL is the DevTools WebSocket URL of an external Chrome. Empty
	// launches a local headless Chrome per fetch.
	RemoteURL string

	// BlockResources lists resource types to block (images, fonts, media,
	// stylesheets).
	BlockResources []string

	Breaker BreakerConfig
	Logger  zerolog.Logger
}

func (c *BrowserConfig) defaults() {
	if c.TargetURL == "" {
		c.TargetURL = DefaultTargetURL
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 30 * time.Second
	}
}

// HeartMathProvider implements coherence.Fetcher by rendering the HeartMath
// chart page in headless Chrome and reading its Highcharts series.
type HeartMathProvider struct {
	name    string
	cfg     BrowserConfig
	circuit *gobreaker.CircuitBreaker

	// scrape performs one browser session; replaced in tests.
	scrape func(ctx context.Context) ([]coherence.Series, error)
}

// NewHeartMathProvider creates a provider. No browser is started until Fetch.
func NewHeartMathProvider(cfg BrowserConfig) *HeartMathProvider {
	cfg.defaults()

	p := &HeartMathProvider{
		name:    "heartmath",
		cfg:     cfg,
		circuit: newBreaker("heartmath", cfg.Breaker),
	}
	p.scrape = p.scrapeBrowser
	return p
}

func (p *HeartMathProvider) Name() string {
	return p.name
}

// Fetch renders the page once and returns its series.
func (p *HeartMathProvider) Fetch(ctx context.Context) ([]coherence.Series, error) {
	return scrapeWithBreaker(ctx, p.circuit, p.scrape)
}

// BreakerState reports the circuit breaker state, e.g. "closed" or "open".
func (p *HeartMathProvider) BreakerState() string {
	return p.circuit.State().String()
}

func (p *HeartMathProvider) scrapeBrowser(ctx context.Context) ([]coherence.Series, error) {
	log := p.cfg.Logger
	start := time.Now()

	browser, cleanup, err := p.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coherence.ErrFetch, err)
	}
	defer cleanup()

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("%w: create page: %v", coherence.ErrFetch, err)
	}
	defer page.Close()

	if len(p.cfg.BlockResources) > 0 {
		router := blockResources(page, p.cfg.BlockResources)
		defer func() {
			if err := router.Stop(); err != nil {
				log.Debug().Err(err).Msg("browser: stop request router")
			}
		}()
	}

	renderCtx, cancel := context.WithTimeout(ctx, p.cfg.RenderTimeout)
	defer cancel()
	page = page.Context(renderCtx)

	if err := page.Navigate(p.cfg.TargetURL); err != nil {
		return nil, fmt.Errorf("%w: navigate %s: %v", coherence.ErrFetch, p.cfg.TargetURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		log.Warn().Err(err).Str("url", p.cfg.TargetURL).Msg("browser: wait load")
	}

	if err := page.Wait(rod.Eval(chartReadyJS)); err != nil {
		if errors.Is(renderCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: chart did not render within %s", coherence.ErrFetch, p.cfg.RenderTimeout)
		}
		return nil, fmt.Errorf("%w: wait for chart: %v", coherence.ErrFetch, err)
	}

	res, err := page.Eval(seriesJS)
	if err != nil {
		return nil, fmt.Errorf("%w: read chart series: %v", coherence.ErrParse, err)
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: encode chart series: %v", coherence.ErrParse, err)
	}

	series, err := decodeSeries(raw)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("series", len(series)).
		Dur("took", time.Since(start)).
		Msg("browser: chart series extracted")

	return series, nil
}

// connect launches a local headless Chrome, or opens an incognito context on
// the remote one, and returns a cleanup func that tears it down.
func (p *HeartMathProvider) connect(ctx context.Context) (*rod.Browser, func(), error) {
	log := p.cfg.Logger

	if p.cfg.RemoteURL != "" {
		b := rod.New().ControlURL(p.cfg.RemoteURL).Context(ctx)
		if err := b.Connect(); err != nil {
			return nil, nil, fmt.Errorf("connect %s: %w", p.cfg.RemoteURL, err)
		}
		inc, err := b.Incognito()
		if err != nil {
			return nil, nil, fmt.Errorf("incognito: %w", err)
		}
		log.Debug().Str("url", p.cfg.RemoteURL).Msg("browser: connected to remote")
		return inc, func() { _ = inc.Close() }, nil
	}

	l := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled")
	if p.cfg.Bin != "" {
		l = l.Bin(p.cfg.Bin)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch: %w", err)
	}

	b := rod.New().ControlURL(u).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	log.Debug().Str("url", u).Msg("browser: launched local chrome")

	return b, func() {
		_ = b.Close()
		l.Cleanup()
	}, nil
}

// decodeSeries decodes the JSON produced by seriesJS. Upstream content is
// only ever decoded as data.
func decodeSeries(raw []byte) ([]coherence.Series, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: chart object not found", coherence.ErrParse)
	}

	var series []coherence.Series
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, fmt.Errorf("%w: decode series: %v", coherence.ErrParse, err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: chart has no series", coherence.ErrParse)
	}
	return series, nil
}
