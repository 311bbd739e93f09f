package sources

import (
	"context"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
	DefaultRequestTimeout = 15 * time.Second
)

// Fetcher holds the outbound HTTP settings shared by the HTML adapters.
type Fetcher struct {
	UserAgent      string
	RequestTimeout time.Duration
	// Limiter throttles requests across every adapter using this fetcher.
	Limiter   *rate.Limiter
	Transport http.RoundTripper
}

// NewLimiter allows perSecond requests with the given burst. Zero disables limiting.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (f Fetcher) collector(ctx context.Context) *colly.Collector {
	ua := f.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	timeout := f.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	base := f.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c := colly.NewCollector(colly.UserAgent(ua), colly.AllowURLRevisit())
	c.SetRequestTimeout(timeout)
	c.WithTransport(&boundTransport{ctx: ctx, base: base, limiter: f.Limiter})
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-AU,en;q=0.9")
	})
	return c
}

// boundTransport ties every request to the run context and waits on the limiter.
type boundTransport struct {
	ctx     context.Context
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *boundTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.WithContext(t.ctx)
	if t.limiter != nil {
		if err := t.limiter.Wait(t.ctx); err != nil {
			return nil, err
		}
	}
	return t.base.RoundTrip(req)
}
