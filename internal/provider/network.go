package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/httpclient"
	"github.com/tphakala/seisnet-go/internal/logger"
	"github.com/tphakala/seisnet-go/internal/privacy"
	"github.com/tphakala/seisnet-go/internal/waveform"
)

const (
	// StartHeader carries the actual start time of the returned samples.
	StartHeader = "X-Waveform-Start"

	maxResponseSize  = 256 << 20
	responseCacheTTL = 5 * time.Minute
)

// NetworkConfig configures NetworkClient.
type NetworkConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 is unlimited
	Burst     int
}

// NetworkClient fetches waveforms from an HTTP service:
//
//	GET <base>/waveform?station=&channel=&start=&end=
//
// The response body is a WAV file. Its samples start at the time given in
// the X-Waveform-Start header, or at the requested start when absent.
type NetworkClient struct {
	baseURL    *url.URL
	http       *httpclient.Client
	limiter    *rate.Limiter
	cache      *cache.Cache
	log        logger.Logger
}

// NewNetworkClient validates cfg and returns a client.
func NewNetworkClient(cfg NetworkConfig, log logger.Logger) (*NetworkClient, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.NewConfigError(componentName, "invalid waveform service url %q", cfg.BaseURL)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	c := &NetworkClient{
		baseURL: base,
		http:    httpclient.New(httpclient.Config{Timeout: cfg.Timeout}),
		limiter: rate.NewLimiter(limit, max(cfg.Burst, 1)),
		cache:   cache.New(responseCacheTTL, 2*responseCacheTTL),
		log:     logger.OrDiscard(log).Module(componentName),
	}
	c.http.SetResponseHook(c.logResponse)
	return c, nil
}

func (c *NetworkClient) logResponse(req *http.Request, resp *http.Response, elapsed time.Duration, err error) {
	fields := []logger.Field{
		logger.String("url", privacy.RedactURL(req.URL.String())),
		logger.Duration("elapsed", elapsed),
	}
	if err != nil {
		c.log.Debug("waveform request failed", append(fields, logger.Error(privacy.WrapError(err)))...)
		return
	}
	c.log.Trace("waveform response", append(fields, logger.Int("status", resp.StatusCode))...)
}

// Fetch requests [start, end) for one channel. The result is trimmed or
// NaN-padded to exactly that span.
func (c *NetworkClient) Fetch(ctx context.Context, station, channel string, start, end time.Time) (*waveform.Waveform, error) {
	if !end.After(start) {
		return nil, errors.NewDataError(componentName, "empty time span %s - %s", start, end)
	}

	reqURL := c.requestURL(station, channel, start, end)
	if cached, ok := c.cache.Get(reqURL); ok {
		if w, ok := cached.(*waveform.Waveform); ok {
			return w.Window(start, end.Sub(start)), nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.New(err).Component(componentName).Context("url", privacy.RedactURL(reqURL)).Build()
	}

	began := time.Now()
	body, header, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	samples, sampleRate, err := decodeWAV(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, errors.NewDataError(componentName, "response for %s.%s has no sample rate", station, channel)
	}

	dataStart := start
	if v := header.Get(StartHeader); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, errors.Newf("invalid %s header %q", StartHeader, v).
				Component(componentName).
				Category(errors.CategoryFileParsing).
				Build()
		}
		dataStart = t
	}

	raw := &waveform.Waveform{
		Station:    station,
		Channel:    channel,
		Start:      dataStart,
		SampleRate: sampleRate,
		Samples:    samples,
	}
	c.cache.SetDefault(reqURL, raw)

	c.log.Debug("waveform fetched",
		logger.String("station", station),
		logger.String("channel", channel),
		logger.Int("samples", len(samples)),
		logger.Duration("elapsed", time.Since(began)))

	return raw.Window(start, end.Sub(start)), nil
}

func (c *NetworkClient) requestURL(station, channel string, start, end time.Time) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/waveform"
	q := url.Values{}
	q.Set("station", station)
	q.Set("channel", channel)
	q.Set("start", start.UTC().Format(time.RFC3339Nano))
	q.Set("end", end.UTC().Format(time.RFC3339Nano))
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *NetworkClient) get(ctx context.Context, reqURL string) ([]byte, http.Header, error) {
	resp, err := c.http.Get(ctx, reqURL, "audio/wav")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, errors.New(ctxErr).Component(componentName).Build()
		}
		return nil, nil, errors.New(privacy.WrapError(err)).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("url", privacy.RedactURL(reqURL)).
			Build()
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil, errors.Newf("no data at %s", privacy.RedactURL(reqURL)).
			Component(componentName).
			Category(errors.CategoryNotFound).
			Build()
	case resp.StatusCode != http.StatusOK:
		return nil, nil, errors.New(fmt.Errorf("waveform service returned %s", resp.Status)).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("url", privacy.RedactURL(reqURL)).
			Context("status", resp.StatusCode).
			Build()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("url", privacy.RedactURL(reqURL)).
			Build()
	}
	return body, resp.Header, nil
}
