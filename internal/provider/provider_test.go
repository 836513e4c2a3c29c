package provider

import (
	"context"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/seisnet-go/internal/conf"
	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/testutil"
	"github.com/tphakala/seisnet-go/internal/waveform"
)

const testRate = 20.0

// ramp returns n samples counting up from first.
func ramp(first, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(first + i)
	}
	return out
}

func writeSegments(t *testing.T, root string) {
	t.Helper()
	for k := range 2 {
		w := &waveform.Waveform{
			Station:    "UU.CTU",
			Channel:    "HHZ",
			Start:      testutil.Epoch.Add(time.Duration(k) * 10 * time.Second),
			SampleRate: testRate,
			Samples:    ramp(k*200, 200),
		}
		_, err := WriteSegment(root, w)
		require.NoError(t, err)
	}
}

func wavBytes(t *testing.T, samples []float64, rate int) []byte {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "*.wav")
	require.NoError(t, err)
	require.NoError(t, WriteWAV(f, samples, rate))
	require.NoError(t, f.Close())
	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	return data
}

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()

	samples := []float64{0, 1, -1, 123456, -654321, math.NaN(), 2.6}
	f, err := os.CreateTemp(t.TempDir(), "*.wav")
	require.NoError(t, err)
	require.NoError(t, WriteWAV(f, samples, 100))
	_, err = f.Seek(0, 0)
	require.NoError(t, err)

	got, rate, err := decodeWAV(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.InDelta(t, 100, rate, 0)
	assert.Equal(t, []float64{0, 1, -1, 123456, -654321, 0, 3}, got)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.flac")
	require.NoError(t, os.WriteFile(path, []byte("not audio at all"), 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, _, err = decodeFLAC(f)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))

	_, _, err = decodeWAV(f)
	require.Error(t, err)
}

func TestLocalDirectoryStitchesSegments(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeSegments(t, root)

	p, err := NewLocalDirectory(root, time.Minute, nil)
	require.NoError(t, err)

	w, err := p.Fetch(context.Background(), "UU.CTU", "HHZ",
		testutil.Epoch.Add(5*time.Second), testutil.Epoch.Add(15*time.Second))
	require.NoError(t, err)

	assert.InDelta(t, testRate, w.SampleRate, 0)
	assert.Equal(t, ramp(100, 200), w.Samples)
	assert.True(t, w.Start.Equal(testutil.Epoch.Add(5*time.Second)))

	// cached second read returns the same data
	again, err := p.Fetch(context.Background(), "UU.CTU", "HHZ",
		testutil.Epoch.Add(5*time.Second), testutil.Epoch.Add(15*time.Second))
	require.NoError(t, err)
	assert.Equal(t, w.Samples, again.Samples)
}

func TestLocalDirectoryMarksUncoveredSpanAsGap(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeSegments(t, root)

	p, err := NewLocalDirectory(root, 0, nil)
	require.NoError(t, err)

	w, err := p.Fetch(context.Background(), "UU.CTU", "HHZ",
		testutil.Epoch.Add(15*time.Second), testutil.Epoch.Add(25*time.Second))
	require.NoError(t, err)
	require.Len(t, w.Samples, 200)
	assert.Equal(t, ramp(300, 100), w.Samples[:100])
	assert.InDelta(t, 0.5, waveform.GapFraction(w.Samples), 1e-12)
}

func TestLocalDirectoryErrors(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeSegments(t, root)
	p, err := NewLocalDirectory(root, 0, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = p.Fetch(ctx, "UU.XXX", "HHZ", testutil.Epoch, testutil.Epoch.Add(time.Second))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	_, err = p.Fetch(ctx, "UU.CTU", "HHZ", testutil.Epoch.Add(time.Hour), testutil.Epoch.Add(2*time.Hour))
	require.NoError(t, err, "a span after the last segment start is a gap, not an error")

	_, err = p.Fetch(ctx, "UU.CTU", "HHZ", testutil.Epoch.Add(-time.Hour), testutil.Epoch.Add(-time.Minute))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	_, err = p.Fetch(ctx, "UU.CTU", "HHZ", testutil.Epoch, testutil.Epoch)
	require.Error(t, err)
	assert.True(t, errors.IsDataError(err))

	_, err = NewLocalDirectory(filepath.Join(root, "missing"), 0, nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestLocalDirectoryRateMismatch(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for k, rate := range []float64{20, 40} {
		_, err := WriteSegment(root, &waveform.Waveform{
			Station: "UU.CTU", Channel: "HHZ",
			Start:      testutil.Epoch.Add(time.Duration(k) * 10 * time.Second),
			SampleRate: rate,
			Samples:    ramp(0, int(10*rate)),
		})
		require.NoError(t, err)
	}

	p, err := NewLocalDirectory(root, 0, nil)
	require.NoError(t, err)
	_, err = p.Fetch(context.Background(), "UU.CTU", "HHZ", testutil.Epoch, testutil.Epoch.Add(20*time.Second))
	require.Error(t, err)
	assert.True(t, errors.IsDataError(err))
}

func newMockedClient(t *testing.T) (*NetworkClient, *httpmock.MockTransport) {
	t.Helper()
	c, err := NewNetworkClient(NetworkConfig{
		BaseURL:   "https://waveforms.example.org/api/",
		Timeout:   time.Second,
		RateLimit: 100,
		Burst:     5,
	}, nil)
	require.NoError(t, err)

	mock := httpmock.NewMockTransport()
	c.http.SetTransport(mock)
	return c, mock
}

const waveformURL = `=~^https://waveforms\.example\.org/api/waveform`

func TestNetworkClientFetch(t *testing.T) {
	t.Parallel()

	c, mock := newMockedClient(t)
	body := wavBytes(t, ramp(0, 400), int(testRate))
	dataStart := testutil.Epoch.Add(-5 * time.Second)

	var query map[string][]string
	mock.RegisterResponder(http.MethodGet, waveformURL, func(req *http.Request) (*http.Response, error) {
		query = req.URL.Query()
		resp := httpmock.NewBytesResponse(http.StatusOK, body)
		resp.Header.Set(StartHeader, dataStart.Format(time.RFC3339Nano))
		return resp, nil
	})

	start, end := testutil.Epoch, testutil.Epoch.Add(10*time.Second)
	w, err := c.Fetch(context.Background(), "UU.CTU", "HHZ", start, end)
	require.NoError(t, err)

	assert.Equal(t, []string{"UU.CTU"}, query["station"])
	assert.Equal(t, []string{"HHZ"}, query["channel"])
	assert.Equal(t, []string{start.Format(time.RFC3339Nano)}, query["start"])
	assert.True(t, w.Start.Equal(start))
	assert.Equal(t, ramp(100, 200), w.Samples)

	_, err = c.Fetch(context.Background(), "UU.CTU", "HHZ", start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, mock.GetTotalCallCount(), "repeated request is served from cache")
}

func TestNetworkClientErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		category errors.ErrorCategory
	}{
		{name: "not found", status: http.StatusNotFound, category: errors.CategoryNotFound},
		{name: "server error", status: http.StatusInternalServerError, category: errors.CategoryNetwork},
		{name: "bad body", status: http.StatusOK, body: "garbage", category: errors.CategoryFileParsing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, mock := newMockedClient(t)
			mock.RegisterResponder(http.MethodGet, waveformURL, httpmock.NewStringResponder(tt.status, tt.body))

			_, err := c.Fetch(context.Background(), "UU.CTU", "HHZ", testutil.Epoch, testutil.Epoch.Add(time.Second))
			require.Error(t, err)
			assert.Equal(t, tt.category, errors.CategoryOf(err))
		})
	}
}

func TestNetworkClientHonorsCancellation(t *testing.T) {
	t.Parallel()

	c, mock := newMockedClient(t)
	mock.RegisterResponder(http.MethodGet, waveformURL, httpmock.NewStringResponder(http.StatusOK, ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Fetch(ctx, "UU.CTU", "HHZ", testutil.Epoch, testutil.Epoch.Add(time.Second))
	require.Error(t, err)
	assert.Equal(t, 0, mock.GetTotalCallCount())
}

func TestNew(t *testing.T) {
	t.Parallel()

	p, err := New(&conf.ProviderSettings{Type: conf.ProviderLocal, Local: conf.LocalProviderSettings{Root: t.TempDir()}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LocalDirectory{}, p)

	p, err = New(&conf.ProviderSettings{Type: conf.ProviderNetwork, Network: conf.NetworkProviderSettings{
		BaseURL: "http://localhost:9000", Timeout: time.Second,
	}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &NetworkClient{}, p)

	_, err = New(&conf.ProviderSettings{Type: "ftp"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestNetworkClientRedactsCredentials(t *testing.T) {
	t.Parallel()

	c, err := NewNetworkClient(NetworkConfig{
		BaseURL: "https://waveforms.example.org/?token=s3cret",
		Timeout: time.Second,
	}, nil)
	require.NoError(t, err)
	mock := httpmock.NewMockTransport()
	c.http.SetTransport(mock)
	mock.RegisterNoResponder(httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	_, err = c.Fetch(context.Background(), "UU.CTU", "HHZ", testutil.Epoch, testutil.Epoch.Add(time.Second))
	require.Error(t, err)
	assert.Equal(t, errors.CategoryNetwork, errors.CategoryOf(err))
	assert.NotContains(t, err.Error(), "s3cret")
}
