package httpclient

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serviceURL = "https://waveforms.example.org/waveform"

func newMockedClient(t *testing.T, cfg Config) (*Client, *httpmock.MockTransport) {
	t.Helper()
	c := New(cfg)
	mock := httpmock.NewMockTransport()
	c.SetTransport(mock)
	t.Cleanup(c.Close)
	return c, mock
}

func TestGetSetsHeadersAndDeadline(t *testing.T) {
	t.Parallel()

	c, mock := newMockedClient(t, Config{Timeout: time.Minute})

	var reqCtx context.Context
	mock.RegisterResponder(http.MethodGet, serviceURL, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "seisnet-go", req.Header.Get("User-Agent"))
		assert.Equal(t, "audio/wav", req.Header.Get("Accept"))
		deadline, ok := req.Context().Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
		reqCtx = req.Context()
		return httpmock.NewStringResponse(http.StatusOK, "RIFF"), nil
	})

	resp, err := c.Get(t.Context(), serviceURL, "audio/wav")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(body))

	require.NoError(t, reqCtx.Err())
	require.NoError(t, resp.Body.Close())
	assert.Error(t, reqCtx.Err(), "closing the body releases the timeout")
}

func TestDoKeepsCallerDeadline(t *testing.T) {
	t.Parallel()

	c, mock := newMockedClient(t, Config{Timeout: time.Hour})
	mock.RegisterResponder(http.MethodGet, serviceURL, func(req *http.Request) (*http.Response, error) {
		deadline, ok := req.Context().Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Second), deadline, time.Second)
		return httpmock.NewStringResponse(http.StatusOK, ""), nil
	})

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	resp, err := c.Get(ctx, serviceURL, "")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
}

func TestResponseHook(t *testing.T) {
	t.Parallel()

	c, mock := newMockedClient(t, Config{UserAgent: "test-agent"})
	mock.RegisterResponder(http.MethodGet, serviceURL, httpmock.NewStringResponder(http.StatusNotFound, ""))

	var calls atomic.Int32
	c.SetResponseHook(func(req *http.Request, resp *http.Response, elapsed time.Duration, err error) {
		calls.Add(1)
		assert.Equal(t, "test-agent", req.Header.Get("User-Agent"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.GreaterOrEqual(t, elapsed, time.Duration(0))
	})

	resp, err := c.Get(t.Context(), serviceURL, "")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoReportsTransportErrors(t *testing.T) {
	t.Parallel()

	c, _ := newMockedClient(t, Config{})
	var hookErr error
	c.SetResponseHook(func(_ *http.Request, _ *http.Response, _ time.Duration, err error) {
		hookErr = err
	})

	_, err := c.Get(t.Context(), serviceURL, "")
	require.Error(t, err)
	assert.Error(t, hookErr)

	_, err = c.Do(t.Context(), nil)
	assert.Error(t, err)
}
