package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderSetsCategoryAndContext(t *testing.T) {
	t.Parallel()

	ee := Newf("waveform %s has %d samples", "T1", 10).
		Component("cluster").
		Category(CategoryData).
		Context("station", "UU.CTU").
		Build()

	assert.Equal(t, "waveform T1 has 10 samples", ee.Error())
	assert.Equal(t, "cluster", ee.GetComponent())
	assert.Equal(t, CategoryData, ee.Category)
	assert.Equal(t, "UU.CTU", ee.GetContext()["station"])
	assert.False(t, ee.GetTimestamp().IsZero())
}

func TestTaxonomyHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		config    bool
		data      bool
		algorithm bool
	}{
		{name: "config", err: NewConfigError("conf", "threshold %v outside [0,1]", 1.5), config: true},
		{name: "data", err: NewDataError("scanner", "sample rate mismatch"), data: true},
		{name: "algorithm", err: NewAlgorithmError("subspace", "rank deficient"), algorithm: true},
		{name: "wrapped data", err: fmt.Errorf("station UU.CTU: %w", NewDataError("cluster", "length mismatch")), data: true},
		{name: "plain", err: fmt.Errorf("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.config, IsConfigError(tt.err))
			assert.Equal(t, tt.data, IsDataError(tt.err))
			assert.Equal(t, tt.algorithm, IsAlgorithmError(tt.err))
		})
	}
}

func TestCategoryDetection(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CategoryCancellation, New(context.Canceled).Build().Category)
	assert.Equal(t, CategoryTimeout, New(fmt.Errorf("scan: %w", context.DeadlineExceeded)).Build().Category)
	assert.Equal(t, CategoryValidation, New(fmt.Errorf("invalid stride")).Build().Category)
	assert.Equal(t, CategoryGeneric, New(fmt.Errorf("something odd")).Build().Category)
}

func TestEnhancedErrorIsMatchesCategory(t *testing.T) {
	t.Parallel()

	err := NewDataError("scanner", "gap fraction too high")
	require.Error(t, err)

	assert.True(t, Is(err, &EnhancedError{Category: CategoryData}))
	assert.False(t, Is(err, &EnhancedError{Category: CategoryAlgorithm}))
	assert.Equal(t, CategoryData, CategoryOf(fmt.Errorf("wrap: %w", err)))
}

func TestComponentDetectionFallsBackToUnknown(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("test error")).Build()
	assert.NotEmpty(t, ee.GetComponent())
}

func TestFileContext(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("open failed")).FileContext("/data/UU.CTU.HHZ/20240101T000000Z.wav", 4096).Build()
	ctx := ee.GetContext()
	assert.Equal(t, "wav", ctx["file_extension"])
	assert.Equal(t, "small", ctx["file_size_category"])
}

func TestLookupComponent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		funcName string
		want     string
	}{
		{"github.com/tphakala/seisnet-go/internal/cluster.Build", "cluster"},
		{"github.com/tphakala/seisnet-go/internal/scanner.(*Scanner).Scan", "scanner"},
		{"github.com/tphakala/seisnet-go/internal/observability/metrics.(*MQTTMetrics).Record", "metrics"},
		{"github.com/tphakala/seisnet-go/internal/secrets.Expand", "configuration"},
		{"github.com/tphakala/seisnet-go/internal/clusterx.Build", ComponentUnknown},
		{"main.main", ComponentUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lookupComponent(tt.funcName), tt.funcName)
	}
}
