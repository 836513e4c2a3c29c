package conf

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultSettings(t *testing.T) *Settings {
	t.Helper()
	settings, err := LoadFrom(viper.New(), filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	return settings
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Settings) {}},
		{name: "unknown provider", mutate: func(s *Settings) { s.Provider.Type = "ftp" }, wantErr: "unknown provider"},
		{name: "network without url", mutate: func(s *Settings) { s.Provider.Type = ProviderNetwork }, wantErr: "base url"},
		{name: "network provider", mutate: func(s *Settings) {
			s.Provider.Type = ProviderNetwork
			s.Provider.Network.BaseURL = "https://waveforms.example.org"
		}},
		{name: "pre-event longer than template", mutate: func(s *Settings) { s.Templates.PreEvent = time.Minute }, wantErr: "pre-event"},
		{name: "unknown rank mode", mutate: func(s *Settings) { s.Subspace.Rank.Mode = "auto" }, wantErr: "rank mode"},
		{name: "far without noise", mutate: func(s *Settings) { s.Subspace.Calibration.NoiseWindows = 0 }, wantErr: "noise windows"},
		{name: "reversed scan span", mutate: func(s *Settings) {
			s.Scan.Start = "2024-03-02T00:00:00Z"
			s.Scan.End = "2024-03-01T00:00:00Z"
		}, wantErr: "must be after"},
		{name: "bad scan start", mutate: func(s *Settings) { s.Scan.Start = "yesterday" }, wantErr: "invalid scan start"},
		{name: "no detectors", mutate: func(s *Settings) {
			s.Scan.UseSubspaces = false
			s.Subspace.UseSingles = false
		}, wantErr: "at least one"},
		{name: "negative buffer", mutate: func(s *Settings) { s.Associate.SubspaceBuffer = -time.Second }, wantErr: "subspace buffer"},
		{name: "two databases", mutate: func(s *Settings) {
			s.Output.MySQL.Enabled = true
			s.Output.MySQL.Database = "seisnet"
		}, wantErr: "only one"},
		{name: "unknown export format", mutate: func(s *Settings) {
			s.Output.Export.Enabled = true
			s.Output.Export.Format = "xml"
		}, wantErr: "export format"},
		{name: "mqtt qos", mutate: func(s *Settings) {
			s.MQTT.Enabled = true
			s.MQTT.QoS = 3
		}, wantErr: "qos"},
		{name: "bad log level", mutate: func(s *Settings) { s.Logging.DefaultLevel = "loud" }, wantErr: "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			settings := defaultSettings(t)
			tt.mutate(settings)
			err := ValidateSettings(settings)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStageConfigsMatchSettings(t *testing.T) {
	t.Parallel()

	s := defaultSettings(t)
	s.Associate.FalsePositive = FalsePositiveSettings{Enabled: true, MinConfidence: 0.3}

	assert.Equal(t, s.Cluster.Threshold, s.ClusterConfig().Threshold)
	assert.Equal(t, s.Subspace.Calibration.HistogramBins, s.SubspaceConfig().Calibration.HistogramBins)
	assert.Equal(t, s.Scan.Stride, s.ScannerConfig().Stride)

	ac := s.AssociateConfig()
	assert.Equal(t, s.Associate.RequiredStations, ac.RequiredStations)
	assert.True(t, ac.FalsePositive.Enabled)
	assert.InDelta(t, 0.3, ac.FalsePositive.MinConfidence, 0)
}
