// conf/validate.go

package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/seisnet-go/internal/associate"
	"github.com/tphakala/seisnet-go/internal/cluster"
	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/scanner"
	"github.com/tphakala/seisnet-go/internal/subspace"
)

// Provider types.
const (
	ProviderLocal   = "local"
	ProviderNetwork = "network"
)

// Export formats.
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct. Every stage config
// is built and validated here so problems surface before any computation.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}
	check := func(err error) {
		if err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	check(validateLogging(settings))
	check(validateTemplates(&settings.Templates))
	check(validateProvider(&settings.Provider))
	check(settings.ClusterConfig().Validate())
	check(settings.SubspaceConfig().Validate())
	check(validateNoise(settings))
	check(settings.ScannerConfig().Validate())
	check(validateScan(settings))
	check(settings.AssociateConfig().Validate())
	check(validateOutput(&settings.Output))
	check(validateMQTT(&settings.MQTT))

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// ClusterConfig builds the clustering configuration.
func (s *Settings) ClusterConfig() cluster.Config {
	return cluster.Config{
		Threshold: s.Cluster.Threshold,
		MaxLag:    s.Cluster.MaxLag,
	}
}

// SubspaceConfig builds the basis construction configuration.
func (s *Settings) SubspaceConfig() subspace.Config {
	return subspace.Config{
		Normalize: s.Subspace.Normalize,
		Rank: subspace.RankPolicy{
			Mode:           subspace.RankMode(s.Subspace.Rank.Mode),
			Count:          s.Subspace.Rank.Count,
			EnergyFraction: s.Subspace.Rank.EnergyFraction,
		},
		Validation: subspace.ValidationConfig{
			Enabled:       s.Subspace.Validation.Enabled,
			MinSimilarity: s.Subspace.Validation.MinSimilarity,
		},
		Calibration: subspace.CalibrationConfig{
			Mode:           subspace.CalibrationMode(s.Subspace.Calibration.Mode),
			Threshold:      s.Subspace.Calibration.Threshold,
			FalseAlarmRate: s.Subspace.Calibration.FalseAlarmRate,
			Distribution:   subspace.Distribution(s.Subspace.Calibration.Distribution),
			HistogramBins:  s.Subspace.Calibration.HistogramBins,
		},
	}
}

// ScannerConfig builds the scanning configuration.
func (s *Settings) ScannerConfig() scanner.Config {
	return scanner.Config{
		Stride:             s.Scan.Stride,
		MinSeparation:      s.Scan.MinSeparation,
		GapPolicy:          scanner.GapPolicy(s.Scan.GapPolicy),
		GapTolerance:       s.Scan.GapTolerance,
		EstimateMagnitudes: s.Scan.EstimateMagnitudes,
		Histogram:          s.Scan.Histogram,
		HistogramBins:      s.Scan.HistogramBins,
	}
}

// AssociateConfig builds the association configuration.
func (s *Settings) AssociateConfig() associate.Config {
	return associate.Config{
		SubspaceBuffer:     s.Associate.SubspaceBuffer,
		SingletonBuffer:    s.Associate.SingletonBuffer,
		RequiredStations:   s.Associate.RequiredStations,
		VerificationBuffer: s.Associate.VerificationBuffer,
		ReduceDuplicates:   s.Associate.ReduceDuplicates,
		FalsePositive: associate.FalsePositiveFilter{
			Enabled:       s.Associate.FalsePositive.Enabled,
			MinConfidence: s.Associate.FalsePositive.MinConfidence,
		},
	}
}

// ScanRange returns the configured scan span. Unset bounds are zero.
func (s *Settings) ScanRange() (start, end time.Time, err error) {
	return parseRange("scan", s.Scan.Start, s.Scan.End)
}

// NoiseRange returns the span noise windows are sampled from. It defaults
// to the scan span.
func (s *Settings) NoiseRange() (start, end time.Time, err error) {
	c := s.Subspace.Calibration
	if c.NoiseStart == "" && c.NoiseEnd == "" {
		return s.ScanRange()
	}
	return parseRange("noise", c.NoiseStart, c.NoiseEnd)
}

func parseRange(name, from, to string) (start, end time.Time, err error) {
	if start, err = ParseTime(from); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid %s start %q: %w", name, from, err)
	}
	if end, err = ParseTime(to); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid %s end %q: %w", name, to, err)
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%s end %s must be after start %s", name, to, from)
	}
	return start, end, nil
}

func validateLogging(s *Settings) error {
	levels := []string{s.Logging.DefaultLevel}
	if s.Logging.Console != nil {
		levels = append(levels, s.Logging.Console.Level)
	}
	if s.Logging.FileOutput != nil {
		levels = append(levels, s.Logging.FileOutput.Level)
		if s.Logging.FileOutput.Enabled && s.Logging.FileOutput.Path == "" {
			return fmt.Errorf("logging file output is enabled but no path is set")
		}
	}
	for _, level := range levels {
		if level != "" && validateEnvLogLevel(level) != nil {
			return fmt.Errorf("invalid log level %q", level)
		}
	}
	return nil
}

func validateTemplates(t *TemplateSettings) error {
	if t.Duration <= 0 {
		return fmt.Errorf("template duration %v must be positive", t.Duration)
	}
	if t.PreEvent < 0 || t.PreEvent >= t.Duration {
		return fmt.Errorf("template pre-event %v must be within [0, %v)", t.PreEvent, t.Duration)
	}
	return nil
}

func validateProvider(p *ProviderSettings) error {
	switch p.Type {
	case ProviderLocal:
		if p.Local.Root == "" {
			return fmt.Errorf("local provider requires a root directory")
		}
		if p.Local.CacheTTL < 0 {
			return fmt.Errorf("provider cache ttl %v must not be negative", p.Local.CacheTTL)
		}
	case ProviderNetwork:
		if err := validateEnvURL(p.Network.BaseURL); err != nil {
			return fmt.Errorf("invalid provider base url %q: %w", p.Network.BaseURL, err)
		}
		if p.Network.Timeout <= 0 {
			return fmt.Errorf("provider timeout %v must be positive", p.Network.Timeout)
		}
		if p.Network.RateLimit < 0 || (p.Network.RateLimit > 0 && p.Network.Burst < 1) {
			return fmt.Errorf("provider rate limit %v with burst %d is invalid", p.Network.RateLimit, p.Network.Burst)
		}
	default:
		return fmt.Errorf("unknown provider type %q", p.Type)
	}
	return nil
}

func validateNoise(s *Settings) error {
	c := s.Subspace.Calibration
	if c.NoiseWindows < 0 {
		return fmt.Errorf("noise windows %d must not be negative", c.NoiseWindows)
	}
	if c.Mode == string(subspace.CalibrationFAR) && c.NoiseWindows == 0 {
		return fmt.Errorf("far calibration requires noise windows")
	}
	_, _, err := s.NoiseRange()
	return err
}

func validateScan(s *Settings) error {
	if _, _, err := s.ScanRange(); err != nil {
		return err
	}
	if s.Scan.Chunk <= 0 {
		return fmt.Errorf("scan chunk %v must be positive", s.Scan.Chunk)
	}
	if s.Scan.Workers < 0 {
		return fmt.Errorf("scan workers %d must not be negative", s.Scan.Workers)
	}
	if s.Scan.TaskTimeout < 0 {
		return fmt.Errorf("scan task timeout %v must not be negative", s.Scan.TaskTimeout)
	}
	if !s.Scan.UseSubspaces && !s.Subspace.UseSingles {
		return fmt.Errorf("at least one of scan.usesubspaces and subspace.usesingles must be enabled")
	}
	return nil
}

func validateOutput(o *OutputSettings) error {
	if o.SQLite.Enabled && o.MySQL.Enabled {
		return fmt.Errorf("only one of sqlite and mysql output can be enabled")
	}
	if o.SQLite.Enabled && o.SQLite.Path == "" {
		return fmt.Errorf("sqlite output requires a path")
	}
	if o.MySQL.Enabled && (o.MySQL.Host == "" || o.MySQL.Database == "") {
		return fmt.Errorf("mysql output requires host and database")
	}
	if o.Export.Enabled {
		switch o.Export.Format {
		case FormatTable, FormatCSV, FormatJSON, FormatYAML:
		default:
			return fmt.Errorf("unknown export format %q", o.Export.Format)
		}
	}
	return nil
}

func validateMQTT(m *MQTTSettings) error {
	if !m.Enabled {
		return nil
	}
	if m.Broker == "" {
		return fmt.Errorf("mqtt is enabled but no broker is set")
	}
	if m.Topic == "" {
		return fmt.Errorf("mqtt is enabled but no topic is set")
	}
	if m.QoS > 2 {
		return fmt.Errorf("mqtt qos %d must be 0, 1 or 2", m.QoS)
	}
	return nil
}
