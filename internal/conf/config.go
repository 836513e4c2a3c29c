// Package conf loads, validates and saves the seisnet configuration.
package conf

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/logger"
	"github.com/tphakala/seisnet-go/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

const componentName = "configuration"

// TemplateSettings describes where the template key lives and how template
// waveforms are cut around their picks.
type TemplateSettings struct {
	KeyFile  string        // path to the YAML template key
	PreEvent time.Duration // window start relative to the pick
	Duration time.Duration // template window length
}

// LocalProviderSettings configures the directory waveform provider.
type LocalProviderSettings struct {
	Root     string        // root directory, <root>/<station>.<channel>/<start>.wav|flac
	CacheTTL time.Duration // how long decoded files stay in memory
}

// NetworkProviderSettings configures the HTTP waveform provider.
type NetworkProviderSettings struct {
	BaseURL   string        // base URL of the waveform service
	Timeout   time.Duration // per-request timeout
	RateLimit float64       // requests per second, 0 disables limiting
	Burst     int           // request burst size
}

// ProviderSettings selects and configures the waveform provider.
type ProviderSettings struct {
	Type    string // local or network
	Local   LocalProviderSettings
	Network NetworkProviderSettings
}

// ClusterSettings contains template clustering settings.
type ClusterSettings struct {
	Threshold float64       // minimum waveform similarity for two templates to link
	MaxLag    time.Duration // largest alignment shift tried
}

// RankSettings is the subspace rank-selection policy.
type RankSettings struct {
	Mode           string  // fixed or energy
	Count          int     // rank in fixed mode
	EnergyFraction float64 // captured energy in energy mode
}

// SelfValidationSettings controls exclusion of poorly represented members.
type SelfValidationSettings struct {
	Enabled       bool
	MinSimilarity float64
}

// CalibrationSettings controls detection threshold calibration.
type CalibrationSettings struct {
	Mode           string  // fixed or far
	Threshold      float64 // threshold in fixed mode
	FalseAlarmRate float64 // target false alarm probability in far mode
	Distribution   string  // empirical or beta
	HistogramBins  int     // bins of the stored noise histogram, 0 disables it
	NoiseWindows   int     // noise windows sampled per station
	NoiseStart     string  // RFC3339 start of the noise sampling span
	NoiseEnd       string  // RFC3339 end of the noise sampling span
	Seed           uint64  // seed of the noise window sampler
}

// SubspaceSettings contains basis construction settings.
type SubspaceSettings struct {
	Normalize   bool // demean and normalize members before the decomposition
	UseSingles  bool // build correlation detectors for ungrouped templates
	Rank        RankSettings
	Validation  SelfValidationSettings
	Calibration CalibrationSettings
}

// ScanSettings contains continuous data scanning settings.
type ScanSettings struct {
	UseSubspaces       bool          // scan with cluster bases
	Stride             int           // samples between window starts
	MinSeparation      time.Duration // minimum time between triggers of one detector
	GapPolicy          string        // skip or zerofill
	GapTolerance       float64       // missing sample fraction tolerated per window
	EstimateMagnitudes bool          // attach relative magnitudes to triggers
	Histogram          bool          // collect statistic histograms
	HistogramBins      int
	Start              string        // RFC3339 start of the scanned span
	End                string        // RFC3339 end of the scanned span
	Chunk              time.Duration // length of data fetched per scan task
	Workers            int           // concurrent tasks, 0 uses the CPU count
	TaskTimeout        time.Duration // per task timeout, 0 disables it
}

// FalsePositiveSettings configures the confidence filter.
type FalsePositiveSettings struct {
	Enabled       bool
	MinConfidence float64
}

// AssociateSettings contains trigger association settings.
type AssociateSettings struct {
	SubspaceBuffer     time.Duration // grouping span for subspace triggers
	SingletonBuffer    time.Duration // grouping span for singleton triggers
	RequiredStations   int           // minimum distinct stations per detection
	VerificationBuffer time.Duration // max distance to a reference event
	ReferenceFile      string        // CSV or YAML list of reference event times
	ReduceDuplicates   bool          // count only the strongest trigger per station
	FalsePositive      FalsePositiveSettings
}

// SQLiteSettings configures the sqlite datastore.
type SQLiteSettings struct {
	Enabled bool   // true to enable sqlite output
	Path    string // path to sqlite database
}

// MySQLSettings configures the mysql datastore.
type MySQLSettings struct {
	Enabled      bool   // true to enable mysql output
	Username     string // username for mysql database
	Password     string // password for mysql database, ${VAR} references are expanded
	PasswordFile string // file holding the password, takes precedence over Password
	Database     string // database name for mysql database
	Host         string // host for mysql database
	Port         string // port for mysql database
}

// ExportSettings configures catalog export files.
type ExportSettings struct {
	Enabled bool
	Path    string // output directory
	Format  string // table, csv, json or yaml
}

// OutputSettings groups the output targets.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
	Export ExportSettings
}

// MQTTSettings contains settings for publishing detections over MQTT.
type MQTTSettings struct {
	Enabled      bool          // true to enable MQTT
	Broker       string        // MQTT (tcp://host:port)
	Topic        string        // MQTT topic prefix
	ClientID     string        // client id, generated when empty
	Username     string        // MQTT username
	Password     string        // MQTT password, ${VAR} references are expanded
	PasswordFile string        // file holding the password, takes precedence over Password
	QoS          byte          // publish QoS
	Retain       bool          // retain published messages
	Timeout      time.Duration // connect and publish timeout
}

// ServerSettings configures the read-only HTTP API.
type ServerSettings struct {
	Listen  string // address and port to listen on
	Metrics bool   // expose /metrics
}

// Settings contains all configuration options.
type Settings struct {
	Debug bool // true to enable debug logging

	Version string `yaml:"-"` // build version, not stored in the config file

	Logging   logger.LoggingConfig
	Templates TemplateSettings
	Provider  ProviderSettings
	Cluster   ClusterSettings
	Subspace  SubspaceSettings
	Scan      ScanSettings
	Associate AssociateSettings
	Output    OutputSettings
	MQTT      MQTTSettings
	Server    ServerSettings
}

// Load reads configuration from the global viper instance, so flags bound
// by the CLI take precedence. configFile may be empty to search the default
// locations.
func Load(configFile string) (*Settings, error) {
	return LoadFrom(viper.GetViper(), configFile)
}

// LoadFrom reads configuration into v from configFile, the environment and
// defaults, then validates it. A missing config file is created from the
// embedded default.
func LoadFrom(v *viper.Viper, configFile string) (*Settings, error) {
	setDefaultConfig(v)

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	if err := readConfig(v, configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings, viper.DecodeHook(decodeHook())); err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// decodeHook extends viper's default hooks so that unquoted timestamps, which
// the YAML decoder yields as time.Time, load into the RFC3339 string fields.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.DecodeHookFuncType(timeToStringHook),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func timeToStringHook(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	if t, ok := data.(time.Time); ok && from == reflect.TypeFor[time.Time]() {
		return t.Format(time.RFC3339Nano), nil
	}
	return data, nil
}

// resolveSecrets replaces the configured passwords with their resolved
// values.
func resolveSecrets(settings *Settings) error {
	var err error
	if settings.Output.MySQL.Password, err = secrets.Resolve(settings.Output.MySQL.PasswordFile, settings.Output.MySQL.Password); err != nil {
		return err
	}
	if settings.MQTT.Password, err = secrets.Resolve(settings.MQTT.PasswordFile, settings.MQTT.Password); err != nil {
		return err
	}
	return nil
}

// readConfig locates and reads the config file, creating it when absent.
func readConfig(v *viper.Viper, configFile string) error {
	v.SetConfigType("yaml")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return createDefaultConfig(v, configFile)
		}
	} else {
		v.SetConfigName("config")
		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		for _, path := range configPaths {
			v.AddConfigPath(path)
		}
	}

	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		configPaths, pathErr := GetDefaultConfigPaths()
		if pathErr != nil {
			return pathErr
		}
		return createDefaultConfig(v, filepath.Join(configPaths[0], "config.yaml"))
	}

	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryFileParsing).
		Context("config_file", v.ConfigFileUsed()).
		Build()
}

// createDefaultConfig writes the embedded default config to configPath and
// reads it.
func createDefaultConfig(v *viper.Viper, configPath string) error {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return errors.New(err).Component(componentName).Category(errors.CategoryFileIO).Build()
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("config_file", configPath).
			Build()
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil { //nolint:gosec // config is not secret by default
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("config_file", configPath).
			Build()
	}

	v.SetConfigFile(configPath)
	return v.ReadInConfig()
}

// SaveYAMLConfig writes settings to configPath. The file is replaced
// atomically where the filesystem allows; comments are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return errors.New(err).Component(componentName).Category(errors.CategoryFileParsing).Build()
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return errors.FileError(err, configPath, 0)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return errors.FileError(err, tempFileName, 0)
	}
	if err := tempFile.Close(); err != nil {
		return errors.FileError(err, tempFileName, 0)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		// cross-device rename, fall back to copy
		if err := moveFile(tempFileName, configPath); err != nil {
			return err
		}
	}
	return nil
}
