// env.go - environment variable overrides
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/seisnet-go/internal/errors"
)

// envBinding maps an environment variable to a config key.
type envBinding struct {
	ConfigKey string             // viper config key
	EnvVar    string             // environment variable name
	Validate  func(string) error // optional validation of the raw value
}

// getEnvBindings returns every supported environment override.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "SEISNET_DEBUG", validateEnvBool},
		{"logging.default_level", "SEISNET_LOG_LEVEL", validateEnvLogLevel},

		{"provider.type", "SEISNET_PROVIDER", validateEnvProvider},
		{"provider.local.root", "SEISNET_DATA_ROOT", nil},
		{"provider.network.baseurl", "SEISNET_PROVIDER_URL", validateEnvURL},

		{"cluster.threshold", "SEISNET_CLUSTER_THRESHOLD", validateEnvUnit},
		{"scan.workers", "SEISNET_WORKERS", validateEnvNonNegativeInt},
		{"scan.start", "SEISNET_SCAN_START", validateEnvTime},
		{"scan.end", "SEISNET_SCAN_END", validateEnvTime},
		{"associate.requiredstations", "SEISNET_REQUIRED_STATIONS", validateEnvPositiveInt},

		{"output.sqlite.path", "SEISNET_SQLITE_PATH", nil},
		{"output.mysql.password", "SEISNET_MYSQL_PASSWORD", nil},
		{"mqtt.broker", "SEISNET_MQTT_BROKER", validateEnvURL},
		{"mqtt.password", "SEISNET_MQTT_PASSWORD", nil},
		{"server.listen", "SEISNET_LISTEN", nil},
	}
}

// bindEnvVars binds the environment overrides and validates values that
// are set.
func bindEnvVars(v *viper.Viper) error {
	var problems []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			problems = append(problems, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				problems = append(problems, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(problems) > 0 {
		return errors.Newf("environment variable issues:\n  - %s", strings.Join(problems, "\n  - ")).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

func validateEnvBool(value string) error {
	_, err := strconv.ParseBool(value)
	return err
}

func validateEnvLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "trace", "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("must be one of trace, debug, info, warn, error")
}

func validateEnvProvider(value string) error {
	switch value {
	case ProviderLocal, ProviderNetwork:
		return nil
	}
	return fmt.Errorf("must be %s or %s", ProviderLocal, ProviderNetwork)
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	return nil
}

func validateEnvUnit(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	if f < 0 || f > 1 {
		return fmt.Errorf("must be between 0 and 1")
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1")
	}
	return nil
}

func validateEnvTime(value string) error {
	_, err := time.Parse(time.RFC3339, value)
	return err
}
