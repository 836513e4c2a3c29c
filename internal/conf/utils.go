package conf

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/tphakala/seisnet-go/internal/errors"
)

// GetDefaultConfigPaths returns the directories searched for config.yaml.
// When one of them already holds a config file only that directory is
// returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	switch runtime.GOOS {
	case "windows":
		configPaths = []string{
			".",
			filepath.Join(homeDir, "AppData", "Roaming", "seisnet"),
		}
	default:
		configPaths = []string{
			".",
			filepath.Join(homeDir, ".config", "seisnet"),
			"/etc/seisnet",
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}
	return configPaths, nil
}

// FindConfigFile returns the path of the first existing config.yaml.
func FindConfigFile() (string, error) {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	for _, path := range configPaths {
		configFile := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configFile); err == nil {
			return configFile, nil
		}
	}
	return "", errors.Newf("config file not found in %v", configPaths).
		Component(componentName).
		Category(errors.CategoryNotFound).
		Build()
}

// ParseTime parses an optional RFC3339 timestamp; the empty string yields
// the zero time.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}

// moveFile copies src to dst and removes src. It is the fallback when a
// rename crosses filesystems.
func moveFile(src, dst string) error {
	srcFile, err := os.Open(src) //nolint:gosec // G304: src is a temp file created by this package
	if err != nil {
		return errors.FileError(err, src, 0)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst) //nolint:gosec // G304: dst is the configured config path
	if err != nil {
		return errors.FileError(err, dst, 0)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return errors.FileError(err, dst, 0)
	}
	if err := dstFile.Close(); err != nil {
		return errors.FileError(err, dst, 0)
	}

	return os.Remove(src)
}
