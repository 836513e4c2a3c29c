// Package secrets resolves credentials from the configuration: literal
// values, ${VAR} references to the environment, or secret files such as
// those mounted by Docker or Kubernetes. Secret values are never logged.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/seisnet-go/internal/errors"
)

const (
	componentName = "secrets"

	maxSecretFileSize = 64 << 10
)

func secretError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component(componentName).
		Category(errors.CategoryConfiguration).
		Build()
}

// Expand replaces ${VAR} and ${VAR:-fallback} references in s with values
// from the environment. A referenced variable that is unset and has no
// fallback is an error.
func Expand(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(ref string) string {
		name, fallback, hasFallback := strings.Cut(ref, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})
	if len(missing) > 0 {
		return "", secretError("missing environment variable(s): %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}

// ReadFile returns the content of the secret file at path without trailing
// newlines. Files writable by group or others, larger than 64 KiB, or empty
// are rejected.
func ReadFile(path string) (string, error) {
	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	if err != nil {
		return "", errors.FileError(err, clean, 0)
	}
	switch {
	case !info.Mode().IsRegular():
		return "", secretError("secret %s is not a regular file", clean)
	case info.Size() > maxSecretFileSize:
		return "", secretError("secret file %s exceeds %d bytes", clean, maxSecretFileSize)
	case info.Mode().Perm()&0o022 != 0:
		return "", secretError("secret file %s is writable by group or others (mode %04o)", clean, info.Mode().Perm())
	}

	data, err := os.ReadFile(clean) //nolint:gosec // G304: path is the configured secret file
	if err != nil {
		return "", errors.FileError(err, clean, info.Size())
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", secretError("secret file %s is empty", clean)
	}
	return secret, nil
}

// Resolve returns the secret from file when set, otherwise value with
// environment references expanded.
func Resolve(file, value string) (string, error) {
	if file != "" {
		return ReadFile(file)
	}
	return Expand(value)
}
