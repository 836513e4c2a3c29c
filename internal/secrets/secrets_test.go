package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/seisnet-go/internal/errors"
)

func TestExpand(t *testing.T) {
	t.Setenv("SEISNET_TEST_PASSWORD", "hunter2")

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "empty", in: "", want: ""},
		{name: "literal", in: "plain", want: "plain"},
		{name: "variable", in: "${SEISNET_TEST_PASSWORD}", want: "hunter2"},
		{name: "embedded", in: "pre-${SEISNET_TEST_PASSWORD}-post", want: "pre-hunter2-post"},
		{name: "fallback", in: "${SEISNET_TEST_UNSET:-default}", want: "default"},
		{name: "empty fallback", in: "${SEISNET_TEST_UNSET:-}", want: ""},
		{name: "missing", in: "${SEISNET_TEST_UNSET}", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsConfigError(err))
				assert.Contains(t, err.Error(), "SEISNET_TEST_UNSET")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func writeSecret(t *testing.T, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
	require.NoError(t, os.Chmod(path, mode))
	return path
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	got, err := ReadFile(writeSecret(t, "s3cret\n", 0o600))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	_, err = ReadFile(writeSecret(t, "\n", 0o600))
	assert.ErrorContains(t, err, "empty")

	_, err = ReadFile(writeSecret(t, "s3cret", 0o666))
	assert.ErrorContains(t, err, "writable")

	_, err = ReadFile(t.TempDir())
	assert.ErrorContains(t, err, "regular file")

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestResolvePrefersFile(t *testing.T) {
	t.Setenv("SEISNET_TEST_TOKEN", "from-env")

	got, err := Resolve(writeSecret(t, "from-file", 0o400), "${SEISNET_TEST_TOKEN}")
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	got, err = Resolve("", "${SEISNET_TEST_TOKEN}")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)
}
