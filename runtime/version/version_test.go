package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func withVersionVars(t *testing.T, v, c, date string) {
	t.Helper()
	origVersion, origCommit, origDate := version, gitCommit, buildDate
	t.Cleanup(func() {
		version, gitCommit, buildDate = origVersion, origCommit, origDate
	})
	version, gitCommit, buildDate = v, c, date
}

func TestGetVersion(t *testing.T) {
	assert.NotEmpty(t, GetVersion())

	withVersionVars(t, "1.0.0", "", "")
	assert.Equal(t, "1.0.0", GetVersion())
}

func TestGetVersionInfo(t *testing.T) {
	withVersionVars(t, "2.0.0", "def456", "2024-06-15")
	info := GetVersionInfo()
	assert.Contains(t, info, "barre version 2.0.0")
	assert.Contains(t, info, "commit: def456")
	assert.Contains(t, info, "built: 2024-06-15")
}

func TestGetBuildInfo(t *testing.T) {
	withVersionVars(t, "1.2.3", "abc123", "2024-01-01")
	attrs := GetBuildInfo()
	got := make(map[string]any)
	for i := 0; i+1 < len(attrs); i += 2 {
		got[attrs[i].(string)] = attrs[i+1]
	}
	assert.Equal(t, map[string]any{"version": "1.2.3", "commit": "abc123", "built": "2024-01-01"}, got)
}
