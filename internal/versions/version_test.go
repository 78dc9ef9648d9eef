package versions

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionInfoWithValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		version           string
		commit            string
		buildDate         string
		expectedVersion   string
		expectedBuildDate string
	}{
		{
			name:              "release build keeps its version",
			version:           "v1.4.0",
			commit:            "0123456789abcdef",
			buildDate:         "2026-03-01T10:00:00Z",
			expectedVersion:   "v1.4.0",
			expectedBuildDate: "2026-03-01 10:00:00 UTC",
		},
		{
			name:              "dev build is named after the short commit",
			version:           "dev",
			commit:            "0123456789abcdef",
			buildDate:         "not-a-date",
			expectedVersion:   "build-01234567",
			expectedBuildDate: "not-a-date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			info := getVersionInfoWithValues(tt.version, tt.commit, tt.buildDate)
			assert.Equal(t, tt.expectedVersion, info.Version)
			assert.Equal(t, tt.commit, info.Commit)
			assert.Equal(t, tt.expectedBuildDate, info.BuildDate)
			assert.Equal(t, runtime.Version(), info.GoVersion)
			assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
		})
	}
}

func TestUserAgent(t *testing.T) {
	t.Parallel()

	assert.True(t, strings.HasPrefix(UserAgent(), "bo-dashboard/"))
}
