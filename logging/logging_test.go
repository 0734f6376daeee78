package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		level   string
		format  string
		enabled zapcore.Level
		quiet   zapcore.Level
		wantErr bool
	}{
		{name: "defaults", enabled: zapcore.InfoLevel, quiet: zapcore.DebugLevel},
		{name: "debug json", level: "debug", format: "json", enabled: zapcore.DebugLevel, quiet: zapcore.DebugLevel - 1},
		{name: "upper case warn", level: "WARN", format: "console", enabled: zapcore.WarnLevel, quiet: zapcore.InfoLevel},
		{name: "bad level", level: "loud", wantErr: true},
		{name: "bad format", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, err := New(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.enabled))
			assert.False(t, l.Core().Enabled(tt.quiet))
		})
	}
}

func TestMustPanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { Must("nope", "") })
	assert.NotPanics(t, func() { Must("error", "json") })
}
