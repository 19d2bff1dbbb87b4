package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		level   zapcore.Level
		wantErr bool
	}{
		{name: "Defaults", cfg: Config{}, level: zapcore.InfoLevel},
		{name: "Debug JSON", cfg: Config{Level: "debug", Format: "json"}, level: zapcore.DebugLevel},
		{name: "Warn Console", cfg: Config{Level: "WARN", Format: "console"}, level: zapcore.WarnLevel},
		{name: "Bad Level", cfg: Config{Level: "loud"}, wantErr: true},
		{name: "Bad Format", cfg: Config{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Error(t, tt.cfg.Validate())
				return
			}

			assert.NoError(t, tt.cfg.Validate())

			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.level))
			if tt.level > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tt.level-1))
			}
		})
	}
}
