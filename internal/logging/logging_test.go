package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"voxstream/internal/config"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		cfg  config.LoggingConfig
		want zapcore.Level
	}{
		{config.LoggingConfig{Level: "debug"}, zapcore.DebugLevel},
		{config.LoggingConfig{Level: "warn", Format: "json"}, zapcore.WarnLevel},
		{config.LoggingConfig{Level: "chatty"}, zapcore.InfoLevel},
		{config.LoggingConfig{}, zapcore.InfoLevel},
	}
	for _, tt := range tests {
		log, err := New(tt.cfg)
		if err != nil {
			t.Fatalf("New(%+v): %v", tt.cfg, err)
		}
		if got := log.Level(); got != tt.want {
			t.Fatalf("New(%+v).Level: got %v, want %v", tt.cfg, got, tt.want)
		}
	}
}
