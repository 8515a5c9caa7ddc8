package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func countLines(buf *bytes.Buffer) int {
	out := strings.TrimSpace(buf.String())
	if out == "" {
		return 0
	}
	return len(strings.Split(out, "\n"))
}

func TestSamplingHandler_Disabled(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewSamplingHandler(slog.NewJSONHandler(&buf, nil), SamplingConfig{}))

	for i := 0; i < 200; i++ {
		log.Warn("file format not identified")
	}

	assert.Equal(t, 200, countLines(&buf))
}

func TestSamplingHandler_Rates(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Level
		cfg   SamplingConfig
		want  int
	}{
		{
			name:  "drop all after threshold",
			level: slog.LevelInfo,
			cfg:   SamplingConfig{Enabled: true, Tick: time.Minute, Threshold: 10, Rate: 0, ErrorRate: 1},
			want:  10,
		},
		{
			name:  "keep every tenth after threshold",
			level: slog.LevelInfo,
			cfg:   SamplingConfig{Enabled: true, Tick: time.Minute, Threshold: 10, Rate: 0.1, ErrorRate: 1},
			want:  19,
		},
		{
			name:  "warnings use error rate",
			level: slog.LevelWarn,
			cfg:   SamplingConfig{Enabled: true, Tick: time.Minute, Threshold: 10, Rate: 0, ErrorRate: 1},
			want:  100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(NewSamplingHandler(slog.NewJSONHandler(&buf, nil), tt.cfg))

			for i := 0; i < 100; i++ {
				log.Log(context.Background(), tt.level, "file format not identified")
			}

			assert.Equal(t, tt.want, countLines(&buf))
		})
	}
}

func TestSamplingHandler_NeverSample(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewSamplingHandler(slog.NewJSONHandler(&buf, nil), SamplingConfig{
		Enabled:             true,
		Tick:                time.Minute,
		Threshold:           1,
		Rate:                0,
		NeverSampleMessages: []string{"issue recorded"},
	}))

	for i := 0; i < 20; i++ {
		log.Info("issue recorded", "n", i)
	}

	assert.Equal(t, 20, countLines(&buf))
}

func TestSamplingHandler_SharedStateAcrossWith(t *testing.T) {
	var buf bytes.Buffer
	var dropped atomic.Int64
	log := slog.New(NewSamplingHandler(slog.NewJSONHandler(&buf, nil), SamplingConfig{
		Enabled:   true,
		Tick:      time.Minute,
		Threshold: 5,
		Rate:      0,
		OnDropped: func(context.Context, slog.Record) { dropped.Add(1) },
	}))

	for i := 0; i < 10; i++ {
		log.With("workflow_id", i).Info("scan started")
	}

	assert.Equal(t, 5, countLines(&buf))
	assert.Equal(t, int64(5), dropped.Load())
}

func TestSamplingHandler_OnDroppedPanic(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewSamplingHandler(slog.NewJSONHandler(&buf, nil), SamplingConfig{
		Enabled:   true,
		Tick:      time.Minute,
		Threshold: 1,
		OnDropped: func(context.Context, slog.Record) { panic("boom") },
	}))

	assert.NotPanics(t, func() {
		log.Info("x")
		log.Info("x")
	})
}

func TestSanitizeAttr(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.Info("connecting", "database_dsn", "postgres://u:p@h/db", "redis_password", "p", "addr", "localhost:6379")

	out := buf.String()
	assert.NotContains(t, out, "postgres://u:p@h/db")
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, "localhost:6379")
}
