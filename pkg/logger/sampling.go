package logger

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// SamplingConfig configures log sampling.
type SamplingConfig struct {
	Enabled bool

	// Tick is the interval after which counters reset.
	Tick time.Duration

	// Threshold is the number of identical records logged per tick before sampling.
	Threshold uint64

	// Rate is the share of records kept after the threshold, in [0, 1].
	Rate float64

	// ErrorRate applies instead of Rate to warn and error records.
	ErrorRate float64

	// MaxCounterSize bounds the number of distinct messages tracked.
	MaxCounterSize int

	// NeverSampleMessages are message prefixes that are always logged.
	NeverSampleMessages []string

	// OnDropped is called for every dropped record. Panics are swallowed.
	OnDropped func(ctx context.Context, record slog.Record)
}

// Default values for sampling configuration.
const (
	DefaultSamplingTick           = time.Second
	DefaultSamplingThreshold      = 100
	DefaultSamplingRate           = 0.1
	DefaultSamplingErrorRate      = 1.0
	DefaultSamplingMaxCounterSize = 10000
)

// DefaultSamplingConfig returns production defaults with sampling disabled.
func DefaultSamplingConfig() SamplingConfig {
	return SamplingConfig{
		Tick:           DefaultSamplingTick,
		Threshold:      DefaultSamplingThreshold,
		Rate:           DefaultSamplingRate,
		ErrorRate:      DefaultSamplingErrorRate,
		MaxCounterSize: DefaultSamplingMaxCounterSize,
	}
}

// samplingState is shared by a handler and every handler derived from it.
type samplingState struct {
	counters  sync.Map // map[string]*atomic.Uint64
	size      atomic.Int64
	lastReset atomic.Int64
}

type samplingHandler struct {
	handler slog.Handler
	config  SamplingConfig
	state   *samplingState
}

// NewSamplingHandler wraps h so that records repeating the same level and
// message more than Threshold times per Tick are kept at Rate.
func NewSamplingHandler(h slog.Handler, cfg SamplingConfig) slog.Handler {
	if !cfg.Enabled {
		return h
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultSamplingTick
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultSamplingThreshold
	}
	if cfg.MaxCounterSize <= 0 {
		cfg.MaxCounterSize = DefaultSamplingMaxCounterSize
	}

	state := &samplingState{}
	state.lastReset.Store(time.Now().UnixNano())
	return &samplingHandler{handler: h, config: cfg, state: state}
}

func (h *samplingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *samplingHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, prefix := range h.config.NeverSampleMessages {
		if strings.HasPrefix(r.Message, prefix) {
			return h.handler.Handle(ctx, r)
		}
	}

	h.maybeReset()

	if h.state.size.Load() >= int64(h.config.MaxCounterSize) {
		return h.handler.Handle(ctx, r)
	}

	key := r.Level.String() + ":" + r.Message
	val, loaded := h.state.counters.LoadOrStore(key, new(atomic.Uint64))
	if !loaded {
		h.state.size.Add(1)
	}
	count := val.(*atomic.Uint64).Add(1)

	if count <= h.config.Threshold {
		return h.handler.Handle(ctx, r)
	}

	rate := h.config.Rate
	if r.Level >= slog.LevelWarn {
		rate = h.config.ErrorRate
	}
	if keep(count, rate) {
		return h.handler.Handle(ctx, r)
	}

	h.dropped(ctx, r)
	return nil
}

func (h *samplingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &samplingHandler{handler: h.handler.WithAttrs(attrs), config: h.config, state: h.state}
}

func (h *samplingHandler) WithGroup(name string) slog.Handler {
	return &samplingHandler{handler: h.handler.WithGroup(name), config: h.config, state: h.state}
}

func (h *samplingHandler) dropped(ctx context.Context, r slog.Record) {
	if h.config.OnDropped == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	h.config.OnDropped(ctx, r)
}

func (h *samplingHandler) maybeReset() {
	now := time.Now().UnixNano()
	last := h.state.lastReset.Load()
	if now-last < h.config.Tick.Nanoseconds() {
		return
	}
	if h.state.lastReset.CompareAndSwap(last, now) {
		h.state.counters.Range(func(key, _ any) bool {
			h.state.counters.Delete(key)
			return true
		})
		h.state.size.Store(0)
	}
}

// keep samples deterministically on the running count.
func keep(count uint64, rate float64) bool {
	if rate >= 1.0 {
		return true
	}
	if rate <= 0.0 {
		return false
	}
	interval := uint64(1.0 / rate)
	return count%interval == 0
}
