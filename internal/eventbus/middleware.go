package eventbus

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warlockgg/warlock-server/internal/events"
	"github.com/warlockgg/warlock-server/internal/observability"
)

// InstallStandard wires the production chain in order: error handling
// outermost, then performance, rate limiting, validation, logging.
func InstallStandard(b *Bus, cfg ChainConfig, logger *zap.Logger, m *observability.Metrics) {
	b.AddMiddleware(ErrorHandling(logger, m))
	b.AddMiddleware(Performance(cfg.SlowThreshold, logger, m))
	b.AddMiddleware(RateLimiting(RateLimitConfig{
		Window: cfg.RateWindow,
		Max:    cfg.RateMax,
		Exempt: cfg.RateExempt,
	}, logger, m))
	b.AddMiddleware(Validation(cfg.StrictValidation, logger, m))
	b.AddMiddleware(Logging(LogConfig{IncludePayload: cfg.LogPayloads}, logger))
}

// ChainConfig collects the knobs for the standard chain.
type ChainConfig struct {
	SlowThreshold    time.Duration
	RateWindow       time.Duration
	RateMax          int
	RateExempt       []events.Type
	StrictValidation bool
	LogPayloads      bool
}

// ErrorHandling catches panics from downstream middleware and handlers,
// logs them and cancels the emit. It never cancels a healthy event. As
// the outermost link it also counts every emit entering the chain.
func ErrorHandling(logger *zap.Logger, m *observability.Metrics) Middleware {
	return func(e Event, next func(Event) bool) (ok bool) {
		if m != nil {
			m.EventsEmitted.WithLabelValues(string(e.Type)).Inc()
		}
		defer func() {
			if recovered := recover(); recovered != nil {
				if m != nil {
					m.ErrorsHandled.Inc()
				}
				logger.Error("emit failed",
					zap.String("game_code", e.GameCode),
					zap.String("event_type", string(e.Type)),
					zap.Any("panic", recovered))
				ok = false
			}
		}()
		return next(e)
	}
}

// Performance times the rest of the emit and warns past the threshold.
func Performance(threshold time.Duration, logger *zap.Logger, m *observability.Metrics) Middleware {
	if threshold <= 0 {
		threshold = 100 * time.Millisecond
	}
	return func(e Event, next func(Event) bool) bool {
		start := time.Now()
		ok := next(e)
		if elapsed := time.Since(start); elapsed > threshold {
			if m != nil {
				m.EventsSlow.Inc()
			}
			logger.Warn("slow event",
				zap.String("game_code", e.GameCode),
				zap.String("event_type", string(e.Type)),
				zap.Duration("elapsed", elapsed),
				zap.Duration("threshold", threshold))
		}
		return ok
	}
}

// RateLimitConfig tunes the per-room fixed window.
type RateLimitConfig struct {
	Window time.Duration
	Max    int
	Exempt []events.Type
}

// RateLimiting caps non-exempt events per room over a fixed window.
// The window resets when it elapses; within it, events past Max are
// cancelled. The counter is per bus since each room has its own chain.
func RateLimiting(cfg RateLimitConfig, logger *zap.Logger, m *observability.Metrics) Middleware {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Max <= 0 {
		cfg.Max = 100
	}
	exempt := make(map[events.Type]bool, len(cfg.Exempt))
	for _, t := range cfg.Exempt {
		exempt[t] = true
	}

	var mu sync.Mutex
	var windowStart time.Time
	var count int

	return func(e Event, next func(Event) bool) bool {
		if exempt[e.Type] {
			return next(e)
		}

		mu.Lock()
		now := time.Now()
		if now.Sub(windowStart) >= cfg.Window {
			windowStart = now
			count = 0
		}
		count++
		over := count > cfg.Max
		mu.Unlock()

		if over {
			if m != nil {
				m.RateLimitDrops.WithLabelValues(string(e.Type)).Inc()
				m.ErrorsHandled.Inc()
			}
			logger.Warn("event rate limited",
				zap.String("game_code", e.GameCode),
				zap.String("event_type", string(e.Type)))
			return false
		}
		return next(e)
	}
}

// Validation checks the event type against the registry and the payload
// against its schema. Strict mode cancels invalid events; otherwise they
// pass with a warning.
func Validation(strict bool, logger *zap.Logger, m *observability.Metrics) Middleware {
	return func(e Event, next func(Event) bool) bool {
		if err := events.Validate(e.Type, e.Payload); err != nil {
			logger.Warn("invalid event",
				zap.String("game_code", e.GameCode),
				zap.String("event_type", string(e.Type)),
				zap.Bool("strict", strict),
				zap.Error(err))
			if strict {
				if m != nil {
					m.EventsCancelled.WithLabelValues("validation").Inc()
				}
				return false
			}
		}
		return next(e)
	}
}

// LogConfig tunes the logging middleware.
type LogConfig struct {
	IncludePayload bool
	Exclude        []events.Type
}

// Logging records every event at debug level. High-frequency types can be
// excluded; payloads are logged only when asked for.
func Logging(cfg LogConfig, logger *zap.Logger) Middleware {
	exclude := make(map[events.Type]bool, len(cfg.Exclude))
	for _, t := range cfg.Exclude {
		exclude[t] = true
	}
	return func(e Event, next func(Event) bool) bool {
		if !exclude[e.Type] {
			fields := []zap.Field{
				zap.String("game_code", e.GameCode),
				zap.String("event_type", string(e.Type)),
				zap.String("event_id", e.ID),
			}
			if cfg.IncludePayload {
				fields = append(fields, zap.Any("payload", e.Payload))
			}
			logger.Debug("event", fields...)
		}
		return next(e)
	}
}
