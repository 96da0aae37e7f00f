package moderation

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"chat_web/internal/metrics"
)

// GatewayConfig 控制遠端呼叫的超時與熔斷
type GatewayConfig struct {
	Timeout      time.Duration
	MaxFailures  uint32
	BreakerReset time.Duration
}

// Gateway 審核文字，遠端失敗時退回本地檢查，永遠不回傳錯誤
type Gateway struct {
	provider Provider
	fallback *Fallback
	breaker  *gobreaker.CircuitBreaker
	timeout  time.Duration
	log      *zap.Logger
}

// NewGateway provider 為 nil 時只使用 fallback
func NewGateway(provider Provider, fallback *Fallback, cfg GatewayConfig, log *zap.Logger) *Gateway {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "moderation",
		MaxRequests: 1,
		Timeout:     cfg.BreakerReset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &Gateway{
		provider: provider,
		fallback: fallback,
		breaker:  breaker,
		timeout:  cfg.Timeout,
		log:      log,
	}
}

func (g *Gateway) Moderate(ctx context.Context, text string) Verdict {
	if g.provider == nil {
		return g.useFallback(text)
	}

	result, err := g.callProvider(ctx, text)
	if err != nil {
		g.log.Warn("moderation provider unavailable, using fallback", zap.Error(err))
		return g.useFallback(text)
	}

	verdict := Verdict{
		Flagged:        result.Flagged,
		Categories:     result.Categories,
		CategoryScores: result.CategoryScores,
		Reason:         flaggedReason(result.Order, result.Categories),
		Source:         SourceProvider,
	}
	metrics.ObserveVerdict(string(verdict.Source), verdict.Flagged)
	return verdict
}

func (g *Gateway) useFallback(text string) Verdict {
	verdict := g.fallback.Check(text)
	metrics.ObserveVerdict(string(verdict.Source), verdict.Flagged)
	return verdict
}

func (g *Gateway) callProvider(ctx context.Context, text string) (ProviderResult, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := g.withTimeout(ctx)
		defer cancel()
		return g.provider.Moderate(callCtx, text)
	})
	if err != nil {
		return ProviderResult{}, err
	}
	return out.(ProviderResult), nil
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}
