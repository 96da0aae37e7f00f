// Package assistant 呼叫生成式文字服務產生 AI 回覆，失敗時回傳固定的備用句子。
package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrGenerationFailed 表示生成服務沒有給出可用的文字
var ErrGenerationFailed = errors.New("reply generation failed")

// Role 對話中一輪發言的角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn 送給生成服務的一輪對話
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Generator 遠端生成服務
type Generator interface {
	Generate(ctx context.Context, turns []Turn) (string, error)
}

// FallbackReplies 生成失敗時隨機挑選其中一句
var FallbackReplies = []string{
	"I'm sorry, I didn't understand that.",
	"Could you please rephrase that?",
	"I'm having trouble processing your request right now.",
	"Let's talk about something else.",
	"That's interesting! Tell me more.",
}

// Reply 是一次生成的結果，Fallback 為 true 表示使用了備用句子
type Reply struct {
	Text     string
	Fallback bool
}

type Config struct {
	Timeout      time.Duration
	MaxFailures  uint32
	BreakerReset time.Duration
}

type Assistant struct {
	generator Generator
	breaker   *gobreaker.CircuitBreaker
	timeout   time.Duration
	log       *zap.Logger
}

// New generator 為 nil 時永遠回傳備用句子
func New(generator Generator, cfg Config, log *zap.Logger) *Assistant {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "assistant",
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

	return &Assistant{
		generator: generator,
		breaker:   breaker,
		timeout:   cfg.Timeout,
		log:       log,
	}
}

// Reply 不會失敗
func (a *Assistant) Reply(ctx context.Context, turns []Turn) Reply {
	text, err := a.generate(ctx, turns)
	if err != nil {
		a.log.Warn("reply generation failed, using canned reply", zap.Error(err))
		return Reply{Text: lo.Sample(FallbackReplies), Fallback: true}
	}
	return Reply{Text: text}
}

func (a *Assistant) generate(ctx context.Context, turns []Turn) (string, error) {
	if a.generator == nil {
		return "", ErrGenerationFailed
	}

	out, err := a.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := a.withTimeout(ctx)
		defer cancel()

		text, err := a.generator.Generate(callCtx, turns)
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return "", errors.Join(ErrGenerationFailed, errors.New("empty completion"))
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (a *Assistant) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}
