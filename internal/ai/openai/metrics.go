package openai

import (
	"context"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/neuralinbox/neuralinbox/internal/telemetry"
)

// aiMetrics holds lazily-initialized OTel instruments for OpenAI API calls.
var aiMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
	errs         metric.Int64Counter
}

var aiMetricsOnce sync.Once

func initAIMetrics() {
	m := telemetry.Meter("github.com/neuralinbox/neuralinbox/ai")
	aiMetrics.inputTokens, _ = m.Int64Counter("ninbox.ai.input_tokens",
		metric.WithDescription("OpenAI API input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.outputTokens, _ = m.Int64Counter("ninbox.ai.output_tokens",
		metric.WithDescription("OpenAI API output tokens generated"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.duration, _ = m.Float64Histogram("ninbox.ai.request.duration",
		metric.WithDescription("OpenAI API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	aiMetrics.errs, _ = m.Int64Counter("ninbox.ai.errors",
		metric.WithDescription("OpenAI API calls that failed after retries"),
	)
}

func recordCall(ctx context.Context, operation, model string, elapsed time.Duration, err error) {
	aiMetricsOnce.Do(initAIMetrics)
	attrs := metric.WithAttributes(
		attribute.String("ninbox.ai.operation", operation),
		attribute.String("ninbox.ai.model", model),
	)
	if aiMetrics.duration != nil {
		aiMetrics.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
	if err != nil && aiMetrics.errs != nil {
		aiMetrics.errs.Add(ctx, 1, attrs)
	}
}

func recordUsage(ctx context.Context, model string, usage openai.Usage) {
	aiMetricsOnce.Do(initAIMetrics)
	attrs := metric.WithAttributes(attribute.String("ninbox.ai.model", model))
	if aiMetrics.inputTokens != nil {
		aiMetrics.inputTokens.Add(ctx, int64(usage.PromptTokens), attrs)
	}
	if aiMetrics.outputTokens != nil {
		aiMetrics.outputTokens.Add(ctx, int64(usage.CompletionTokens), attrs)
	}
}
