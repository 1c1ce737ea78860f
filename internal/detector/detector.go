package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/spamsentry/spamsentry/internal/adapters"
	"github.com/spamsentry/spamsentry/internal/adapters/llm"
	"github.com/spamsentry/spamsentry/internal/observability"
)

// ErrNotSent marks failures that happened before the remote call was made.
// Callers use it to decide whether a classification attempt consumed quota.
var ErrNotSent = errors.New("classification request not sent")

// IsNotSent reports whether the classification failure happened before the
// request left the process.
func IsNotSent(err error) bool {
	return errors.Is(err, ErrNotSent)
}

const (
	// Score boundaries of the classifier contract; anything the model returns
	// outside this range is clamped before comparison.
	MinScore = 0.0
	MaxScore = 10.0

	systemPrompt = "You are a spam detection assistant for a cryptocurrency trading discussion group. Respond only with JSON."

	scoringPrompt = `This is a professional crypto trading group. Members discuss trading strategies, technical analysis, take-profit/stop-loss levels and market moves.

Normal discussion includes:
- sharing trading strategies and technical analysis
- BTC/ETH price action, leverage, entries and exits
- trading experience and questions

Spam includes:
1. luring users into private contact ("DM me", "add my WhatsApp", "private signals")
2. guaranteed-profit pitches ("100%% win rate", "risk-free", "follow my trades")
3. off-topic advertising (products, services, gambling, adult content)
4. flooding, harassment and abuse

Rate the following message from 0 to 10:
- 0-3: perfectly normal discussion
- 4-6: slightly suspicious but plausibly normal
- 7: suspicious, worth attention
- 8-10: clearly spam

Message:
"""%s"""

Respond with JSON:
{"score": <number 0-10>, "reasoning": "<short explanation, max 50 words>"}`

	imagePromptSuffix = "\n\nThe message is an image; judge its visual content together with the caption above."
)

// Verdict is the strict two-field record parsed out of the model output.
type Verdict struct {
	Score     float64
	Rationale string
}

type Detector struct {
	llm     adapters.LLM
	timeout time.Duration
	logger  *log.Entry
}

func New(llmClient adapters.LLM, timeout time.Duration, logger *log.Entry) *Detector {
	llmClient.WithSystemPrompt(systemPrompt)
	llmClient.WithParameters(&llm.GenerationParameters{
		Temperature:      0.3,
		TopP:             0.9,
		MaxOutputTokens:  256,
		ResponseMIMEType: "application/json",
	})
	return &Detector{
		llm:     llmClient,
		timeout: timeout,
		logger:  logger,
	}
}

// Classify scores a text message. The returned error wraps ErrNotSent when
// the remote service was never reached.
func (d *Detector) Classify(ctx context.Context, text string) (Verdict, error) {
	if strings.TrimSpace(text) == "" {
		return Verdict{}, fmt.Errorf("%w: empty message", ErrNotSent)
	}
	return d.complete(ctx, llm.ChatCompletionMessage{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf(scoringPrompt, text),
	})
}

// ClassifyImage scores an image payload with its optional caption.
func (d *Detector) ClassifyImage(ctx context.Context, data []byte, mimeType, caption string) (Verdict, error) {
	if len(data) == 0 {
		return Verdict{}, fmt.Errorf("%w: empty image payload", ErrNotSent)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return d.complete(ctx, llm.ChatCompletionMessage{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf(scoringPrompt, caption) + imagePromptSuffix,
		Image: &llm.ImageAttachment{
			Data:     data,
			MIMEType: mimeType,
		},
	})
}

func (d *Detector) complete(ctx context.Context, message llm.ChatCompletionMessage) (Verdict, error) {
	ctx, span := otel.Tracer("detector").Start(ctx, "classify")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := observability.StartClassification()

	observability.Logger.Info("classifying message",
		zap.Int("content_length", len(message.Content)),
		zap.Bool("has_image", message.Image != nil),
	)

	resp, err := d.llm.ChatCompletion(ctx, []llm.ChatCompletionMessage{message})
	if err != nil {
		done("error")
		observability.Logger.Warn("classification failed", zap.Error(err))
		return Verdict{}, fmt.Errorf("chat completion: %w", err)
	}
	done("ok")

	if len(resp.Choices) == 0 {
		d.logger.Warn("classifier returned no choices, failing closed to zero score")
		return Verdict{Rationale: "empty response"}, nil
	}

	verdict, ok := parseVerdict(resp.Choices[0].Message.Content)
	if !ok {
		d.logger.WithField("response", resp.Choices[0].Message.Content).
			Warn("unparseable classifier response, failing closed to zero score")
		return Verdict{Rationale: "unparseable response"}, nil
	}
	observability.Logger.Info("classification completed",
		zap.Float64("score", verdict.Score),
		zap.String("rationale", verdict.Rationale),
	)
	return verdict, nil
}

// parseVerdict decodes the model output into the strict {score, reasoning}
// shape. Invalid or missing fields report !ok so the caller can fail closed
// instead of crashing message processing.
func parseVerdict(content string) (Verdict, bool) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var raw struct {
		Score     *float64 `json:"score"`
		Reasoning string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil || raw.Score == nil {
		return Verdict{}, false
	}

	return Verdict{
		Score:     ClampScore(*raw.Score),
		Rationale: raw.Reasoning,
	}, true
}

// ClampScore bounds an externally supplied score to [0,10].
func ClampScore(score float64) float64 {
	return min(max(score, MinScore), MaxScore)
}
