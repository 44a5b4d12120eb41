// Package translate maps between the OpenAI-compatible chat schema spoken
// by clients and the question/answer schema spoken by the backend.
package translate

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cmdline-assistant/clad/internal/domain"
)

// NewResponseID returns a fresh response identifier. No two answers ever
// share an id.
func NewResponseID() string {
	return "chatcmpl-" + uuid.NewString()
}

// ToBackendQuery selects the most recent user message as the question and
// folds in the system context. It fails with domain.ErrNoUserMessage when
// the request carries no user message, before any backend call is made.
// Tool and name fields on messages are ignored, never rejected.
func ToBackendQuery(req domain.ChatRequest, qctx domain.QueryContext) (domain.BackendQuery, error) {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return domain.BackendQuery{
				Question: req.Messages[i].Content,
				Context:  qctx,
			}, nil
		}
	}
	return domain.BackendQuery{}, domain.ErrNoUserMessage
}

// FromBackendAnswer builds the non-streaming client response. The backend
// reports no token counts, so usage is estimated from whitespace-delimited
// word counts and flagged as such in the gateway metadata.
func FromBackendAnswer(answer domain.BackendAnswer, question, model, responseID string) domain.ChatResponse {
	prompt := len(strings.Fields(question))
	completion := len(strings.Fields(answer.Text))

	return domain.ChatResponse{
		ID:      responseID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []domain.Choice{
			{
				Index:        0,
				Message:      &domain.Message{Role: "assistant", Content: answer.Text},
				FinishReason: "stop",
			},
		},
		Usage: domain.Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
		Gateway: &domain.Gateway{UsageEstimated: true},
	}
}
