package llm

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"a":`), genai.Text(`1}`)}},
	}}}

	text, err := responseText(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, text)
}

func TestResponseText_Empty(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		msg  string
	}{
		{name: "nil", resp: nil, msg: "no candidates"},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}, msg: "no candidates"},
		{name: "no content", resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, msg: "no content"},
		{
			name: "no text parts",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{}}}},
			msg:  "no text parts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := responseText(tt.resp)
			require.ErrorIs(t, err, ErrEmptyResponse)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestNewClient_RequiresKey(t *testing.T) {
	for _, provider := range []Provider{ProviderGemini, ProviderOpenAI} {
		t.Run(string(provider), func(t *testing.T) {
			_, err := NewClient(context.Background(), DefaultConfigFor(provider), "")
			assert.ErrorIs(t, err, ErrMissingAPIKey)
		})
	}
	_, err := NewGeminiClient(context.Background(), DefaultConfig(), "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestModelFor(t *testing.T) {
	_, err := modelFor(&Config{}, TierLite)
	assert.ErrorIs(t, err, ErrNoModel)

	name, err := modelFor(DefaultOpenAIConfig(), TierAdvanced)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", name)
}
