package prompts

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multiagent-chat/server/internal/agent/model"
)

func TestRenderAgentPrompt(t *testing.T) {
	cfg := model.PromptConfig{
		System:   "You are a {not-a-var} forest agent.",
		Template: "Analyze: {query}\nContext: {context}",
	}

	msgs, err := RenderAgentPrompt(context.Background(), cfg, "pine {trees}", "")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, "You are a {not-a-var} forest agent.", msgs[0].Content)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, "Analyze: pine {trees}\nContext: "+NoContext, msgs[1].Content)
}

func TestRenderAgentPromptBadTemplate(t *testing.T) {
	cfg := model.PromptConfig{System: "s", Template: "{query} {unknown}"}
	_, err := RenderAgentPrompt(context.Background(), cfg, "q", "c")
	assert.Error(t, err)
}
