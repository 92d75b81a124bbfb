package tools

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/multiagent-chat/server/internal/agent/model"
)

type stubSearcher struct {
	gotUser  int64
	gotQuery string
}

func (s *stubSearcher) Search(_ context.Context, userID int64, query string) model.SearchResults {
	s.gotUser, s.gotQuery = userID, query
	return model.SearchResults{
		Query:      query,
		Matches:    []model.SearchMatch{{Source: model.SourceSTM, AgentID: "ForestAnalyzer", Content: "pine", Relevance: 1}},
		TotalFound: 1,
	}
}

func TestSearchMemoryTool(t *testing.T) {
	ctx := context.Background()
	s := &stubSearcher{}
	tl := NewSearchMemoryTool(s, 9)

	info, err := tl.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, ToolSearchMemory, info.Name)

	out, err := tl.InvokableRun(ctx, `{"query":"  pine "}`)
	require.NoError(t, err)
	assert.Equal(t, int64(9), s.gotUser)
	assert.Equal(t, "pine", s.gotQuery)
	assert.Equal(t, int64(1), gjson.Get(out, "total_found").Int())
	assert.Equal(t, "ForestAnalyzer", gjson.Get(out, "matches.0.agent").String())
}

func TestSearchMemoryToolRequiresQuery(t *testing.T) {
	tl := NewSearchMemoryTool(&stubSearcher{}, 1)
	_, err := tl.InvokableRun(context.Background(), `{"query":""}`)
	assert.Error(t, err)
}

type toolEvents struct {
	starts []*callbacks.RunInfo
	args   []string
	ends   []string
	errs   []error
}

func (e *toolEvents) handler() callbacks.Handler {
	return callbacks.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
			e.starts = append(e.starts, info)
			if in := tool.ConvCallbackInput(input); in != nil {
				e.args = append(e.args, in.ArgumentsInJSON)
			}
			return ctx
		}).
		OnEndFn(func(ctx context.Context, _ *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
			if out := tool.ConvCallbackOutput(output); out != nil {
				e.ends = append(e.ends, out.Response)
			}
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, _ *callbacks.RunInfo, err error) context.Context {
			e.errs = append(e.errs, err)
			return ctx
		}).
		Build()
}

// lambdaCtx mimics the context a graph lambda node hands to its function.
func lambdaCtx(h callbacks.Handler) context.Context {
	return callbacks.InitCallbacks(context.Background(), &callbacks.RunInfo{
		Name:      "PrimaryAgent",
		Component: components.Component("Lambda"),
	}, h)
}

func TestSearchMemoryToolFiresCallbacksInsideLambda(t *testing.T) {
	ev := &toolEvents{}
	tl := NewSearchMemoryTool(&stubSearcher{}, 3)

	out, err := tl.InvokableRun(lambdaCtx(ev.handler()), `{"query":"pine"}`)
	require.NoError(t, err)

	require.Len(t, ev.starts, 1)
	assert.Equal(t, components.ComponentOfTool, ev.starts[0].Component)
	assert.Equal(t, ToolSearchMemory, ev.starts[0].Name)
	assert.Equal(t, []string{`{"query":"pine"}`}, ev.args)
	assert.Equal(t, []string{out}, ev.ends)
	assert.Empty(t, ev.errs)
	assert.True(t, components.IsCallbacksEnabled(tl))
}

func TestSearchMemoryToolReportsErrorCallback(t *testing.T) {
	ev := &toolEvents{}
	tl := NewSearchMemoryTool(&stubSearcher{}, 3)

	_, err := tl.InvokableRun(lambdaCtx(ev.handler()), `{"query":" "}`)
	require.Error(t, err)

	require.Len(t, ev.starts, 1)
	require.Len(t, ev.errs, 1)
	assert.Empty(t, ev.ends)
}
