package agents

import (
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/multiagent-chat/server/internal/agent/graph/prompts"
	"github.com/multiagent-chat/server/internal/agent/model"
)

const maxHistoryInContext = 3

// CleanResponse unwraps replies that came back as a JSON object, preferring
// the response, content and text keys in that order.
func CleanResponse(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") || !gjson.Valid(trimmed) {
		return s
	}
	for _, key := range []string{"response", "content", "text"} {
		if v := gjson.Get(trimmed, key); v.Type == gjson.String {
			return v.String()
		}
	}
	return s
}

// BuildContextString renders memory as the {context} prompt variable.
func BuildContextString(mc model.MemoryContext) string {
	var parts []string

	if len(mc.STM.RecentInteractions) > 0 {
		ids := make([]string, 0, len(mc.STM.RecentInteractions))
		for id := range mc.STM.RecentInteractions {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		parts = append(parts, "Recent interactions:")
		for _, id := range ids {
			if v := mc.STM.RecentInteractions[id]; id != "" && v != "" {
				parts = append(parts, "- "+id+": "+v)
			}
		}
	}

	if len(mc.LTM.RecentHistory) > 0 {
		parts = append(parts, "\nRelevant history:")
		for i, e := range mc.LTM.RecentHistory {
			if i == maxHistoryInContext {
				break
			}
			if e.Value != "" {
				parts = append(parts, "- "+e.Value)
			}
		}
	}

	if len(parts) == 0 {
		return prompts.NoContext
	}
	return strings.Join(parts, "\n")
}
