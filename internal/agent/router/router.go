package router

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/multiagent-chat/server/internal/agent/model"
)

// DefaultRule marks a decision that fell back to the entry point.
const DefaultRule = "default"

// Rules is the subset of the registry the router needs.
type Rules interface {
	EntryPoint() string
	RoutingRules() []model.AgentConfig
}

// Router picks the primary agent for a question by keyword match.
type Router struct {
	rules Rules
}

func New(rules Rules) *Router {
	return &Router{rules: rules}
}

// Route walks the routing rules in priority order and stops at the first rule
// with a keyword contained in the question. When that rule's agent is not
// loaded the entry point answers instead; later rules are never consulted.
func (r *Router) Route(question string, loaded func(id string) bool) model.RouteDecision {
	// cases.Caser is stateful, so one per call.
	q := cases.Lower(language.Und).String(question)
	entry := r.rules.EntryPoint()

	decision := model.RouteDecision{Selected: entry, Rule: DefaultRule}
	for _, rule := range r.rules.RoutingRules() {
		kw, ok := matchKeyword(q, rule.Keywords)
		if !ok {
			continue
		}
		decision.Rule = kw
		if loaded(rule.ID) {
			decision.Selected = rule.ID
		}
		break
	}
	decision.Available = loaded(decision.Selected)
	return decision
}

func matchKeyword(q string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" && strings.Contains(q, cases.Lower(language.Und).String(kw)) {
			return kw, true
		}
	}
	return "", false
}
