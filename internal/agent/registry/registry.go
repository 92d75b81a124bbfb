// Package registry loads the agent and edge registry that drives routing.
package registry

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/multiagent-chat/server/internal/agent/graph/prompts"
	"github.com/multiagent-chat/server/internal/agent/model"
)

//go:embed agents.json
var defaultRegistry []byte

// Format is the encoding of a registry document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var ErrInvalidRegistry = errors.New("invalid agent registry")

// Registry is a validated, read-only view of the agents and their edges.
type Registry struct {
	version     string
	description string
	entryPoint  string
	agents      *orderedmap.OrderedMap[string, model.AgentConfig]
	edges       map[string][]string
	hash        string
}

// Default returns the embedded registry.
func Default() (*Registry, error) {
	return Parse(defaultRegistry, FormatJSON)
}

// LoadFile reads a registry from disk. An empty path loads the embedded default.
func LoadFile(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, format)
}

func formatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: unsupported file extension %q", ErrInvalidRegistry, filepath.Ext(path))
	}
}

// Parse decodes and validates a registry document.
func Parse(data []byte, format Format) (*Registry, error) {
	var file model.RegistryFile
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidRegistry, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalidRegistry, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidRegistry, format)
	}

	sum := blake3.Sum256(data)
	r := &Registry{
		version:     file.Version,
		description: file.Description,
		entryPoint:  strings.TrimSpace(file.EntryPoint),
		agents:      orderedmap.New[string, model.AgentConfig](),
		edges:       map[string][]string{},
		hash:        fmt.Sprintf("%x", sum[:]),
	}

	for _, a := range file.Agents {
		a.ID = strings.TrimSpace(a.ID)
		if a.ID == "" {
			return nil, fmt.Errorf("%w: agent with empty id", ErrInvalidRegistry)
		}
		if _, dup := r.agents.Get(a.ID); dup {
			return nil, fmt.Errorf("%w: duplicate agent %q", ErrInvalidRegistry, a.ID)
		}
		if a.Kind == "" {
			a.Kind = model.AgentKindLLM
		}
		if a.Kind != model.AgentKindLLM && a.Kind != model.AgentKindSearch {
			return nil, fmt.Errorf("%w: agent %q has unknown kind %q", ErrInvalidRegistry, a.ID, a.Kind)
		}
		r.agents.Set(a.ID, a)
	}

	if r.entryPoint == "" {
		return nil, fmt.Errorf("%w: entry_point is required", ErrInvalidRegistry)
	}
	entry, ok := r.agents.Get(r.entryPoint)
	if !ok {
		return nil, fmt.Errorf("%w: entry_point %q is not a declared agent", ErrInvalidRegistry, r.entryPoint)
	}
	if strings.TrimSpace(entry.Prompt.System) == "" {
		return nil, fmt.Errorf("%w: entry_point %q has no system prompt", ErrInvalidRegistry, r.entryPoint)
	}

	// Agents without their own prompt use the entry point's.
	for pair := r.agents.Oldest(); pair != nil; pair = pair.Next() {
		a := pair.Value
		if strings.TrimSpace(a.Prompt.System) == "" {
			a.Prompt = entry.Prompt
			r.agents.Set(a.ID, a)
		}
		if !strings.Contains(a.Prompt.Template, "{query}") {
			return nil, fmt.Errorf("%w: agent %q template must reference {query}", ErrInvalidRegistry, a.ID)
		}
		if _, err := prompts.RenderAgentPrompt(context.Background(), a.Prompt, "query", "context"); err != nil {
			return nil, fmt.Errorf("%w: agent %q template does not render: %v", ErrInvalidRegistry, a.ID, err)
		}
	}

	for from, targets := range file.Edges {
		if _, ok := r.agents.Get(from); !ok {
			return nil, fmt.Errorf("%w: edge source %q is not a declared agent", ErrInvalidRegistry, from)
		}
		for _, to := range targets {
			if _, ok := r.agents.Get(to); !ok {
				return nil, fmt.Errorf("%w: edge %s -> %s targets an undeclared agent", ErrInvalidRegistry, from, to)
			}
		}
		r.edges[from] = append([]string(nil), targets...)
	}

	return r, nil
}

func (r *Registry) Version() string     { return r.version }
func (r *Registry) Description() string { return r.description }
func (r *Registry) EntryPoint() string  { return r.entryPoint }

// Hash is the hex blake3 digest of the raw registry document.
func (r *Registry) Hash() string { return r.hash }

// Agent looks up an agent by id.
func (r *Registry) Agent(id string) (model.AgentConfig, bool) {
	return r.agents.Get(id)
}

// Agents returns all agents in declaration order.
func (r *Registry) Agents() []model.AgentConfig {
	out := make([]model.AgentConfig, 0, r.agents.Len())
	for pair := r.agents.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Successors returns the follow-up agents declared for id, in order.
func (r *Registry) Successors(id string) []string {
	return append([]string(nil), r.edges[id]...)
}

// Edges returns a copy of the full edge map.
func (r *Registry) Edges() map[string][]string {
	out := make(map[string][]string, len(r.edges))
	for k, v := range r.edges {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// RoutingRules returns agents that declare keywords, by ascending priority.
// Agents with equal priority keep their declaration order.
func (r *Registry) RoutingRules() []model.AgentConfig {
	var rules []model.AgentConfig
	for _, a := range r.Agents() {
		if len(a.Keywords) > 0 {
			rules = append(rules, a)
		}
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })
	return rules
}
