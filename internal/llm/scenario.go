package llm

import (
	"strings"

	"kimi-proxy/internal/rpc"
)

// scenarioRules are checked in order; the first substring match wins.
// "kimi-k2.5-search" is therefore K2, and any name containing "research"
// also contains "search" and resolves to SEARCH.
var scenarioRules = []struct {
	substr   string
	scenario rpc.Scenario
}{
	{"k2.5", rpc.ScenarioK2},
	{"search", rpc.ScenarioSearch},
	{"research", rpc.ScenarioResearch},
	{"k1", rpc.ScenarioK1},
}

// ResolveScenario maps a client-facing model name to a backend scenario and
// whether thinking mode is requested. Unknown names fall back to K2.
func ResolveScenario(model string) (rpc.Scenario, bool) {
	thinking := strings.Contains(model, "thinking")
	for _, rule := range scenarioRules {
		if strings.Contains(model, rule.substr) {
			return rule.scenario, thinking
		}
	}
	return rpc.ScenarioK2, thinking
}

// Model is an entry of the /v1/models listing.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// DefaultModels returns the model names advertised to clients.
func DefaultModels() []Model {
	ids := []string{
		"kimi-k2.5",
		"kimi-k2.5-thinking",
		"kimi-search",
		"kimi-k1",
		"kimi-k1-thinking",
	}
	models := make([]Model, 0, len(ids))
	for _, id := range ids {
		models = append(models, Model{ID: id, Object: "model", OwnedBy: "moonshot"})
	}
	return models
}
