// Package registry holds the scenario catalog the CLI runs from.
package registry

import (
	"fmt"
	"sort"

	"github.com/raftbed/raftbed/internal/suite"
)

var scenarios = make(map[string]*Scenario)

// Scenario is a named, registered test suite over a provisioned cluster.
type Scenario struct {
	Key     string
	Name    string
	Summary string
	Fn      SuiteFunc
}

type SuiteFunc func() *suite.Suite

// Register adds a scenario; keys must be unique.
func Register(key string, sc *Scenario) {
	if _, exists := scenarios[key]; exists {
		panic(fmt.Sprintf("scenario %q registered twice", key))
	}

	sc.Key = key
	scenarios[key] = sc
}

// Get looks up a scenario by key.
func Get(key string) (*Scenario, error) {
	sc, exists := scenarios[key]
	if !exists {
		return nil, fmt.Errorf("scenario %q not found", key)
	}
	return sc, nil
}

// Keys returns all registered scenario keys in stable order.
func Keys() []string {
	keys := make([]string, 0, len(scenarios))
	for k := range scenarios {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
