package scenario

import (
	"fmt"
	"log"
	"slices"
	"strings"
)

var scenarios = make(map[string]*Scenario)

// Scenario is a named, registered suite.
type Scenario struct {
	Key     string
	Name    string
	Summary string
	Build   func() *Suite
}

func (s *Scenario) Describe() string {
	suite := s.Build()

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n\n%s\n\nPhases:\n", s.Name, s.Key, s.Summary)
	for i, phase := range suite.phases {
		fmt.Fprintf(&b, "%d. %s\n", i+1, phase.Name)
	}

	return b.String()
}

func Register(key string, s *Scenario) {
	if s.Build == nil {
		log.Fatalf("Cannot register scenario %s without a suite.", key)
	}

	s.Key = key
	scenarios[key] = s
}

func Get(key string) (*Scenario, error) {
	s, exists := scenarios[key]
	if !exists {
		return nil, fmt.Errorf("scenario %q not found\nAvailable scenarios: %s", key, strings.Join(Keys(), ", "))
	}

	return s, nil
}

// Keys returns the registered scenario keys, sorted.
func Keys() []string {
	keys := make([]string, 0, len(scenarios))
	for key := range scenarios {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	return keys
}
