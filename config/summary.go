package config

import (
	"sort"
)

// Summary describes what a script will do, without running it.
type Summary struct {
	// Subscribers is the number of declared subscribers.
	Subscribers int

	// Steps is the number of steps.
	Steps int

	// Ops counts steps per operation name.
	Ops map[string]int

	// Keys lists every distinct store key the script touches, sorted.
	Keys []string
}

// Summarize computes a [Summary] for a parsed config.
func Summarize(cfg *Config) Summary {
	s := Summary{
		Subscribers: len(cfg.Subscribers),
		Steps:       len(cfg.Steps),
		Ops:         make(map[string]int),
	}

	keys := make(map[string]struct{})
	for _, sc := range cfg.Subscribers {
		keys[sc.Key] = struct{}{}
	}
	for _, st := range cfg.Steps {
		s.Ops[st.Op]++
		if st.Key != "" {
			keys[st.Key] = struct{}{}
		}
	}

	s.Keys = sortedKeys(keys)
	return s
}

// OpNames returns the operation names present in the summary, sorted.
func (s Summary) OpNames() []string {
	names := make(map[string]struct{}, len(s.Ops))
	for op := range s.Ops {
		names[op] = struct{}{}
	}
	return sortedKeys(names)
}

// sortedKeys returns the keys of a set in sorted order for deterministic output.
func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
