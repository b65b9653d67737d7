// Package config provides YAML parsing for kvstore replay scripts.
//
// A replay script declares named subscribers and a list of store operations.
// The kvstore CLI runs it against a fresh store and prints every operation
// and notification, which makes the store's delivery semantics easy to
// observe and to check in CI.
//
// Example script:
//
//	title: user session demo
//	flush_timeout: 2s
//
//	subscribers:
//	  - name: audit
//	    key: user
//	    on_remove: true
//
//	steps:
//	  - save:user=${USER_NAME:-samuel jackson}
//	  - op: get
//	    key: user
//	  - flush
//	  - unsubscribe:audit
//	  - remove:user
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultFlushTimeout bounds how long a flush step waits for deliveries.
const defaultFlushTimeout = 5 * time.Second

// Operation names accepted in steps.
const (
	OpSave        = "save"
	OpGet         = "get"
	OpRemove      = "remove"
	OpList        = "list"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpFlush       = "flush"
	OpReset       = "reset"
)

// Config is the root structure of a replay script.
//
// It maps directly to the YAML file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is printed before the run. Optional.
	Title string `yaml:"title"`

	// FlushTimeout bounds each flush step and the final flush.
	// Accepts duration strings like "500ms" or "2s". Defaults to 5s.
	FlushTimeout Duration `yaml:"flush_timeout"`

	// Subscribers are registered before the first step runs.
	Subscribers []SubscriberConfig `yaml:"subscribers"`

	// Steps are executed in order.
	Steps []StepConfig `yaml:"steps"`
}

// SubscriberConfig declares a named subscription.
type SubscriberConfig struct {
	// Name identifies the subscriber in steps and output. Must be unique.
	Name string `yaml:"name"`

	// Key is the store key to subscribe to.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	Key string `yaml:"key"`

	// OnRemove also reports removal of the key.
	OnRemove bool `yaml:"on_remove"`
}

// StepConfig is one store operation.
//
// It supports two formats in YAML:
//
// Shorthand string:
//
//	- save:user=samuel jackson
//	- get:user
//	- remove:user
//	- subscribe:audit
//	- unsubscribe:audit
//	- list
//	- flush
//	- reset
//
// Structured object:
//
//	- op: save
//	  key: user
//	  value: samuel jackson
type StepConfig struct {
	// Op is the operation name, one of the Op* constants.
	Op string

	// Key is the store key (save, get, remove).
	Key string

	// Value is the value to save (save).
	Value string

	// Subscriber names a declared subscriber (subscribe, unsubscribe).
	Subscriber string
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for StepConfig.
func (s *StepConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var raw string
		if err := node.Decode(&raw); err != nil {
			return err
		}
		return s.parseShorthand(raw)
	}

	if node.Kind == yaml.MappingNode {
		// temporary struct to avoid infinite recursion
		var raw struct {
			Op         string `yaml:"op"`
			Key        string `yaml:"key"`
			Value      string `yaml:"value"`
			Subscriber string `yaml:"subscriber"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		s.Op = raw.Op
		s.Key = raw.Key
		s.Value = raw.Value
		s.Subscriber = raw.Subscriber
		return nil
	}

	return fmt.Errorf("step must be a string or object, got %v", node.Kind)
}

// parseShorthand parses step shorthand syntax.
//
// Supported formats:
//   - "list", "flush", "reset"
//   - "get:key", "remove:key"
//   - "save:key=value" (value may be empty, and may itself contain '=')
//   - "subscribe:name", "unsubscribe:name"
func (s *StepConfig) parseShorthand(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("step cannot be empty")
	}

	op, arg, hasArg := strings.Cut(raw, ":")
	s.Op = op

	switch op {
	case OpList, OpFlush, OpReset:
		if hasArg {
			return fmt.Errorf("step %q takes no argument", op)
		}
	case OpGet, OpRemove:
		s.Key = arg
	case OpSave:
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("save step %q must have the form save:key=value", raw)
		}
		s.Key = key
		s.Value = value
	case OpSubscribe, OpUnsubscribe:
		s.Subscriber = arg
	default:
		return fmt.Errorf("unknown step %q (expected save, get, remove, list, subscribe, unsubscribe, flush or reset)", op)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML replay script.
//
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML replay script data.
//
// Environment variables are expanded in subscriber keys, step keys and step
// values. FlushTimeout defaults to 5s.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.FlushTimeout == 0 {
		cfg.FlushTimeout = Duration(defaultFlushTimeout)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Subscriber returns the declared subscriber with the given name.
func (c *Config) Subscriber(name string) (SubscriberConfig, bool) {
	for _, sc := range c.Subscribers {
		if sc.Name == name {
			return sc, true
		}
	}
	return SubscriberConfig{}, false
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.FlushTimeout.Duration() <= 0 {
		return fmt.Errorf("flush_timeout must be positive, got %s", c.FlushTimeout.Duration())
	}

	seen := make(map[string]struct{}, len(c.Subscribers))
	for i := range c.Subscribers {
		sc := &c.Subscribers[i]

		if sc.Name == "" {
			return fmt.Errorf("subscribers[%d]: name is required", i)
		}
		if _, dup := seen[sc.Name]; dup {
			return fmt.Errorf("subscribers[%d]: duplicate subscriber name %q", i, sc.Name)
		}
		seen[sc.Name] = struct{}{}

		expanded, err := expandEnvVars(sc.Key)
		if err != nil {
			return fmt.Errorf("subscribers[%d] (%s): key: %w", i, sc.Name, err)
		}
		sc.Key = expanded
		if sc.Key == "" {
			return fmt.Errorf("subscribers[%d] (%s): key is required", i, sc.Name)
		}
	}

	if len(c.Steps) == 0 {
		return errors.New("at least one step must be defined")
	}

	for i := range c.Steps {
		st := &c.Steps[i]
		where := fmt.Sprintf("steps[%d] (%s)", i, st.Op)

		switch st.Op {
		case OpSave, OpGet, OpRemove:
			expanded, err := expandEnvVars(st.Key)
			if err != nil {
				return fmt.Errorf("%s: key: %w", where, err)
			}
			st.Key = expanded
			if st.Key == "" {
				return fmt.Errorf("%s: key is required", where)
			}

			if st.Op == OpSave {
				expanded, err := expandEnvVars(st.Value)
				if err != nil {
					return fmt.Errorf("%s: value: %w", where, err)
				}
				st.Value = expanded
			}

		case OpSubscribe, OpUnsubscribe:
			if st.Subscriber == "" {
				return fmt.Errorf("%s: subscriber is required", where)
			}
			if _, ok := seen[st.Subscriber]; !ok {
				return fmt.Errorf("%s: unknown subscriber %q", where, st.Subscriber)
			}

		case OpList, OpFlush, OpReset:
			// no arguments

		case "":
			return fmt.Errorf("steps[%d]: op is required", i)

		default:
			return fmt.Errorf("%s: unknown op %q", where, st.Op)
		}
	}

	return nil
}
