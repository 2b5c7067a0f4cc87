package experiment

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"strings"
)

// reservedPrefix marks keys the harness sets itself; user parameters must
// not collide with them.
const reservedPrefix = "base_"

// Params is an immutable set of experiment parameters. It is built once
// from defaults plus CLI arguments and serialized verbatim alongside the
// experiment outputs, so a run can be reproduced from its directory alone.
type Params struct {
	values map[string]interface{}
}

// NewParams copies the given values into an immutable parameter set. Keys
// starting with "base_" are rejected.
func NewParams(values map[string]interface{}) (*Params, error) {
	copied := make(map[string]interface{}, len(values))
	for key, val := range values {
		if strings.HasPrefix(key, reservedPrefix) {
			return nil, fmt.Errorf("experiment: parameter key %q uses reserved prefix %q", key, reservedPrefix)
		}

		copied[key] = val
	}

	return &Params{values: copied}, nil
}

// WithBase returns a new parameter set extended with a harness-owned value.
// The key is stored under the reserved prefix.
func (p *Params) WithBase(key string, value interface{}) *Params {
	copied := make(map[string]interface{}, len(p.values)+1)
	for k, v := range p.values {
		copied[k] = v
	}

	copied[reservedPrefix+key] = value

	return &Params{values: copied}
}

// Has reports whether the key is present.
func (p *Params) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Value returns the raw value for a key.
func (p *Params) Value(key string) (interface{}, error) {
	val, ok := p.values[key]
	if !ok {
		return nil, fmt.Errorf("experiment: unknown parameter %q", key)
	}

	return val, nil
}

// Float64 returns a numeric parameter as float64.
func (p *Params) Float64(key string) (float64, error) {
	val, err := p.Value(key)
	if err != nil {
		return 0, err
	}

	switch v := val.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("experiment: parameter %q is %T, not numeric", key, val)
	}
}

// Int64 returns an integer parameter.
func (p *Params) Int64(key string) (int64, error) {
	val, err := p.Value(key)
	if err != nil {
		return 0, err
	}

	switch v := val.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("experiment: parameter %q is %T, not an integer", key, val)
	}
}

// String returns a string parameter.
func (p *Params) String(key string) (string, error) {
	val, err := p.Value(key)
	if err != nil {
		return "", err
	}

	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("experiment: parameter %q is %T, not a string", key, val)
	}

	return s, nil
}

// Bool returns a boolean parameter.
func (p *Params) Bool(key string) (bool, error) {
	val, err := p.Value(key)
	if err != nil {
		return false, err
	}

	b, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("experiment: parameter %q is %T, not a bool", key, val)
	}

	return b, nil
}

// Map returns a copy of all parameters, so callers cannot mutate the set.
func (p *Params) Map() map[string]interface{} {
	copied := make(map[string]interface{}, len(p.values))
	for k, v := range p.values {
		copied[k] = v
	}

	return copied
}

// Save writes the parameters as JSON to the given path.
func (p *Params) Save(path string) error {
	data, err := json.MarshalIndent(p.values, "", "  ")
	if err != nil {
		return err
	}

	return ioutil.WriteFile(path, data, 0644)
}
