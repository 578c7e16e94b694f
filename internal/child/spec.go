package child

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/go-viper/mapstructure/v2"
)

// Field names accepted in a raw child spec.
const (
	FieldID   = "id"
	FieldPath = "path"
	FieldArgs = "args"
	FieldEnv  = "env"
)

var ErrInvalidSpec = errors.New("invalid spec")

// Spec describes a child process. ID is a display name and need not be unique.
type Spec struct {
	ID   string            `json:"id" mapstructure:"id"`
	Path string            `json:"path" mapstructure:"path"`
	Args []string          `json:"args,omitempty" mapstructure:"args"`
	Env  map[string]string `json:"env,omitempty" mapstructure:"env"`
}

// Validate checks the required fields of an already typed spec.
func (s Spec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidSpec)
	}
	if s.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidSpec)
	}
	return nil
}

// Clone returns a deep copy so the caller's slices and maps are never shared
// with supervisor state.
func (s Spec) Clone() Spec {
	out := Spec{ID: s.ID, Path: s.Path}
	if s.Args != nil {
		out.Args = slices.Clone(s.Args)
	}
	if s.Env != nil {
		out.Env = maps.Clone(s.Env)
	}
	return out
}

// Command returns the argv for the child: path followed by args.
func (s Spec) Command() []string {
	argv := make([]string, 0, len(s.Args)+1)
	argv = append(argv, s.Path)
	return append(argv, s.Args...)
}

// CheckChildSpecs reports whether every raw spec in the batch is acceptable.
// A spec must carry non-empty string id and path; args, when present, must be
// a list of strings; env, when present, must be a flat string map. Any other
// field, or an empty spec, rejects the whole batch.
func CheckChildSpecs(specs []map[string]any) bool {
	for _, raw := range specs {
		if checkRaw(raw) != nil {
			return false
		}
	}
	return true
}

func checkRaw(raw map[string]any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty spec", ErrInvalidSpec)
	}
	for _, f := range []string{FieldID, FieldPath} {
		v, ok := raw[f]
		if !ok {
			return fmt.Errorf("%w: %s is required", ErrInvalidSpec, f)
		}
		if s, ok := v.(string); !ok || s == "" {
			return fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidSpec, f)
		}
	}
	for k, v := range raw {
		switch k {
		case FieldID, FieldPath:
		case FieldArgs:
			if v != nil && !isStringList(v) {
				return fmt.Errorf("%w: args must be a list of strings", ErrInvalidSpec)
			}
		case FieldEnv:
			if v != nil && !isStringMap(v) {
				return fmt.Errorf("%w: env must be a string map", ErrInvalidSpec)
			}
		default:
			return fmt.Errorf("%w: unknown field %q", ErrInvalidSpec, k)
		}
	}
	return nil
}

func isStringList(v any) bool {
	switch t := v.(type) {
	case []string:
		return true
	case []any:
		for _, e := range t {
			if _, ok := e.(string); !ok {
				return false
			}
		}
		return true
	}
	return false
}

func isStringMap(v any) bool {
	switch t := v.(type) {
	case map[string]string:
		return true
	case map[string]any:
		for _, e := range t {
			if _, ok := e.(string); !ok {
				return false
			}
		}
		return true
	}
	return false
}

// Decode validates a batch of raw specs and converts them to typed specs.
// Nothing is returned unless the whole batch is valid.
func Decode(raws []map[string]any) ([]Spec, error) {
	for i, raw := range raws {
		if err := checkRaw(raw); err != nil {
			return nil, fmt.Errorf("child %d: %w", i, err)
		}
	}
	out := make([]Spec, 0, len(raws))
	for i, raw := range raws {
		var s Spec
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			ErrorUnused: true,
			Result:      &s,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("child %d: %w: %v", i, ErrInvalidSpec, err)
		}
		out = append(out, s)
	}
	return out, nil
}
