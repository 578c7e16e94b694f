package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env holds the base environment children inherit plus global overrides.
// It is never written back to the supervisor's own process environment.
type Env struct {
	Var Var // global variables (K->V)
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{
		Var: make(Var),
	}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.env = Parse(os.Environ())
}

// WithSet returns a copy of e with K=V added to the global variables.
func (e *Env) WithSet(k, v string) *Env {
	out := &Env{Var: make(Var, len(e.Var)+1), env: e.env}
	for kk, vv := range e.Var {
		out.Var[kk] = vv
	}
	if k != "" {
		out.Var[k] = v
	}
	return out
}

// Parse converts "K=V" entries to a map, skipping malformed or empty keys.
func Parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

// Merge composes the environment for one child, in increasing precedence:
// OS base, global variables, each overrides map in order. ${VAR} references
// in values are expanded against the composed map. The result is a new map.
func (e *Env) Merge(overrides ...map[string]string) Var {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var, len(e.env)+len(e.Var))
	for k, v := range e.env {
		m[k] = v
	}
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for _, o := range overrides {
		for k, v := range o {
			if k == "" { // skip malformed entries with empty key
				continue
			}
			m[k] = v
		}
	}
	expanded := make(Var, len(m))
	for k, v := range m {
		expanded[k] = expand(v, m)
	}
	return expanded
}

// Slice renders the map in "K=V" form, sorted by key.
func (v Var) Slice() []string {
	out := make([]string, 0, len(v))
	for k, val := range v {
		if k == "" {
			continue
		}
		out = append(out, k+"="+val)
	}
	sort.Strings(out)
	return out
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(k string) string {
		if v, ok := m[k]; ok {
			return v
		}
		return "${" + k + "}"
	})
}
