// Package expression expands {{expr}} templates and evaluates guard
// conditions against a run's accumulated context. Expressions run in a
// sandboxed evaluator with every builtin disabled; the only callable
// surface is the helper table injected at construction, so workflow
// documents from less-trusted authors cannot reach the host process.
package expression

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// EvalError is returned for malformed expressions and references to
// undefined symbols. The engine treats it as fatal for the run; it is
// never retried.
type EvalError struct {
	Expression string
	Err        error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("expression %q: %v", e.Expression, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// ErrNotBoolean indicates a condition evaluated to a non-boolean value,
// which is a configuration error in the workflow document.
var ErrNotBoolean = errors.New("condition did not evaluate to a boolean")

// Resolver evaluates expressions against a context map enriched with an
// immutable helper-function table. Compiled programs are cached per
// (expression, context key set) and reused across goroutines.
type Resolver struct {
	mu        sync.RWMutex
	cache     map[string]*vm.Program
	functions map[string]any
}

// NewResolver creates a resolver with the given helper table. The table is
// merged over the run context on every evaluation; helper names win on
// collision.
func NewResolver(functions map[string]any) *Resolver {
	return &Resolver{
		cache:     make(map[string]*vm.Program),
		functions: functions,
	}
}

// ResolveTemplate expands every {{ ... }} span in template left-to-right,
// concatenating literal segments with the stringified results. A template
// without {{ passes through unchanged; the empty template resolves to "".
func (r *Resolver) ResolveTemplate(template string, context map[string]any) (string, error) {
	if template == "" {
		return "", nil
	}

	if !strings.Contains(template, "{{") {
		return template, nil
	}

	env := r.environment(context)

	var (
		builder strings.Builder
		rest    = template
	)

	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			builder.WriteString(rest)

			break
		}

		builder.WriteString(rest[:start])
		rest = rest[start+2:]

		end := strings.Index(rest, "}}")
		if end == -1 {
			// Unterminated span: keep the remainder literal, as the
			// original scanner did.
			break
		}

		value, err := r.eval(strings.TrimSpace(rest[:end]), env)
		if err != nil {
			return "", err
		}

		builder.WriteString(stringify(value))
		rest = rest[end+2:]
	}

	return builder.String(), nil
}

// ResolveMap evaluates each string value containing {{ as one whole
// expression (delimiters stripped), replacing the original value with the
// evaluated result so templated entries may produce numbers, booleans or
// objects. Non-string and non-templated values pass through unchanged. A
// nil input yields an empty map.
func (r *Resolver) ResolveMap(raw map[string]any, context map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(raw))
	if raw == nil {
		return resolved, nil
	}

	env := r.environment(context)

	for key, value := range raw {
		str, ok := value.(string)
		if !ok || !strings.Contains(str, "{{") {
			resolved[key] = value

			continue
		}

		expression := strings.ReplaceAll(strings.ReplaceAll(str, "{{", ""), "}}", "")

		evaluated, err := r.eval(strings.TrimSpace(expression), env)
		if err != nil {
			return nil, err
		}

		resolved[key] = evaluated
	}

	return resolved, nil
}

// EvalCondition evaluates a boolean guard expression.
func (r *Resolver) EvalCondition(expression string, context map[string]any) (bool, error) {
	value, err := r.eval(expression, r.environment(context))
	if err != nil {
		return false, err
	}

	result, ok := value.(bool)
	if !ok {
		return false, &EvalError{Expression: expression, Err: ErrNotBoolean}
	}

	return result, nil
}

// environment merges the helper table over the run context. Evaluation
// never mutates the result, so values are shared, not copied.
func (r *Resolver) environment(context map[string]any) map[string]any {
	env := make(map[string]any, len(context)+len(r.functions))

	for key, value := range context {
		env[key] = value
	}

	for key, value := range r.functions {
		env[key] = value
	}

	return env
}

func (r *Resolver) eval(expression string, env map[string]any) (any, error) {
	program, err := r.getOrCompile(expression, env)
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(program, env)
	if err != nil {
		return nil, &EvalError{Expression: expression, Err: err}
	}

	return out, nil
}

// getOrCompile returns a cached compiled program or compiles and caches a
// new one. Compiling against the concrete environment makes references to
// undefined symbols fail at compile time, so the cache key includes the
// environment's key set: the context grows as nodes complete and the same
// expression may legally compile later in the run.
func (r *Resolver) getOrCompile(expression string, env map[string]any) (*vm.Program, error) {
	key := cacheKey(expression, env)

	r.mu.RLock()
	if program, ok := r.cache[key]; ok {
		r.mu.RUnlock()

		return program, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if program, ok := r.cache[key]; ok {
		return program, nil
	}

	program, err := expr.Compile(expression,
		expr.Env(env),
		expr.DisableAllBuiltins(),
	)
	if err != nil {
		return nil, &EvalError{Expression: expression, Err: err}
	}

	r.cache[key] = program

	return program, nil
}

func cacheKey(expression string, env map[string]any) string {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return expression + "\x00" + strings.Join(keys, ",")
}

// stringify renders an evaluated value for template concatenation. Floats
// holding integral values print without a decimal point, matching how
// JSON-sourced numbers are expected to substitute into URLs.
func stringify(value any) string {
	if value == nil {
		return ""
	}

	if str, ok := value.(string); ok {
		return str
	}

	return fmt.Sprintf("%v", value)
}
