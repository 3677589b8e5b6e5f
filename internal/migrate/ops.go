// Package migrate implements schema migration for plan documents and their
// stored patch history: an ordered rewrite DSL (rename/delete/transform by
// wildcard path pattern) plus a version-indexed registry of per-version
// steps applied during hydration.
package migrate

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"plancore/internal/pathmatch"
	"plancore/pkg/domain"
)

// Kind discriminates the operation variants. The union is closed; every
// consumption site switches exhaustively over these three.
type Kind int

const (
	KindRenamePath Kind = iota
	KindDeletePath
	KindTransformValue
)

// TransformFunc replaces a matched value. Implementations must be pure.
type TransformFunc func(value any) any

// Operation is one rename/delete/transform rule over wildcard-capable
// field paths, usable both on materialized documents and on stored patches.
// Construct operations through RenamePath, DeletePath, TransformValue or
// TransformExpr; the zero value is not valid.
type Operation struct {
	kind     Kind
	from, to pathmatch.Pattern // rename
	path     pathmatch.Pattern // delete, transform
	fn       TransformFunc     // transform
}

// Kind returns the operation variant.
func (o Operation) Kind() Kind { return o.kind }

// RenamePath moves the value at any path matching from to the path obtained
// by wildcard substitution into to, removing the old field. The two
// patterns must declare the same number of wildcards; a mismatch is a
// configuration error surfaced here, at construction.
func RenamePath(from, to string) (Operation, error) {
	f, t := pathmatch.Parse(from), pathmatch.Parse(to)
	if f.Wildcards() != t.Wildcards() {
		return Operation{}, domain.ErrMigrationConfig{
			Reason: fmt.Sprintf("rename %q -> %q: wildcard count mismatch (%d vs %d)", from, to, f.Wildcards(), t.Wildcards()),
		}
	}
	if f.Len() == 0 || t.Len() == 0 {
		return Operation{}, domain.ErrMigrationConfig{Reason: fmt.Sprintf("rename %q -> %q: empty pattern", from, to)}
	}
	return Operation{kind: KindRenamePath, from: f, to: t}, nil
}

// DeletePath removes any field matching the pattern.
func DeletePath(path string) (Operation, error) {
	p := pathmatch.Parse(path)
	if p.Len() == 0 {
		return Operation{}, domain.ErrMigrationConfig{Reason: "delete: empty pattern"}
	}
	return Operation{kind: KindDeletePath, path: p}, nil
}

// TransformValue replaces matching values with fn(value).
func TransformValue(path string, fn TransformFunc) (Operation, error) {
	p := pathmatch.Parse(path)
	if p.Len() == 0 {
		return Operation{}, domain.ErrMigrationConfig{Reason: "transform: empty pattern"}
	}
	if fn == nil {
		return Operation{}, domain.ErrMigrationConfig{Reason: fmt.Sprintf("transform %q: nil function", path)}
	}
	return Operation{kind: KindTransformValue, path: p, fn: fn}, nil
}

// TransformExpr builds a TransformValue operation whose function evaluates
// an expr-lang expression with the matched value bound to "value", e.g.
// "value * 12" to convert beds to bed feet. Compilation failures surface as
// configuration errors; evaluation failures leave the value unchanged.
func TransformExpr(path, src string) (Operation, error) {
	program, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return Operation{}, domain.ErrMigrationConfig{Reason: fmt.Sprintf("transform %q: compile %q: %v", path, src, err)}
	}
	return TransformValue(path, exprTransform(program))
}

func exprTransform(program *vm.Program) TransformFunc {
	return func(value any) any {
		out, err := expr.Run(program, map[string]any{"value": value})
		if err != nil {
			return value
		}
		return out
	}
}
