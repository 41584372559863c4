package state

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExprSentinel prefixes raw-expression env values in persisted string form.
const ExprSentinel = "__mica_nix_expr__:"

// EnvKind distinguishes literal strings from raw descriptor expressions.
type EnvKind int

const (
	EnvLiteral EnvKind = iota
	EnvExpr
)

func (k EnvKind) String() string {
	if k == EnvExpr {
		return "expr"
	}
	return "literal"
}

// EnvValue is an environment entry: either a literal string that is quoted
// and escaped on output, or an expression emitted as descriptor code.
type EnvValue struct {
	kind EnvKind
	text string
}

// Literal builds a literal string value.
func Literal(text string) EnvValue {
	return EnvValue{kind: EnvLiteral, text: text}
}

// Expr builds a raw expression value.
func Expr(text string) EnvValue {
	return EnvValue{kind: EnvExpr, text: text}
}

// Kind reports the variant.
func (v EnvValue) Kind() EnvKind { return v.kind }

// Text returns the payload without any tag.
func (v EnvValue) Text() string { return v.text }

// IsExpr reports whether the value is a raw expression.
func (v EnvValue) IsExpr() bool { return v.kind == EnvExpr }

func (v EnvValue) String() string {
	if v.kind == EnvExpr {
		return fmt.Sprintf("expr(%s)", v.text)
	}
	return v.text
}

// Encode returns the single-string form used in state files.
func (v EnvValue) Encode() string {
	if v.kind == EnvExpr {
		return ExprSentinel + v.text
	}
	return v.text
}

// DecodeEnvValue parses the single-string form. Strings that are already
// quoted descriptor strings are treated as expressions so they are emitted
// unchanged.
func DecodeEnvValue(raw string) EnvValue {
	if rest, ok := strings.CutPrefix(raw, ExprSentinel); ok {
		return Expr(rest)
	}
	if looksQuoted(strings.TrimSpace(raw)) {
		return Expr(raw)
	}
	return Literal(raw)
}

// MarshalYAML implements yaml.Marshaler.
func (v EnvValue) MarshalYAML() (interface{}, error) {
	return v.Encode(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Non-string scalars such as
// numbers and booleans are kept as their literal text.
func (v *EnvValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("state: env value must be a scalar (line %d)", node.Line)
	}
	*v = DecodeEnvValue(node.Value)
	return nil
}

func looksQuoted(value string) bool {
	if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
		return true
	}
	return len(value) >= 4 && strings.HasPrefix(value, "''") && strings.HasSuffix(value, "''")
}
