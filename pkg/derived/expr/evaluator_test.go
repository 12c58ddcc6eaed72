package expr

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEvaluatorArithmetic(t *testing.T) {
	t.Parallel()

	eval := New()
	cases := []struct {
		expression string
		want       float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 / 4", 2.5},
		{"10 % 4", 2},
		{"-3 + 5", 2},
		{"3 - -2", 5},
		{"2 * -(1 + 1)", -4},
		{"+4", 4},
		{".5 + 1e2", 100.5},
		{"8 - 3 - 2", 3},
		{"16 / 4 / 2", 2},
	}
	for _, tc := range cases {
		got, err := eval.Eval(tc.expression, Context{})
		if err != nil {
			t.Fatalf("Eval(%q) returned error: %v", tc.expression, err)
		}
		if got != tc.want {
			t.Fatalf("Eval(%q) = %v, want %v", tc.expression, got, tc.want)
		}
	}
}

func TestEvaluatorReferences(t *testing.T) {
	t.Parallel()

	eval := New()
	ctx := Context{Values: map[string]any{
		"price":   "12.5",
		"qty":     4,
		"blank":   "",
		"enabled": true,
		"count":   "3",
		"name":    "Jane",
	}}

	got, err := eval.Eval("price * qty", ctx)
	if err != nil {
		t.Fatalf("Eval returned error: %v", err)
	}
	if got != 50 {
		t.Fatalf("expected 50, got %v", got)
	}

	got, err = eval.Eval("blank + count", ctx)
	if err != nil {
		t.Fatalf("Eval returned error: %v", err)
	}
	if got != 3 {
		t.Fatalf("expected blank to count as 0, got %v", got)
	}

	if _, err := eval.Eval("enabled + 1", ctx); err == nil {
		t.Fatalf("expected boolean reference to fail")
	}

	if _, err := eval.Eval("missing + 1", ctx); err == nil {
		t.Fatalf("expected unknown reference to fail")
	}

	if _, err := eval.Eval("name * 2", ctx); err == nil {
		t.Fatalf("expected non-numeric reference to fail")
	}
}

func TestEvaluatorRejectsCode(t *testing.T) {
	t.Parallel()

	eval := New()
	for _, expression := range []string{
		"alert(1)",
		"process.exit()",
		"a; b",
		"x = 3",
		`"text"`,
		"1 +",
		"(1 + 2",
		"1 2",
		"",
		"1 / 0",
		"5 % 0",
		"1.2.3",
	} {
		if _, err := eval.Eval(expression, Context{}); err == nil {
			t.Fatalf("expected %q to fail", expression)
		}
	}
}

func TestEvaluatorNestingLimit(t *testing.T) {
	t.Parallel()

	expression := ""
	for i := 0; i < maxDepth+2; i++ {
		expression += "("
	}
	expression += "1"
	for i := 0; i < maxDepth+2; i++ {
		expression += ")"
	}
	if _, err := New().Eval(expression, Context{}); err == nil {
		t.Fatalf("expected deeply nested expression to fail")
	}
}

func TestParseReferences(t *testing.T) {
	t.Parallel()

	compiled, err := Parse("a + b * a - total.net")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "total.net"}, compiled.References()); diff != "" {
		t.Fatalf("references mismatch (-want +got):\n%s", diff)
	}
}
