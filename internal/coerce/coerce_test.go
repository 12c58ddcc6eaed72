package coerce

import (
	"math"
	"testing"
	"time"
)

func TestLooseFloat(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{"12", 12, true},
		{"  12.5kg", 12.5, true},
		{"-3", -3, true},
		{".5", 0.5, true},
		{"1e3", 1000, true},
		{"1e", 1, true},
		{"abc", 0, false},
		{"", 0, false},
		{nil, 0, false},
		{true, 0, false},
		{7, 7, true},
		{2.25, 2.25, true},
		{"-Infinity", math.Inf(-1), true},
	}
	for _, tc := range cases {
		got, ok := LooseFloat(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("LooseFloat(%#v) = (%v, %v), want (%v, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestStrictFloat(t *testing.T) {
	t.Parallel()

	if _, ok := StrictFloat("12abc"); ok {
		t.Fatalf("expected trailing garbage to fail")
	}
	if _, ok := StrictFloat("   "); ok {
		t.Fatalf("expected blank to fail")
	}
	if got, ok := StrictFloat(" 12.5 "); !ok || got != 12.5 {
		t.Fatalf("expected 12.5, got %v %v", got, ok)
	}
}

func TestTruthyAndEmpty(t *testing.T) {
	t.Parallel()

	for _, v := range []any{nil, "", false, 0, 0.0, math.NaN(), []string{}} {
		if Truthy(v) {
			t.Fatalf("expected %#v to be falsy", v)
		}
	}
	for _, v := range []any{"x", true, 1, []string{"a"}} {
		if !Truthy(v) {
			t.Fatalf("expected %#v to be truthy", v)
		}
	}
	if Empty(false) || Empty(0) {
		t.Fatalf("false and 0 are values for presence checks")
	}
	if !Empty("  ") || !Empty(nil) || !Empty([]any{}) {
		t.Fatalf("expected blank values to be empty")
	}
}

func TestString(t *testing.T) {
	t.Parallel()

	cases := map[string]any{
		"":      nil,
		"3":     3.0,
		"2.5":   2.5,
		"true":  true,
		"a,b":   []string{"a", "b"},
		"x,1":   []any{"x", 1},
		"hello": "hello",
	}
	for want, in := range cases {
		if got := String(in); got != want {
			t.Fatalf("String(%#v) = %q, want %q", in, got, want)
		}
	}
}

func TestDate(t *testing.T) {
	t.Parallel()

	got, ok := Date("2000-06-15", time.UTC)
	if !ok {
		t.Fatalf("expected date to parse")
	}
	if got.Year() != 2000 || got.Month() != time.June || got.Day() != 15 {
		t.Fatalf("unexpected date %v", got)
	}

	got, ok = Date("2000-06-15T10:30:00.000Z", time.UTC)
	if !ok || got.Day() != 15 {
		t.Fatalf("expected RFC 3339 timestamp to parse, got %v %v", got, ok)
	}

	if _, ok := Date("not a date", time.UTC); ok {
		t.Fatalf("expected garbage to fail")
	}
	if _, ok := Date(nil, time.UTC); ok {
		t.Fatalf("expected nil to fail")
	}
}
