package derived

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-formbuilder/internal/coerce"
	"github.com/goliatone/go-formbuilder/pkg/derived/expr"
	"github.com/goliatone/go-formbuilder/pkg/model"
)

// Empty is the result evaluators return when no value can be computed.
const Empty = ""

// Input is everything an evaluator reads. Values is aligned with ParentIDs.
type Input struct {
	ParentIDs []string
	Values    []any
	Formula   string
	Now       time.Time
}

// Evaluator computes a derived value. Implementations must be pure and must
// not panic; failures collapse to Empty.
type Evaluator interface {
	Evaluate(in Input) any
}

// EvaluatorFunc adapts a function into an Evaluator.
type EvaluatorFunc func(in Input) any

// Evaluate calls the underlying function.
func (fn EvaluatorFunc) Evaluate(in Input) any {
	return fn(in)
}

// DefaultEvaluators returns the built-in evaluator for every formula kind.
func DefaultEvaluators() map[model.FormulaType]Evaluator {
	return map[model.FormulaType]Evaluator{
		model.FormulaAgeFromDOB: EvaluatorFunc(func(in Input) any {
			return AgeFromDOB(in.Values, in.Now)
		}),
		model.FormulaSum: EvaluatorFunc(func(in Input) any {
			return Sum(in.Values)
		}),
		model.FormulaAverage: EvaluatorFunc(func(in Input) any {
			return Average(in.Values)
		}),
		model.FormulaConcat: EvaluatorFunc(func(in Input) any {
			return Concat(in.Values)
		}),
		model.FormulaCustom: EvaluatorFunc(func(in Input) any {
			return Custom(in.Formula, in.ParentIDs, in.Values)
		}),
	}
}

// AgeFromDOB returns the whole years between the first parent value, parsed as
// a calendar date, and now. The age drops by one when now's month/day precedes
// the birth month/day. Missing or unparsable dates yield Empty.
func AgeFromDOB(values []any, now time.Time) any {
	if len(values) == 0 || !coerce.Truthy(values[0]) {
		return Empty
	}
	birth, ok := coerce.Date(values[0], now.Location())
	if !ok {
		return Empty
	}
	birth = birth.In(now.Location())

	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}

// Sum adds every parent value parsed as a number. Unparsable or missing values
// contribute 0, so the result is never empty.
func Sum(values []any) float64 {
	total := 0.0
	for _, value := range values {
		if number, ok := coerce.LooseFloat(value); ok {
			total += number
		}
	}
	return total
}

// Average returns the mean of the parent values that parse as numbers,
// formatted with two decimals. Unparsable values are excluded from the
// denominator; with no numeric values the result is Empty.
func Average(values []any) any {
	total := 0.0
	count := 0
	for _, value := range values {
		number, ok := coerce.LooseFloat(value)
		if !ok {
			continue
		}
		total += number
		count++
	}
	if count == 0 {
		return Empty
	}
	return strconv.FormatFloat(total/float64(count), 'f', 2, 64)
}

// Concat joins the non-empty parent values with a single space, preserving
// parent order.
func Concat(values []any) string {
	parts := make([]string, 0, len(values))
	for _, value := range values {
		if !coerce.Truthy(value) {
			continue
		}
		parts = append(parts, coerce.String(value))
	}
	return strings.Join(parts, " ")
}

// Custom substitutes every occurrence of each parent id in formula with the
// parent's value and evaluates the result as an arithmetic expression. Empty
// parent values substitute as 0 and booleans as 1 or 0. Longer ids are matched first so an id that
// prefixes another does not clobber it, and substituted text is never
// rescanned. Any failure yields Empty.
func Custom(formula string, parentIDs []string, values []any) any {
	if strings.TrimSpace(formula) == "" {
		return Empty
	}

	substituted := substitute(formula, parentIDs, values)
	result, err := expr.New().Eval(substituted, expr.Context{})
	if err != nil {
		return Empty
	}
	return result
}

func substitute(formula string, parentIDs []string, values []any) string {
	type pair struct {
		id    string
		value string
	}
	pairs := make([]pair, 0, len(parentIDs))
	seen := make(map[string]struct{}, len(parentIDs))
	for idx, id := range parentIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		var value any
		if idx < len(values) {
			value = values[idx]
		}
		text := "0"
		switch v := value.(type) {
		case bool:
			if v {
				text = "1"
			}
		default:
			if coerce.Truthy(v) {
				text = coerce.String(v)
			}
		}
		pairs = append(pairs, pair{id: id, value: text})
	}
	if len(pairs) == 0 {
		return formula
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return len(pairs[i].id) > len(pairs[j].id)
	})
	oldnew := make([]string, 0, len(pairs)*2)
	for _, p := range pairs {
		oldnew = append(oldnew, p.id, p.value)
	}
	return strings.NewReplacer(oldnew...).Replace(formula)
}
