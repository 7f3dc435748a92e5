package reconciliation

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/core/entity"
)

// Rule is an operator-defined anomaly check written as a CEL expression
// over one movement. The expression must evaluate to a boolean; true
// means the movement is anomalous.
//
// Available variables: rate, quantity, unit_price, tax_amount (doubles),
// movement_type, rate_source, category (strings), quarter, semester,
// year (ints).
type Rule struct {
	Name       string   `json:"name"`
	Expression string   `json:"expression"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
}

// RuleSet holds compiled rules ready for evaluation.
type RuleSet struct {
	rules []compiledRule
}

type compiledRule struct {
	rule    Rule
	program cel.Program
}

// CompileRules builds a RuleSet, rejecting expressions that do not
// compile or do not yield a boolean.
func CompileRules(rules []Rule) (*RuleSet, error) {
	env, err := cel.NewEnv(
		cel.Variable("rate", cel.DoubleType),
		cel.Variable("quantity", cel.DoubleType),
		cel.Variable("unit_price", cel.DoubleType),
		cel.Variable("tax_amount", cel.DoubleType),
		cel.Variable("movement_type", cel.StringType),
		cel.Variable("rate_source", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("quarter", cel.IntType),
		cel.Variable("semester", cel.IntType),
		cel.Variable("year", cel.IntType),
	)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	set := &RuleSet{}
	for _, r := range rules {
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, apperror.NewValidation("rule expression does not compile").
				WithDetail("rule", r.Name).
				WithDetail("error", issues.Err().Error())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, apperror.NewValidation("rule expression must yield a boolean").
				WithDetail("rule", r.Name).
				WithDetail("type", ast.OutputType().String())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, apperror.NewValidation("rule expression cannot be planned").
				WithDetail("rule", r.Name).
				WithDetail("error", err.Error())
		}
		set.rules = append(set.rules, compiledRule{rule: r, program: program})
	}
	return set, nil
}

// Evaluate runs every rule against one movement. Evaluation errors are
// surfaced as anomalies themselves so a broken rule is visible rather
// than silently inert.
func (s *RuleSet) Evaluate(m *entity.TaxMovement) []Anomaly {
	if s == nil || len(s.rules) == 0 {
		return nil
	}

	rate, _ := m.Rate.Float64()
	unitPrice, _ := m.UnitPrice.Float64()
	taxAmount, _ := m.TaxAmount.Float64()
	vars := map[string]any{
		"rate":          rate,
		"quantity":      m.Quantity.Float64(),
		"unit_price":    unitPrice,
		"tax_amount":    taxAmount,
		"movement_type": string(m.MovementType),
		"rate_source":   string(m.RateSource),
		"category":      m.Category,
		"quarter":       m.Quarter,
		"semester":      m.Semester,
		"year":          m.Year,
	}

	var out []Anomaly
	for _, cr := range s.rules {
		val, _, err := cr.program.Eval(vars)
		if err != nil {
			out = append(out, Anomaly{
				MovementID: m.ID,
				ItemID:     m.ItemID,
				Kind:       AnomalyCustomRule,
				Severity:   SeverityWarning,
				Message:    fmt.Sprintf("rule %q failed to evaluate: %v", cr.rule.Name, err),
			})
			continue
		}
		fired, ok := val.Value().(bool)
		if !ok || !fired {
			continue
		}
		message := cr.rule.Message
		if message == "" {
			message = fmt.Sprintf("rule %q matched", cr.rule.Name)
		}
		severity := cr.rule.Severity
		if severity == "" {
			severity = SeverityWarning
		}
		out = append(out, Anomaly{
			MovementID: m.ID,
			ItemID:     m.ItemID,
			Kind:       AnomalyCustomRule,
			Severity:   severity,
			Message:    message,
			Details:    map[string]any{"rule": cr.rule.Name},
		})
	}
	return out
}
