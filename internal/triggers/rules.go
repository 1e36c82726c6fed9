// Package triggers loads TriggerRules from YAML, hot reloads them on a
// Redis pub/sub notification with an all-or-nothing validation pass, and
// evaluates enabled rules against a mint's snapshot with per-mint alert
// cooldown.
package triggers

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rlaau/swapsentry/shared/domain"
)

type ruleFile struct {
	Rules []ruleYAML `yaml:"rules"`
}

type ruleYAML struct {
	Name       string          `yaml:"name"`
	Enabled    bool            `yaml:"enabled"`
	Conditions []conditionYAML `yaml:"conditions"`
}

type conditionYAML struct {
	Field   string  `yaml:"field"`
	Op      string  `yaml:"op"`
	Literal float64 `yaml:"literal"`
}

// Evaluator holds the live, atomically-swapped rule list plus per-mint
// cooldown bookkeeping.
type Evaluator struct {
	rules    atomic.Pointer[[]domain.TriggerRule]
	cooldown time.Duration

	lastFired map[cooldownKey]time.Time
}

type cooldownKey struct {
	mint domain.Address
	rule string
}

func NewEvaluator(cooldown time.Duration) *Evaluator {
	e := &Evaluator{cooldown: cooldown, lastFired: make(map[cooldownKey]time.Time)}
	empty := []domain.TriggerRule{}
	e.rules.Store(&empty)
	return e
}

// LoadFile parses and validates a rule file, replacing the live rule list
// only if every rule is valid.
func (e *Evaluator) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("triggers: read %s: %w", path, err)
	}
	return e.Load(raw)
}

func (e *Evaluator) Load(raw []byte) error {
	var rf ruleFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return fmt.Errorf("triggers: parse yaml: %w", err)
	}

	rules := make([]domain.TriggerRule, 0, len(rf.Rules))
	for _, ry := range rf.Rules {
		rule, err := validate(ry)
		if err != nil {
			return fmt.Errorf("triggers: rule %q: %w", ry.Name, err)
		}
		rules = append(rules, rule)
	}

	e.rules.Store(&rules)
	return nil
}

func validate(ry ruleYAML) (domain.TriggerRule, error) {
	if ry.Name == "" {
		return domain.TriggerRule{}, fmt.Errorf("rule name is required")
	}
	conds := make([]domain.Predicate, 0, len(ry.Conditions))
	for _, c := range ry.Conditions {
		field := domain.FieldID(c.Field)
		if _, ok := domain.KnownFields[field]; !ok {
			return domain.TriggerRule{}, fmt.Errorf("unknown field %q", c.Field)
		}
		op := domain.Op(c.Op)
		switch op {
		case domain.OpGT, domain.OpGTE, domain.OpLT, domain.OpLTE, domain.OpEQ:
		default:
			return domain.TriggerRule{}, fmt.Errorf("unknown operator %q", c.Op)
		}
		conds = append(conds, domain.Predicate{Field: field, Op: op, Literal: c.Literal})
	}
	return domain.TriggerRule{Name: ry.Name, Enabled: ry.Enabled, Conditions: conds}, nil
}

// Fired is one rule that fired for a mint on this evaluation, after
// cooldown suppression.
type Fired struct {
	Rule domain.TriggerRule
}

// Evaluate checks every enabled rule against snapshot and returns the
// rules that fired and are not within their per-mint cooldown.
func (e *Evaluator) Evaluate(mint domain.Address, snapshot map[domain.FieldID]float64, now time.Time) []Fired {
	rules := *e.rules.Load()
	var fired []Fired
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if !allConditionsTrue(r, snapshot) {
			continue
		}
		key := cooldownKey{mint: mint, rule: r.Name}
		if last, ok := e.lastFired[key]; ok && now.Sub(last) < e.cooldown {
			continue
		}
		e.lastFired[key] = now
		fired = append(fired, Fired{Rule: r})
	}
	return fired
}

func allConditionsTrue(r domain.TriggerRule, snapshot map[domain.FieldID]float64) bool {
	for _, c := range r.Conditions {
		v := snapshot[c.Field]
		if !compare(v, c.Op, c.Literal) {
			return false
		}
	}
	return true
}

func compare(v float64, op domain.Op, literal float64) bool {
	switch op {
	case domain.OpGT:
		return v > literal
	case domain.OpGTE:
		return v >= literal
	case domain.OpLT:
		return v < literal
	case domain.OpLTE:
		return v <= literal
	case domain.OpEQ:
		return v == literal
	default:
		return false
	}
}
