// Package refdata provides read-only clinical reference data: drug-class
// resolution, cross-reactivity patterns, interaction rules, contraindication
// rules, and dose bounds. Reference data is immutable for the life of a
// process; lookups are safe for concurrent use without synchronization.
package refdata

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable marks a lookup that could not be evaluated because the
// backing store was unreachable. Checkers map it to a degraded sub-result;
// it must never be collapsed into "no match".
var ErrUnavailable = errors.New("reference data unavailable")

// CrossReactivityPattern maps an allergen class to the drug classes known to
// cross-react with it, with the published reaction probability.
type CrossReactivityPattern struct {
	AllergenClass        string
	CrossReactiveClasses []string
	RiskPercentage       int
}

// CrossReactsWith reports whether the given drug class is in the pattern's
// cross-reactive set.
func (p *CrossReactivityPattern) CrossReactsWith(drugClass string) bool {
	for _, class := range p.CrossReactiveClasses {
		if strings.EqualFold(class, drugClass) {
			return true
		}
	}
	return false
}

// InteractionRule is a known drug-drug interaction keyed by an unordered
// drug-class pair.
type InteractionRule struct {
	ClassA         string
	ClassB         string
	Severity       string
	Mechanism      string
	Recommendation string
}

// ContraindicationRule is keyed by (drugClass, conditionCode).
type ContraindicationRule struct {
	DrugClass      string
	ConditionCode  string
	Type           string // "absolute" or "relative"
	Severity       string
	Rationale      string
	Recommendation string
}

// DoseRule holds safe dose bounds for a medication, with documented
// adjustment factors applied before comparison.
type DoseRule struct {
	Medication              string
	DrugClass               string
	MinDose                 float64
	MaxDose                 float64
	Unit                    string
	RenalClearanceThreshold float64 // mL/min below which renal adjustment applies
	RenalAdjustmentFactor   float64 // multiplier on MaxDose, e.g. 0.5
	HepaticAdjustmentFactor float64
}

// Store is the synchronous lookup capability the checkers depend on.
// A nil result with a nil error means "no rule"; an error wrapping
// ErrUnavailable means the store could not answer.
type Store interface {
	// DrugClass resolves a medication name to its drug class. Returns ""
	// without error when the medication is not classified.
	DrugClass(ctx context.Context, medicationName string) (string, error)

	// CrossReactivity returns the pattern for an allergen class, or nil.
	CrossReactivity(ctx context.Context, allergenClass string) (*CrossReactivityPattern, error)

	// Interaction looks up a rule by unordered drug-class pair, or nil.
	Interaction(ctx context.Context, classA, classB string) (*InteractionRule, error)

	// Contraindication looks up a rule by (drugClass, conditionCode), or nil.
	Contraindication(ctx context.Context, drugClass, conditionCode string) (*ContraindicationRule, error)

	// DoseRule looks up dose bounds by medication name, falling back to the
	// drug class, or nil.
	DoseRule(ctx context.Context, medicationName, drugClass string) (*DoseRule, error)
}

// Normalize is the shared name normalization: case-insensitive, trimmed.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// PairKey builds an order-independent key for a class pair.
func PairKey(a, b string) string {
	a, b = Normalize(a), Normalize(b)
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// MemoryStore is an immutable in-memory Store, loaded once at startup.
// It backs tests and static deployments where the rule set ships with the
// process.
type MemoryStore struct {
	drugClasses       map[string]string
	crossReactivity   map[string]*CrossReactivityPattern
	interactions      map[string]*InteractionRule
	contraindications map[string]*ContraindicationRule
	doseRules         map[string]*DoseRule
	doseRulesByClass  map[string]*DoseRule
}

// Dataset is the raw rule set a MemoryStore is built from.
type Dataset struct {
	DrugClasses       map[string]string
	CrossReactivity   []CrossReactivityPattern
	Interactions      []InteractionRule
	Contraindications []ContraindicationRule
	DoseRules         []DoseRule
}

// NewMemoryStore builds an immutable store from the dataset. The dataset is
// copied; later mutation of the argument does not affect the store.
func NewMemoryStore(data Dataset) *MemoryStore {
	s := &MemoryStore{
		drugClasses:       make(map[string]string, len(data.DrugClasses)),
		crossReactivity:   make(map[string]*CrossReactivityPattern, len(data.CrossReactivity)),
		interactions:      make(map[string]*InteractionRule, len(data.Interactions)),
		contraindications: make(map[string]*ContraindicationRule, len(data.Contraindications)),
		doseRules:         make(map[string]*DoseRule, len(data.DoseRules)),
		doseRulesByClass:  make(map[string]*DoseRule),
	}

	for name, class := range data.DrugClasses {
		s.drugClasses[Normalize(name)] = Normalize(class)
	}
	for i := range data.CrossReactivity {
		p := data.CrossReactivity[i]
		s.crossReactivity[Normalize(p.AllergenClass)] = &p
	}
	for i := range data.Interactions {
		r := data.Interactions[i]
		s.interactions[PairKey(r.ClassA, r.ClassB)] = &r
	}
	for i := range data.Contraindications {
		r := data.Contraindications[i]
		s.contraindications[Normalize(r.DrugClass)+"|"+Normalize(r.ConditionCode)] = &r
	}
	for i := range data.DoseRules {
		r := data.DoseRules[i]
		if r.Medication != "" {
			s.doseRules[Normalize(r.Medication)] = &r
		}
		if r.DrugClass != "" {
			s.doseRulesByClass[Normalize(r.DrugClass)] = &r
		}
	}

	return s
}

// DrugClass implements Store.
func (s *MemoryStore) DrugClass(_ context.Context, medicationName string) (string, error) {
	return s.drugClasses[Normalize(medicationName)], nil
}

// CrossReactivity implements Store.
func (s *MemoryStore) CrossReactivity(_ context.Context, allergenClass string) (*CrossReactivityPattern, error) {
	return s.crossReactivity[Normalize(allergenClass)], nil
}

// Interaction implements Store.
func (s *MemoryStore) Interaction(_ context.Context, classA, classB string) (*InteractionRule, error) {
	return s.interactions[PairKey(classA, classB)], nil
}

// Contraindication implements Store.
func (s *MemoryStore) Contraindication(_ context.Context, drugClass, conditionCode string) (*ContraindicationRule, error) {
	return s.contraindications[Normalize(drugClass)+"|"+Normalize(conditionCode)], nil
}

// DoseRule implements Store.
func (s *MemoryStore) DoseRule(_ context.Context, medicationName, drugClass string) (*DoseRule, error) {
	if rule, ok := s.doseRules[Normalize(medicationName)]; ok {
		return rule, nil
	}
	if rule, ok := s.doseRulesByClass[Normalize(drugClass)]; ok {
		return rule, nil
	}
	return nil, nil
}
