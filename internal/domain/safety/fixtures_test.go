package safety

import (
	"context"
	"fmt"

	"github.com/vitalcare/go-medsafe/internal/refdata"
)

// testStore returns a reference store with the rules the package tests
// exercise.
func testStore() *refdata.MemoryStore {
	return refdata.NewMemoryStore(refdata.Dataset{
		DrugClasses: map[string]string{
			"Penicillin": "penicillin",
			"Cephalexin": "cephalosporin",
			"Warfarin":   "anticoagulant",
			"Aspirin":    "salicylate",
			"Ibuprofen":  "nsaid",
			"Metformin":  "biguanide",
		},
		CrossReactivity: []refdata.CrossReactivityPattern{
			{AllergenClass: "penicillin", CrossReactiveClasses: []string{"cephalosporin"}, RiskPercentage: 10},
		},
		Interactions: []refdata.InteractionRule{
			{ClassA: "anticoagulant", ClassB: "salicylate", Severity: "major",
				Mechanism:      "additive anticoagulant effect",
				Recommendation: "monitor INR closely"},
			{ClassA: "anticoagulant", ClassB: "nsaid", Severity: "moderate",
				Mechanism: "increased bleeding risk"},
		},
		Contraindications: []refdata.ContraindicationRule{
			{DrugClass: "nsaid", ConditionCode: "N18", Type: "absolute", Severity: "severe",
				Rationale: "NSAIDs worsen chronic kidney disease"},
			{DrugClass: "biguanide", ConditionCode: "N18", Type: "relative", Severity: "moderate",
				Rationale: "lactic acidosis risk with reduced clearance"},
		},
		DoseRules: []refdata.DoseRule{
			{Medication: "Metformin", DrugClass: "biguanide",
				MinDose: 500, MaxDose: 2000, Unit: "mg",
				RenalClearanceThreshold: 45,
				RenalAdjustmentFactor:   0.5,
				HepaticAdjustmentFactor: 0.5},
		},
	})
}

// failingStore fails every lookup, standing in for an unreachable backend.
type failingStore struct{}

func (failingStore) DrugClass(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: connection refused", refdata.ErrUnavailable)
}

func (failingStore) CrossReactivity(context.Context, string) (*refdata.CrossReactivityPattern, error) {
	return nil, fmt.Errorf("%w: connection refused", refdata.ErrUnavailable)
}

func (failingStore) Interaction(context.Context, string, string) (*refdata.InteractionRule, error) {
	return nil, fmt.Errorf("%w: connection refused", refdata.ErrUnavailable)
}

func (failingStore) Contraindication(context.Context, string, string) (*refdata.ContraindicationRule, error) {
	return nil, fmt.Errorf("%w: connection refused", refdata.ErrUnavailable)
}

func (failingStore) DoseRule(context.Context, string, string) (*refdata.DoseRule, error) {
	return nil, fmt.Errorf("%w: connection refused", refdata.ErrUnavailable)
}
