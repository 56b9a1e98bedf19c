package refdata

import (
	"context"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Warfarin", "warfarin"},
		{"  ASPIRIN  ", "aspirin"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPairKeyOrderIndependent(t *testing.T) {
	if PairKey("anticoagulant", "salicylate") != PairKey("Salicylate", "ANTICOAGULANT") {
		t.Error("pair key must not depend on argument order or case")
	}
	if PairKey("a", "b") == PairKey("a", "c") {
		t.Error("distinct pairs must have distinct keys")
	}
}

func TestCrossReactsWith(t *testing.T) {
	p := &CrossReactivityPattern{
		AllergenClass:        "penicillin",
		CrossReactiveClasses: []string{"cephalosporin"},
		RiskPercentage:       10,
	}
	if !p.CrossReactsWith("Cephalosporin") {
		t.Error("match must be case-insensitive")
	}
	if p.CrossReactsWith("nsaid") {
		t.Error("unrelated class matched")
	}
}

func testMemoryStore() *MemoryStore {
	return NewMemoryStore(Dataset{
		DrugClasses: map[string]string{
			"Warfarin": "anticoagulant",
			"Aspirin":  "salicylate",
		},
		CrossReactivity: []CrossReactivityPattern{
			{AllergenClass: "penicillin", CrossReactiveClasses: []string{"cephalosporin"}, RiskPercentage: 10},
		},
		Interactions: []InteractionRule{
			{ClassA: "anticoagulant", ClassB: "salicylate", Severity: "major"},
		},
		Contraindications: []ContraindicationRule{
			{DrugClass: "nsaid", ConditionCode: "N18", Type: "absolute", Severity: "severe"},
		},
		DoseRules: []DoseRule{
			{Medication: "Metformin", DrugClass: "biguanide", MinDose: 500, MaxDose: 2000, Unit: "mg"},
		},
	})
}

func TestMemoryStoreDrugClass(t *testing.T) {
	s := testMemoryStore()
	ctx := context.Background()

	class, err := s.DrugClass(ctx, "  warfarin ")
	if err != nil || class != "anticoagulant" {
		t.Errorf("DrugClass = %q, %v", class, err)
	}
	class, err = s.DrugClass(ctx, "unknown-med")
	if err != nil || class != "" {
		t.Errorf("unclassified medication should yield %q, got %q, %v", "", class, err)
	}
}

func TestMemoryStoreInteractionPairLookup(t *testing.T) {
	s := testMemoryStore()
	ctx := context.Background()

	rule, err := s.Interaction(ctx, "salicylate", "anticoagulant")
	if err != nil {
		t.Fatalf("Interaction: %v", err)
	}
	if rule == nil || rule.Severity != "major" {
		t.Errorf("reversed pair lookup = %+v", rule)
	}

	rule, err = s.Interaction(ctx, "anticoagulant", "biguanide")
	if err != nil || rule != nil {
		t.Errorf("missing pair should be nil, nil; got %+v, %v", rule, err)
	}
}

func TestMemoryStoreContraindication(t *testing.T) {
	s := testMemoryStore()
	ctx := context.Background()

	rule, err := s.Contraindication(ctx, "NSAID", "n18")
	if err != nil {
		t.Fatalf("Contraindication: %v", err)
	}
	if rule == nil || rule.Type != "absolute" {
		t.Errorf("lookup = %+v", rule)
	}
}

func TestMemoryStoreDoseRuleFallback(t *testing.T) {
	s := testMemoryStore()
	ctx := context.Background()

	rule, err := s.DoseRule(ctx, "metformin", "")
	if err != nil || rule == nil || rule.MaxDose != 2000 {
		t.Fatalf("name lookup = %+v, %v", rule, err)
	}

	rule, err = s.DoseRule(ctx, "Metformin XR", "biguanide")
	if err != nil || rule == nil {
		t.Fatalf("class fallback = %+v, %v", rule, err)
	}

	rule, err = s.DoseRule(ctx, "unknown", "unknown-class")
	if err != nil || rule != nil {
		t.Errorf("missing rule should be nil, nil; got %+v, %v", rule, err)
	}
}

func TestMemoryStoreCrossReactivityMiss(t *testing.T) {
	s := testMemoryStore()
	pattern, err := s.CrossReactivity(context.Background(), "statin")
	if err != nil || pattern != nil {
		t.Errorf("missing pattern should be nil, nil; got %+v, %v", pattern, err)
	}
}
