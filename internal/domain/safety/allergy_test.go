package safety

import (
	"context"
	"fmt"
	"testing"

	"github.com/vitalcare/go-medsafe/internal/refdata"
)

func TestAllergyDirectMatch(t *testing.T) {
	checker := NewAllergyChecker(testStore(), nil)

	result := checker.Check(context.Background(),
		[]Medication{{Name: "Penicillin"}},
		[]AllergyRecord{{Allergen: "Penicillin", Severity: SeveritySevere, Reaction: "anaphylaxis"}},
	)

	if result.Status != StatusOK {
		t.Fatalf("status = %v, want ok", result.Status)
	}
	if len(result.Alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(result.Alerts))
	}
	alert := result.Alerts[0]
	if alert.Type != "direct-match" {
		t.Errorf("type = %q, want direct-match", alert.Type)
	}
	if result.HighestSeverity != SeveritySevere {
		t.Errorf("highest severity = %v, want severe", result.HighestSeverity)
	}
	if !result.BlocksAdministration {
		t.Error("severe direct match must block administration")
	}
}

func TestAllergyDirectMatchIsCaseInsensitive(t *testing.T) {
	checker := NewAllergyChecker(testStore(), nil)

	result := checker.Check(context.Background(),
		[]Medication{{Name: "penicillin"}},
		[]AllergyRecord{{Allergen: "PENICILLIN", Severity: SeverityMild}},
	)

	if len(result.Alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(result.Alerts))
	}
	if result.BlocksAdministration {
		t.Error("mild match must not block")
	}
}

func TestAllergyCrossReactive(t *testing.T) {
	checker := NewAllergyChecker(testStore(), nil)

	result := checker.Check(context.Background(),
		[]Medication{{Name: "Cephalexin"}},
		[]AllergyRecord{{Allergen: "Penicillin", AllergenClass: "penicillin"}},
	)

	if len(result.Alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(result.Alerts))
	}
	alert := result.Alerts[0]
	if alert.Type != "cross-reactive" {
		t.Errorf("type = %q, want cross-reactive", alert.Type)
	}
	if alert.RiskPercentage != 10 {
		t.Errorf("risk percentage = %d, want 10", alert.RiskPercentage)
	}
	// A record without severity defaults conservatively rather than none.
	if alert.Severity != SeverityModerate {
		t.Errorf("severity = %v, want moderate", alert.Severity)
	}
}

func TestAllergyExplicitCrossReactiveClasses(t *testing.T) {
	checker := NewAllergyChecker(testStore(), nil)

	result := checker.Check(context.Background(),
		[]Medication{{Name: "SomeNewDrug", DrugClass: "cephalosporin"}},
		[]AllergyRecord{{
			Allergen:             "Penicillin",
			Severity:             SeveritySevere,
			CrossReactiveClasses: []string{"cephalosporin"},
		}},
	)

	if len(result.Alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(result.Alerts))
	}
	if result.Alerts[0].Type != "cross-reactive" {
		t.Errorf("type = %q, want cross-reactive", result.Alerts[0].Type)
	}
	if !result.BlocksAdministration {
		t.Error("severe cross-reactive match must block")
	}
}

func TestAllergyNoRecords(t *testing.T) {
	checker := NewAllergyChecker(testStore(), nil)

	result := checker.Check(context.Background(),
		[]Medication{{Name: "Penicillin"}}, nil)

	if result.Status != StatusOK {
		t.Errorf("status = %v, want ok", result.Status)
	}
	if result.HasAlerts {
		t.Error("expected no alerts")
	}
	if result.BlocksAdministration {
		t.Error("expected no block")
	}
}

func TestAllergyDirectMatchSurvivesStoreOutage(t *testing.T) {
	// A direct name match needs no reference lookup and must be reported
	// even when cross-reactivity resolution is down.
	checker := NewAllergyChecker(failingStore{}, nil)

	result := checker.Check(context.Background(),
		[]Medication{{Name: "Penicillin"}},
		[]AllergyRecord{{Allergen: "Penicillin", Severity: SeveritySevere}},
	)

	if len(result.Alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(result.Alerts))
	}
	if !result.BlocksAdministration {
		t.Error("severe match must still block during an outage")
	}
}

// flakyPatternStore fails cross-reactivity lookups for one allergen class
// while the rest of the store keeps answering.
type flakyPatternStore struct {
	*refdata.MemoryStore
	failClass string
}

func (s flakyPatternStore) CrossReactivity(ctx context.Context, allergenClass string) (*refdata.CrossReactivityPattern, error) {
	if refdata.Normalize(allergenClass) == s.failClass {
		return nil, fmt.Errorf("%w: connection refused", refdata.ErrUnavailable)
	}
	return s.MemoryStore.CrossReactivity(ctx, allergenClass)
}

func TestAllergyMatchDoesNotMaskDegradedRecord(t *testing.T) {
	// The sulfonamide pattern lookup fails before the penicillin record
	// matches. The match must be reported, and the failed record must
	// still degrade the status: it could be hiding a second alert.
	checker := NewAllergyChecker(flakyPatternStore{
		MemoryStore: testStore(),
		failClass:   "sulfonamide",
	}, nil)

	result := checker.Check(context.Background(),
		[]Medication{{Name: "Cephalexin"}},
		[]AllergyRecord{
			{Allergen: "Sulfamethoxazole", AllergenClass: "sulfonamide"},
			{Allergen: "Penicillin", AllergenClass: "penicillin"},
		},
	)

	if len(result.Alerts) != 1 {
		t.Fatalf("got %d alerts, want the cross-reactive match", len(result.Alerts))
	}
	if result.Alerts[0].Type != "cross-reactive" {
		t.Errorf("type = %q, want cross-reactive", result.Alerts[0].Type)
	}
	if result.Status != StatusUnknown {
		t.Errorf("status = %v, want unknown while a pattern lookup failed", result.Status)
	}
}

func TestAllergyDegradedLookup(t *testing.T) {
	checker := NewAllergyChecker(failingStore{}, nil)

	result := checker.Check(context.Background(),
		[]Medication{{Name: "Cephalexin"}},
		[]AllergyRecord{{Allergen: "Sulfamethoxazole", AllergenClass: "sulfonamide"}},
	)

	if result.Status != StatusUnknown {
		t.Fatalf("status = %v, want unknown", result.Status)
	}
	if result.HasAlerts {
		t.Error("a degraded lookup must not synthesize a match")
	}
}
