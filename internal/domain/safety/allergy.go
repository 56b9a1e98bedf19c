package safety

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/vitalcare/go-medsafe/internal/refdata"
)

// AllergyChecker matches proposed medications against the patient's allergy
// history, directly by allergen name and indirectly via class
// cross-reactivity patterns.
type AllergyChecker struct {
	store  refdata.Store
	logger *zap.Logger
}

// NewAllergyChecker creates a checker over the given reference store.
func NewAllergyChecker(store refdata.Store, logger *zap.Logger) *AllergyChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllergyChecker{store: store, logger: logger}
}

// Check evaluates each proposed medication against the allergy records.
// An empty allergy list yields an empty, non-degraded result. A failed
// reference lookup degrades the result status without synthesizing a match.
func (c *AllergyChecker) Check(ctx context.Context, medications []Medication, allergies []AllergyRecord) AllergyResult {
	result := AllergyResult{
		Status: StatusOK,
		Alerts: []AllergyAlert{},
	}
	if len(allergies) == 0 {
		return result
	}

	for _, med := range medications {
		if alert, ok := c.directMatch(med, allergies); ok {
			result.Alerts = append(result.Alerts, alert)
			continue
		}

		alert, ok, err := c.crossReactiveMatch(ctx, med, allergies)
		if ok {
			result.Alerts = append(result.Alerts, alert)
		}
		if err != nil {
			// Degraded lookup: keep whatever was found, but the result
			// must not read as a clean "no cross-reactivity". A match on
			// one record does not vouch for the records whose patterns
			// could not be read.
			result.Status = StatusUnknown
			c.logger.Warn("cross-reactivity lookup degraded",
				zap.String("medication", med.Name),
				zap.Error(err))
		}
	}

	for _, alert := range result.Alerts {
		result.HighestSeverity = MaxSeverity(result.HighestSeverity, alert.Severity)
	}
	result.HasAlerts = len(result.Alerts) > 0
	result.BlocksAdministration = result.HighestSeverity.Blocks()
	return result
}

// directMatch compares the normalized medication name against each recorded
// allergen name.
func (c *AllergyChecker) directMatch(med Medication, allergies []AllergyRecord) (AllergyAlert, bool) {
	name := refdata.Normalize(med.Name)
	for _, record := range allergies {
		if refdata.Normalize(record.Allergen) != name {
			continue
		}
		return AllergyAlert{
			Type:          "direct-match",
			Medication:    med.Name,
			Allergen:      record.Allergen,
			AllergenClass: record.AllergenClass,
			Severity:      record.Severity,
			Reaction:      record.Reaction,
		}, true
	}
	return AllergyAlert{}, false
}

// crossReactiveMatch resolves the medication's drug class and tests it
// against each allergy's cross-reactivity pattern. Explicit cross-reactive
// classes on the record are honored ahead of the reference patterns.
func (c *AllergyChecker) crossReactiveMatch(ctx context.Context, med Medication, allergies []AllergyRecord) (AllergyAlert, bool, error) {
	drugClass := med.DrugClass
	if drugClass == "" {
		resolved, err := c.store.DrugClass(ctx, med.Name)
		if err != nil {
			return AllergyAlert{}, false, err
		}
		drugClass = resolved
	}
	if drugClass == "" {
		// Unclassified medication: nothing to infer from, not an error.
		return AllergyAlert{}, false, nil
	}

	var degraded error
	for _, record := range allergies {
		for _, explicit := range record.CrossReactiveClasses {
			if refdata.Normalize(explicit) == refdata.Normalize(drugClass) {
				return c.crossAlert(med, record, 0), true, degraded
			}
		}

		if record.AllergenClass == "" {
			continue
		}
		pattern, err := c.store.CrossReactivity(ctx, record.AllergenClass)
		if err != nil {
			degraded = errors.Join(degraded, err)
			continue
		}
		if pattern == nil {
			// No pattern for this class: treat as no cross-reactivity.
			continue
		}
		if pattern.CrossReactsWith(drugClass) {
			return c.crossAlert(med, record, pattern.RiskPercentage), true, degraded
		}
	}
	return AllergyAlert{}, false, degraded
}

func (c *AllergyChecker) crossAlert(med Medication, record AllergyRecord, riskPct int) AllergyAlert {
	severity := record.Severity
	if severity == SeverityNone {
		severity = SeverityModerate
	}
	return AllergyAlert{
		Type:           "cross-reactive",
		Medication:     med.Name,
		Allergen:       record.Allergen,
		AllergenClass:  record.AllergenClass,
		Severity:       severity,
		Reaction:       record.Reaction,
		RiskPercentage: riskPct,
	}
}
