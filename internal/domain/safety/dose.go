package safety

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vitalcare/go-medsafe/internal/refdata"
)

// doseWarningMargin flags doses within this fraction of the (adjusted)
// upper bound as near-limit warnings.
const doseWarningMargin = 0.1

// DoseValidator checks proposed doses against reference bounds, applying
// documented renal and hepatic adjustment factors before comparison.
type DoseValidator struct {
	store  refdata.Store
	logger *zap.Logger
}

// NewDoseValidator creates a validator over the given reference store.
func NewDoseValidator(store refdata.Store, logger *zap.Logger) *DoseValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DoseValidator{store: store, logger: logger}
}

// Check validates every proposed medication that carries a dose. Medications
// without a dose or without a matching rule pass through unflagged.
func (v *DoseValidator) Check(ctx context.Context, medications []Medication, attrs PatientAttributes) DoseResult {
	result := DoseResult{
		Status:   StatusOK,
		Errors:   []DoseFinding{},
		Warnings: []DoseFinding{},
	}

	for _, med := range medications {
		if med.Dose <= 0 {
			continue
		}

		rule, err := v.store.DoseRule(ctx, med.Name, med.DrugClass)
		if err != nil {
			result.Status = StatusUnknown
			v.logger.Warn("dose rule lookup degraded",
				zap.String("medication", med.Name),
				zap.Error(err))
			break
		}
		if rule == nil {
			continue
		}
		if rule.Unit != "" && med.DoseUnit != "" && refdata.Normalize(rule.Unit) != refdata.Normalize(med.DoseUnit) {
			result.Warnings = append(result.Warnings, DoseFinding{
				Medication: med.Name,
				Message: fmt.Sprintf("dose unit %q does not match reference unit %q; bounds not applied",
					med.DoseUnit, rule.Unit),
			})
			continue
		}

		maxDose, adjustments := adjustedMax(rule, attrs)

		switch {
		case med.Dose < rule.MinDose:
			result.Errors = append(result.Errors, DoseFinding{
				Medication: med.Name,
				Message: fmt.Sprintf("dose %.4g %s is below the minimum effective dose %.4g %s",
					med.Dose, rule.Unit, rule.MinDose, rule.Unit),
			})
		case med.Dose > maxDose:
			msg := fmt.Sprintf("dose %.4g %s exceeds the maximum safe dose %.4g %s",
				med.Dose, rule.Unit, maxDose, rule.Unit)
			if adjustments != "" {
				msg += " (" + adjustments + ")"
			}
			result.Errors = append(result.Errors, DoseFinding{Medication: med.Name, Message: msg})
		case med.Dose >= maxDose*(1-doseWarningMargin):
			result.Warnings = append(result.Warnings, DoseFinding{
				Medication: med.Name,
				Message: fmt.Sprintf("dose %.4g %s is within %.0f%% of the maximum safe dose %.4g %s",
					med.Dose, rule.Unit, doseWarningMargin*100, maxDose, rule.Unit),
			})
		}
	}

	result.HasErrors = len(result.Errors) > 0
	result.HasWarnings = len(result.Warnings) > 0
	return result
}

// adjustedMax applies renal and hepatic reduction factors to the rule's
// upper bound and describes which adjustments were applied.
func adjustedMax(rule *refdata.DoseRule, attrs PatientAttributes) (float64, string) {
	max := rule.MaxDose
	var applied string

	if rule.RenalAdjustmentFactor > 0 && rule.RenalAdjustmentFactor < 1 &&
		attrs.CreatinineClearance > 0 && attrs.CreatinineClearance < rule.RenalClearanceThreshold {
		max *= rule.RenalAdjustmentFactor
		applied = "renal adjustment applied"
	}
	if rule.HepaticAdjustmentFactor > 0 && rule.HepaticAdjustmentFactor < 1 && attrs.HepaticImpairment {
		max *= rule.HepaticAdjustmentFactor
		if applied != "" {
			applied += ", hepatic adjustment applied"
		} else {
			applied = "hepatic adjustment applied"
		}
	}
	return max, applied
}
