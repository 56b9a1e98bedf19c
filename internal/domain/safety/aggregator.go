package safety

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scoring weights per finding. A degraded checker contributes its own weight
// once, so an unevaluated subsystem can never pull the verdict toward "low".
const (
	weightInteraction      = 2
	weightAllergy          = 3
	weightContraindication = 4
	weightDoseError        = 2
	weightDoseWarning      = 1
)

// Risk level thresholds on the aggregate score.
const (
	scoreHighThreshold   = 10
	scoreMediumThreshold = 5
)

// RiskAggregator combines the four checker outputs into one deterministic
// verdict. It is a pure function of its inputs: identical checker results
// always yield the identical score and level.
type RiskAggregator struct {
	logger *zap.Logger
}

// NewRiskAggregator creates an aggregator.
func NewRiskAggregator(logger *zap.Logger) *RiskAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RiskAggregator{logger: logger}
}

// Aggregate builds the SafetyAssessment. blocksAdministration is an OR of
// independent policies: an absolute contraindication, any finding at or above
// severe/major, or a high aggregate level each force a block on their own.
func (a *RiskAggregator) Aggregate(patientID string, interactions InteractionResult, allergies AllergyResult, contraindications ContraindicationResult, dose DoseResult) *SafetyAssessment {
	score := weightInteraction*len(interactions.Interactions) +
		weightAllergy*len(allergies.Alerts) +
		weightContraindication*len(contraindications.Contraindications)
	if dose.HasErrors {
		score += weightDoseError
	}
	if dose.HasWarnings {
		score += weightDoseWarning
	}

	var factors []string
	if n := len(interactions.Interactions); n > 0 {
		factors = append(factors, fmt.Sprintf("%d drug-drug interaction(s), highest %s", n, interactions.HighestSeverity))
	}
	if n := len(allergies.Alerts); n > 0 {
		factors = append(factors, fmt.Sprintf("%d allergy alert(s), highest %s", n, allergies.HighestSeverity))
	}
	if n := len(contraindications.Contraindications); n > 0 {
		f := fmt.Sprintf("%d contraindication(s)", n)
		if contraindications.HasAbsoluteContraindication {
			f += " including absolute"
		}
		factors = append(factors, f)
	}
	if dose.HasErrors {
		factors = append(factors, fmt.Sprintf("%d dose error(s)", len(dose.Errors)))
	}
	if dose.HasWarnings {
		factors = append(factors, fmt.Sprintf("%d dose warning(s)", len(dose.Warnings)))
	}

	var degraded []string
	if interactions.Status == StatusUnknown {
		degraded = append(degraded, "interactions")
		score += weightInteraction
		factors = append(factors, "interaction check unavailable")
	}
	if allergies.Status == StatusUnknown {
		degraded = append(degraded, "allergies")
		score += weightAllergy
		factors = append(factors, "allergy check unavailable")
	}
	if contraindications.Status == StatusUnknown {
		degraded = append(degraded, "contraindications")
		score += weightContraindication
		factors = append(factors, "contraindication check unavailable")
	}
	if dose.Status == StatusUnknown {
		degraded = append(degraded, "dose")
		score += weightDoseError
		factors = append(factors, "dose validation unavailable")
	}

	level := RiskLow
	switch {
	case score >= scoreHighThreshold:
		level = RiskHigh
	case score >= scoreMediumThreshold:
		level = RiskMedium
	}
	// An unevaluated subsystem must never let the verdict read as clean.
	if len(degraded) > 0 && level == RiskLow {
		level = RiskMedium
	}

	highest := MaxSeverity(
		interactions.HighestSeverity.Canonical(),
		allergies.HighestSeverity,
		contraindications.HighestSeverity,
	)
	// Dose errors are hard findings: they weigh in at blocking severity.
	if dose.HasErrors {
		highest = MaxSeverity(highest, SeveritySevere)
	}

	blocks := contraindications.HasAbsoluteContraindication ||
		highest.Blocks() ||
		level == RiskHigh

	if blocks {
		a.logger.Info("assessment blocks administration",
			zap.String("patient_id", patientID),
			zap.Int("score", score),
			zap.String("level", string(level)),
			zap.String("highest_severity", highest.String()),
			zap.Bool("absolute_contraindication", contraindications.HasAbsoluteContraindication))
	}

	return &SafetyAssessment{
		PatientID:         patientID,
		Interactions:      interactions,
		AllergyAlerts:     allergies,
		Contraindications: contraindications,
		DoseValidation:    dose,
		OverallRisk: OverallRisk{
			Score:   score,
			Level:   level,
			Factors: factors,
		},
		HighestSeverity:      highest,
		BlocksAdministration: blocks,
		Degraded:             degraded,
		AssessedAt:           time.Now().UTC(),
	}
}

// BuildAlert creates the immutable real-time Alert for a high-risk
// assessment. Returns nil when the assessment does not warrant distribution.
func (a *RiskAggregator) BuildAlert(assessment *SafetyAssessment, facilityID, organizationID string) *Alert {
	if assessment.OverallRisk.Level != RiskHigh {
		return nil
	}

	message := fmt.Sprintf("High-risk medication order for patient %s (score %d)",
		assessment.PatientID, assessment.OverallRisk.Score)
	if len(assessment.OverallRisk.Factors) > 0 {
		message += ": " + assessment.OverallRisk.Factors[0]
	}

	return &Alert{
		ID:                     uuid.New().String(),
		AlertType:              "medication-safety",
		Severity:               assessment.HighestSeverity,
		Message:                message,
		PatientID:              assessment.PatientID,
		FacilityID:             facilityID,
		OrganizationID:         organizationID,
		Timestamp:              time.Now().UTC(),
		BlocksAdministration:   assessment.BlocksAdministration,
		RequiresAcknowledgment: assessment.HighestSeverity == SeverityLifeThreatening,
	}
}
