package safety

import (
	"time"
)

// CheckStatus distinguishes an evaluated sub-result from one that could not
// be evaluated. "unknown" is not the same as "no findings": the aggregator
// weighs it conservatively and names the degraded subsystem in the verdict.
type CheckStatus string

const (
	StatusOK      CheckStatus = "ok"
	StatusUnknown CheckStatus = "unknown"
)

// Medication is a proposed or currently active drug order.
type Medication struct {
	Name      string  `json:"name" validate:"required"`
	DrugClass string  `json:"drugClass"`
	Dose      float64 `json:"dose,omitempty"`
	DoseUnit  string  `json:"doseUnit,omitempty"`
}

// AllergyRecord is a patient-held allergy history entry.
type AllergyRecord struct {
	Allergen             string   `json:"allergen" validate:"required"`
	AllergenClass        string   `json:"allergenClass"`
	Severity             Severity `json:"severity"`
	Reaction             string   `json:"reaction,omitempty"`
	CrossReactiveClasses []string `json:"crossReactiveClasses,omitempty"`
}

// Condition is a coded active diagnosis.
type Condition struct {
	Code string `json:"code" validate:"required"`
	Name string `json:"name,omitempty"`
}

// PatientAttributes carries the per-patient factors dose validation adjusts
// for. Zero values mean "not supplied".
type PatientAttributes struct {
	AgeYears            int     `json:"ageYears,omitempty"`
	WeightKg            float64 `json:"weightKg,omitempty"`
	CreatinineClearance float64 `json:"creatinineClearance,omitempty"`
	HepaticImpairment   bool    `json:"hepaticImpairment,omitempty"`
}

// AllergyAlert is a single allergy match, direct or cross-reactive.
type AllergyAlert struct {
	Type           string   `json:"type"` // "direct-match" or "cross-reactive"
	Medication     string   `json:"medication"`
	Allergen       string   `json:"allergen"`
	AllergenClass  string   `json:"allergenClass,omitempty"`
	Severity       Severity `json:"severity"`
	Reaction       string   `json:"reaction,omitempty"`
	RiskPercentage int      `json:"riskPercentage,omitempty"`
}

// AllergyResult is the AllergyChecker output.
type AllergyResult struct {
	Status               CheckStatus    `json:"status"`
	HasAlerts            bool           `json:"hasAlerts"`
	Alerts               []AllergyAlert `json:"alerts"`
	HighestSeverity      Severity       `json:"highestSeverity"`
	BlocksAdministration bool           `json:"blocksAdministration"`
}

// InteractionFinding is a matched drug-drug interaction.
type InteractionFinding struct {
	DrugA          string              `json:"drugA"`
	DrugB          string              `json:"drugB"`
	Severity       InteractionSeverity `json:"severity"`
	Mechanism      string              `json:"mechanism,omitempty"`
	Recommendation string              `json:"recommendation,omitempty"`
}

// InteractionResult is the InteractionChecker output.
type InteractionResult struct {
	Status          CheckStatus          `json:"status"`
	HasInteractions bool                 `json:"hasInteractions"`
	Interactions    []InteractionFinding `json:"interactions"`
	HighestSeverity InteractionSeverity  `json:"highestSeverity"`
}

// ContraindicationType distinguishes findings that always block from those
// that only contribute to the score.
type ContraindicationType string

const (
	ContraindicationAbsolute ContraindicationType = "absolute"
	ContraindicationRelative ContraindicationType = "relative"
)

// ContraindicationFinding is a matched drug-condition contraindication.
type ContraindicationFinding struct {
	Medication     string               `json:"medication"`
	DrugClass      string               `json:"drugClass,omitempty"`
	ConditionCode  string               `json:"conditionCode"`
	ConditionName  string               `json:"conditionName,omitempty"`
	Type           ContraindicationType `json:"type"`
	Severity       Severity             `json:"severity"`
	Rationale      string               `json:"rationale,omitempty"`
	Recommendation string               `json:"recommendation,omitempty"`
}

// ContraindicationResult is the ContraindicationChecker output.
type ContraindicationResult struct {
	Status                      CheckStatus               `json:"status"`
	HasContraindications        bool                      `json:"hasContraindications"`
	Contraindications           []ContraindicationFinding `json:"contraindications"`
	HighestSeverity             Severity                  `json:"highestSeverity"`
	HasAbsoluteContraindication bool                      `json:"hasAbsoluteContraindication"`
}

// DoseFinding is a single dose error or warning.
type DoseFinding struct {
	Medication string `json:"medication"`
	Message    string `json:"message"`
}

// DoseResult is the DoseValidator output. Errors are hard findings; warnings
// contribute to the score without independently blocking.
type DoseResult struct {
	Status      CheckStatus   `json:"status"`
	HasErrors   bool          `json:"hasErrors"`
	Errors      []DoseFinding `json:"errors"`
	HasWarnings bool          `json:"hasWarnings"`
	Warnings    []DoseFinding `json:"warnings"`
}

// OverallRisk is the aggregate verdict.
type OverallRisk struct {
	Score   int       `json:"score"`
	Level   RiskLevel `json:"level"`
	Factors []string  `json:"factors"`
}

// SafetyAssessment is the complete per-request result. It has no identity
// beyond the request it answers and is never persisted by the engine.
type SafetyAssessment struct {
	PatientID            string                 `json:"patientId"`
	Interactions         InteractionResult      `json:"interactions"`
	AllergyAlerts        AllergyResult          `json:"allergyAlerts"`
	Contraindications    ContraindicationResult `json:"contraindications"`
	DoseValidation       DoseResult             `json:"doseValidation"`
	OverallRisk          OverallRisk            `json:"overallRisk"`
	HighestSeverity      Severity               `json:"highestSeverity"`
	BlocksAdministration bool                   `json:"blocksAdministration"`
	Degraded             []string               `json:"degraded,omitempty"`
	AssessedAt           time.Time              `json:"assessedAt"`
}

// Alert is the real-time notification emitted for a high-risk verdict.
// Immutable once created: acknowledgement and resolution are separate events,
// never edits.
type Alert struct {
	ID                      string    `json:"id"`
	AlertType               string    `json:"alertType"`
	Severity                Severity  `json:"severity"`
	Message                 string    `json:"message"`
	PatientID               string    `json:"patientId"`
	FacilityID              string    `json:"facilityId,omitempty"`
	OrganizationID          string    `json:"organizationId,omitempty"`
	Timestamp               time.Time `json:"timestamp"`
	BlocksAdministration    bool      `json:"blocksAdministration"`
	RequiresAcknowledgment  bool      `json:"requiresAcknowledgment,omitempty"`
}

// AssessmentRequest is the façade input.
type AssessmentRequest struct {
	PatientID          string            `json:"patientId" validate:"required"`
	FacilityID         string            `json:"facilityId,omitempty"`
	OrganizationID     string            `json:"organizationId,omitempty"`
	Medications        []Medication      `json:"medications" validate:"required,min=1,dive"`
	CurrentMedications []Medication      `json:"currentMedications,omitempty" validate:"dive"`
	Allergies          []AllergyRecord   `json:"allergies,omitempty" validate:"dive"`
	Conditions         []Condition       `json:"conditions,omitempty" validate:"dive"`
	Attributes         PatientAttributes `json:"attributes,omitempty"`
}
