// Package safety implements the medication-safety engine: allergy,
// interaction, contraindication and dose checks, risk aggregation, and the
// assessment façade that orchestrates them.
package safety

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity is the canonical ordinal severity scale shared by all checkers.
// Allergy and contraindication findings use the clinical labels
// (mild/moderate/severe/life-threatening); interaction rules use the
// pharmacological labels (minor/moderate/major/critical). Both map onto the
// same ordinals so findings from different checkers are comparable.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityMild
	SeverityModerate
	SeveritySevere
	SeverityLifeThreatening
)

// severityBlockThreshold is the lowest severity that forces
// blocksAdministration on its own.
const severityBlockThreshold = SeveritySevere

var severityLabels = map[Severity]string{
	SeverityNone:            "none",
	SeverityMild:            "mild",
	SeverityModerate:        "moderate",
	SeveritySevere:          "severe",
	SeverityLifeThreatening: "life-threatening",
}

var interactionLabels = map[Severity]string{
	SeverityNone:            "none",
	SeverityMild:            "minor",
	SeverityModerate:        "moderate",
	SeveritySevere:          "major",
	SeverityLifeThreatening: "critical",
}

// String returns the clinical label (mild/moderate/severe/life-threatening).
func (s Severity) String() string {
	if label, ok := severityLabels[s]; ok {
		return label
	}
	return "none"
}

// InteractionLabel returns the interaction-scale label (minor/moderate/major/critical).
func (s Severity) InteractionLabel() string {
	if label, ok := interactionLabels[s]; ok {
		return label
	}
	return "none"
}

// Blocks reports whether this severity alone forces a block.
func (s Severity) Blocks() bool {
	return s >= severityBlockThreshold
}

// ParseSeverity accepts labels from either scale and maps them to the
// canonical ordinal. Unknown labels resolve to SeverityModerate rather than
// SeverityNone: an unrecognized severity on a recorded finding should raise
// the risk estimate, not erase it.
func ParseSeverity(label string) Severity {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "mild", "minor", "low":
		return SeverityMild
	case "moderate":
		return SeverityModerate
	case "severe", "major", "high":
		return SeveritySevere
	case "life-threatening", "critical":
		return SeverityLifeThreatening
	case "", "none":
		return SeverityNone
	default:
		return SeverityModerate
	}
}

// MarshalJSON renders the clinical label.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts labels from either scale.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return fmt.Errorf("severity: %w", err)
	}
	*s = ParseSeverity(label)
	return nil
}

// InteractionSeverity is a Severity that renders on the interaction scale.
type InteractionSeverity Severity

// Canonical converts back to the shared ordinal scale.
func (s InteractionSeverity) Canonical() Severity { return Severity(s) }

func (s InteractionSeverity) String() string {
	return Severity(s).InteractionLabel()
}

// MarshalJSON renders the interaction-scale label.
func (s InteractionSeverity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts labels from either scale.
func (s *InteractionSeverity) UnmarshalJSON(data []byte) error {
	var canonical Severity
	if err := canonical.UnmarshalJSON(data); err != nil {
		return err
	}
	*s = InteractionSeverity(canonical)
	return nil
}

// MaxSeverity returns the highest of the given severities.
func MaxSeverity(severities ...Severity) Severity {
	max := SeverityNone
	for _, s := range severities {
		if s > max {
			max = s
		}
	}
	return max
}

// RiskLevel is the aggregate verdict tier.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)
