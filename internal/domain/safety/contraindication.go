package safety

import (
	"context"

	"go.uber.org/zap"

	"github.com/vitalcare/go-medsafe/internal/refdata"
)

// ContraindicationChecker matches proposed medications against the patient's
// coded active conditions. Absolute contraindications always block; relative
// ones contribute to the score and may be overridden clinically.
type ContraindicationChecker struct {
	store  refdata.Store
	logger *zap.Logger
}

// NewContraindicationChecker creates a checker over the given reference store.
func NewContraindicationChecker(store refdata.Store, logger *zap.Logger) *ContraindicationChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContraindicationChecker{store: store, logger: logger}
}

// Check looks up a ContraindicationRule for every (medication drug class,
// condition code) combination.
func (c *ContraindicationChecker) Check(ctx context.Context, medications []Medication, conditions []Condition) ContraindicationResult {
	result := ContraindicationResult{
		Status:            StatusOK,
		Contraindications: []ContraindicationFinding{},
	}
	if len(conditions) == 0 {
		return result
	}

lookup:
	for _, med := range medications {
		drugClass := med.DrugClass
		if drugClass == "" {
			resolved, err := c.store.DrugClass(ctx, med.Name)
			if err != nil {
				result.Status = StatusUnknown
				c.logger.Warn("drug class lookup degraded",
					zap.String("medication", med.Name),
					zap.Error(err))
				break
			}
			drugClass = resolved
		}
		if drugClass == "" {
			continue
		}

		for _, condition := range conditions {
			rule, err := c.store.Contraindication(ctx, drugClass, condition.Code)
			if err != nil {
				result.Status = StatusUnknown
				c.logger.Warn("contraindication lookup degraded",
					zap.String("medication", med.Name),
					zap.String("condition", condition.Code),
					zap.Error(err))
				break lookup
			}
			if rule == nil {
				continue
			}

			finding := ContraindicationFinding{
				Medication:     med.Name,
				DrugClass:      drugClass,
				ConditionCode:  condition.Code,
				ConditionName:  condition.Name,
				Type:           ContraindicationRelative,
				Severity:       ParseSeverity(rule.Severity),
				Rationale:      rule.Rationale,
				Recommendation: rule.Recommendation,
			}
			if rule.Type == string(ContraindicationAbsolute) {
				finding.Type = ContraindicationAbsolute
				result.HasAbsoluteContraindication = true
			}
			result.Contraindications = append(result.Contraindications, finding)
		}
	}

	for _, finding := range result.Contraindications {
		result.HighestSeverity = MaxSeverity(result.HighestSeverity, finding.Severity)
	}
	result.HasContraindications = len(result.Contraindications) > 0
	return result
}
