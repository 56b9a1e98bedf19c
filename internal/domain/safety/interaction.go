package safety

import (
	"context"

	"go.uber.org/zap"

	"github.com/vitalcare/go-medsafe/internal/refdata"
)

// InteractionChecker evaluates drug-drug interactions over the proposed and
// currently active medications.
type InteractionChecker struct {
	store  refdata.Store
	logger *zap.Logger
}

// NewInteractionChecker creates a checker over the given reference store.
func NewInteractionChecker(store refdata.Store, logger *zap.Logger) *InteractionChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InteractionChecker{store: store, logger: logger}
}

// Check builds all unordered pairs among the proposed medications and
// between proposed and current medications. Current-current pairs are
// skipped: the existing combination is assumed already accepted.
func (c *InteractionChecker) Check(ctx context.Context, proposed, current []Medication) InteractionResult {
	result := InteractionResult{
		Status:       StatusOK,
		Interactions: []InteractionFinding{},
	}

	pairs := buildPairs(proposed, current)
	for _, pair := range pairs {
		finding, ok, err := c.evaluatePair(ctx, pair[0], pair[1])
		if err != nil {
			result.Status = StatusUnknown
			c.logger.Warn("interaction lookup degraded",
				zap.String("drug_a", pair[0].Name),
				zap.String("drug_b", pair[1].Name),
				zap.Error(err))
			// The store is unreachable; further lookups would only repeat
			// the failure.
			break
		}
		if ok {
			result.Interactions = append(result.Interactions, finding)
		}
	}

	for _, finding := range result.Interactions {
		if Severity(finding.Severity) > Severity(result.HighestSeverity) {
			result.HighestSeverity = finding.Severity
		}
	}
	result.HasInteractions = len(result.Interactions) > 0
	return result
}

func (c *InteractionChecker) evaluatePair(ctx context.Context, a, b Medication) (InteractionFinding, bool, error) {
	classA, err := c.resolveClass(ctx, a)
	if err != nil {
		return InteractionFinding{}, false, err
	}
	classB, err := c.resolveClass(ctx, b)
	if err != nil {
		return InteractionFinding{}, false, err
	}
	if classA == "" || classB == "" {
		return InteractionFinding{}, false, nil
	}

	rule, err := c.store.Interaction(ctx, classA, classB)
	if err != nil {
		return InteractionFinding{}, false, err
	}
	if rule == nil {
		return InteractionFinding{}, false, nil
	}

	return InteractionFinding{
		DrugA:          a.Name,
		DrugB:          b.Name,
		Severity:       InteractionSeverity(ParseSeverity(rule.Severity)),
		Mechanism:      rule.Mechanism,
		Recommendation: rule.Recommendation,
	}, true, nil
}

func (c *InteractionChecker) resolveClass(ctx context.Context, med Medication) (string, error) {
	if med.DrugClass != "" {
		return med.DrugClass, nil
	}
	return c.store.DrugClass(ctx, med.Name)
}

// buildPairs returns proposed x proposed and proposed x current pairs,
// each unordered pair exactly once.
func buildPairs(proposed, current []Medication) [][2]Medication {
	var pairs [][2]Medication
	for i := 0; i < len(proposed); i++ {
		for j := i + 1; j < len(proposed); j++ {
			pairs = append(pairs, [2]Medication{proposed[i], proposed[j]})
		}
	}
	for _, p := range proposed {
		for _, cur := range current {
			if refdata.Normalize(p.Name) == refdata.Normalize(cur.Name) {
				continue
			}
			pairs = append(pairs, [2]Medication{p, cur})
		}
	}
	return pairs
}
