package refdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vitalcare/go-medsafe/pkg/circuitbreaker"
)

// PostgresStore is a Store backed by the shared clinical reference database.
// Every lookup runs through a circuit breaker: when the database is down the
// breaker opens and lookups fail fast with ErrUnavailable instead of piling
// up on a dead connection.
type PostgresStore struct {
	pool    *pgxpool.Pool
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewPostgresStore creates a Store over the given pool. breaker may be nil,
// in which case lookups hit the pool directly.
func NewPostgresStore(pool *pgxpool.Pool, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{
		pool:    pool,
		breaker: breaker,
		logger:  logger,
		tracer:  otel.Tracer("refdata"),
	}
}

// lookup runs fn through the breaker and maps failures to ErrUnavailable.
// pgx.ErrNoRows is translated to a nil result before the breaker sees it:
// most pairs and conditions have no rule, so a miss is the common healthy
// outcome and must never count toward opening the circuit.
func (s *PostgresStore) lookup(ctx context.Context, name string, fn func() (interface{}, error)) (interface{}, error) {
	ctx, span := s.tracer.Start(ctx, "refdata_lookup",
		trace.WithAttributes(attribute.String("lookup", name)))
	defer span.End()

	run := func() (interface{}, error) {
		result, err := fn()
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return result, err
	}

	var result interface{}
	var err error
	if s.breaker != nil {
		result, err = s.breaker.Execute(ctx, run)
	} else {
		result, err = run()
	}

	if err != nil {
		span.RecordError(err)
		s.logger.Warn("reference data lookup failed",
			zap.String("lookup", name),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, name, err)
	}
	return result, nil
}

// DrugClass implements Store.
func (s *PostgresStore) DrugClass(ctx context.Context, medicationName string) (string, error) {
	result, err := s.lookup(ctx, "drug_class", func() (interface{}, error) {
		var class string
		err := s.pool.QueryRow(ctx,
			`SELECT drug_class FROM drug_classes WHERE medication_name = $1`,
			Normalize(medicationName),
		).Scan(&class)
		if err != nil {
			return nil, err
		}
		return class, nil
	})
	if err != nil || result == nil {
		return "", err
	}
	return result.(string), nil
}

// CrossReactivity implements Store.
func (s *PostgresStore) CrossReactivity(ctx context.Context, allergenClass string) (*CrossReactivityPattern, error) {
	result, err := s.lookup(ctx, "cross_reactivity", func() (interface{}, error) {
		p := &CrossReactivityPattern{}
		err := s.pool.QueryRow(ctx,
			`SELECT allergen_class, cross_reactive_classes, risk_percentage
			 FROM cross_reactivity_patterns
			 WHERE allergen_class = $1`,
			Normalize(allergenClass),
		).Scan(&p.AllergenClass, &p.CrossReactiveClasses, &p.RiskPercentage)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	if err != nil || result == nil {
		return nil, err
	}
	return result.(*CrossReactivityPattern), nil
}

// Interaction implements Store.
func (s *PostgresStore) Interaction(ctx context.Context, classA, classB string) (*InteractionRule, error) {
	result, err := s.lookup(ctx, "interaction", func() (interface{}, error) {
		r := &InteractionRule{}
		err := s.pool.QueryRow(ctx,
			`SELECT class_a, class_b, severity, mechanism, recommendation
			 FROM interaction_rules
			 WHERE class_pair = $1`,
			PairKey(classA, classB),
		).Scan(&r.ClassA, &r.ClassB, &r.Severity, &r.Mechanism, &r.Recommendation)
		if err != nil {
			return nil, err
		}
		return r, nil
	})
	if err != nil || result == nil {
		return nil, err
	}
	return result.(*InteractionRule), nil
}

// Contraindication implements Store.
func (s *PostgresStore) Contraindication(ctx context.Context, drugClass, conditionCode string) (*ContraindicationRule, error) {
	result, err := s.lookup(ctx, "contraindication", func() (interface{}, error) {
		r := &ContraindicationRule{}
		err := s.pool.QueryRow(ctx,
			`SELECT drug_class, condition_code, rule_type, severity, rationale, recommendation
			 FROM contraindication_rules
			 WHERE drug_class = $1 AND condition_code = $2`,
			Normalize(drugClass), Normalize(conditionCode),
		).Scan(&r.DrugClass, &r.ConditionCode, &r.Type, &r.Severity, &r.Rationale, &r.Recommendation)
		if err != nil {
			return nil, err
		}
		return r, nil
	})
	if err != nil || result == nil {
		return nil, err
	}
	return result.(*ContraindicationRule), nil
}

// DoseRule implements Store.
func (s *PostgresStore) DoseRule(ctx context.Context, medicationName, drugClass string) (*DoseRule, error) {
	result, err := s.lookup(ctx, "dose_rule", func() (interface{}, error) {
		r := &DoseRule{}
		err := s.pool.QueryRow(ctx,
			`SELECT medication, drug_class, min_dose, max_dose, unit,
			        renal_clearance_threshold, renal_adjustment_factor, hepatic_adjustment_factor
			 FROM dose_rules
			 WHERE medication = $1 OR (medication = '' AND drug_class = $2)
			 ORDER BY medication DESC
			 LIMIT 1`,
			Normalize(medicationName), Normalize(drugClass),
		).Scan(&r.Medication, &r.DrugClass, &r.MinDose, &r.MaxDose, &r.Unit,
			&r.RenalClearanceThreshold, &r.RenalAdjustmentFactor, &r.HepaticAdjustmentFactor)
		if err != nil {
			return nil, err
		}
		return r, nil
	})
	if err != nil || result == nil {
		return nil, err
	}
	return result.(*DoseRule), nil
}
