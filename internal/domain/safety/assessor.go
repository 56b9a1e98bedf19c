package safety

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vitalcare/go-medsafe/internal/refdata"
	"github.com/vitalcare/go-medsafe/pkg/workerpool"
)

// ErrInvalidRequest marks input that is rejected before any checker runs.
var ErrInvalidRequest = errors.New("invalid assessment request")

// AlertPublisher pushes a high-risk alert toward real-time distribution.
// Publishing is best-effort and decoupled: the synchronous assessment result
// never depends on it.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert *Alert) error
}

// AssessorConfig holds façade configuration.
type AssessorConfig struct {
	// CheckerTimeout bounds each of the four checker calls. A timed-out
	// checker degrades to status "unknown" instead of blocking the request.
	CheckerTimeout time.Duration
	// DistributionTimeout bounds the asynchronous alert publish.
	DistributionTimeout time.Duration
}

// DefaultAssessorConfig returns sensible defaults.
func DefaultAssessorConfig() AssessorConfig {
	return AssessorConfig{
		CheckerTimeout:      2 * time.Second,
		DistributionTimeout: 5 * time.Second,
	}
}

// Assessor is the single entry point for a medication-safety request. It
// fans the four checkers out on the worker pool, waits for all of them,
// aggregates the verdict, and triggers distribution for high-risk results
// without blocking the caller.
type Assessor struct {
	pool       *workerpool.Pool
	allergy    *AllergyChecker
	inter      *InteractionChecker
	contra     *ContraindicationChecker
	dose       *DoseValidator
	aggregator *RiskAggregator
	publisher  AlertPublisher
	config     AssessorConfig
	logger     *zap.Logger
}

// NewAssessor wires the four checkers over one reference store. publisher
// may be nil, in which case high-risk alerts are only logged.
func NewAssessor(store refdata.Store, pool *workerpool.Pool, publisher AlertPublisher, cfg AssessorConfig, logger *zap.Logger) *Assessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CheckerTimeout <= 0 {
		cfg.CheckerTimeout = DefaultAssessorConfig().CheckerTimeout
	}
	if cfg.DistributionTimeout <= 0 {
		cfg.DistributionTimeout = DefaultAssessorConfig().DistributionTimeout
	}
	return &Assessor{
		pool:       pool,
		allergy:    NewAllergyChecker(store, logger.Named("allergy")),
		inter:      NewInteractionChecker(store, logger.Named("interaction")),
		contra:     NewContraindicationChecker(store, logger.Named("contraindication")),
		dose:       NewDoseValidator(store, logger.Named("dose")),
		aggregator: NewRiskAggregator(logger.Named("aggregator")),
		publisher:  publisher,
		config:     cfg,
		logger:     logger,
	}
}

// Assess runs the full safety evaluation. The returned assessment is always
// complete and self-sufficient; degraded sub-results are called out by name
// rather than silently read as "no findings".
func (a *Assessor) Assess(ctx context.Context, req *AssessmentRequest) (*SafetyAssessment, error) {
	if req == nil || req.PatientID == "" {
		return nil, errors.Join(ErrInvalidRequest, errors.New("patientId is required"))
	}
	if len(req.Medications) == 0 {
		return nil, errors.Join(ErrInvalidRequest, errors.New("at least one medication is required"))
	}

	allergyCh := a.dispatch(ctx, req.PatientID+"/allergy", func(cctx context.Context) (interface{}, error) {
		return a.allergy.Check(cctx, req.Medications, req.Allergies), nil
	})
	interCh := a.dispatch(ctx, req.PatientID+"/interaction", func(cctx context.Context) (interface{}, error) {
		return a.inter.Check(cctx, req.Medications, req.CurrentMedications), nil
	})
	contraCh := a.dispatch(ctx, req.PatientID+"/contraindication", func(cctx context.Context) (interface{}, error) {
		return a.contra.Check(cctx, req.Medications, req.Conditions), nil
	})
	doseCh := a.dispatch(ctx, req.PatientID+"/dose", func(cctx context.Context) (interface{}, error) {
		return a.dose.Check(cctx, req.Medications, req.Attributes), nil
	})

	allergyRes := AllergyResult{Status: StatusUnknown, Alerts: []AllergyAlert{}}
	if data, ok := a.collect(ctx, allergyCh); ok {
		allergyRes = data.(AllergyResult)
	}
	interRes := InteractionResult{Status: StatusUnknown, Interactions: []InteractionFinding{}}
	if data, ok := a.collect(ctx, interCh); ok {
		interRes = data.(InteractionResult)
	}
	contraRes := ContraindicationResult{Status: StatusUnknown, Contraindications: []ContraindicationFinding{}}
	if data, ok := a.collect(ctx, contraCh); ok {
		contraRes = data.(ContraindicationResult)
	}
	doseRes := DoseResult{Status: StatusUnknown, Errors: []DoseFinding{}, Warnings: []DoseFinding{}}
	if data, ok := a.collect(ctx, doseCh); ok {
		doseRes = data.(DoseResult)
	}

	assessment := a.aggregator.Aggregate(req.PatientID, interRes, allergyRes, contraRes, doseRes)

	if alert := a.aggregator.BuildAlert(assessment, req.FacilityID, req.OrganizationID); alert != nil {
		a.triggerDistribution(alert)
	}

	return assessment, nil
}

// dispatch submits one checker to the pool, falling back to an inline
// goroutine when the queue is saturated: a busy pool must degrade latency,
// never the verdict.
func (a *Assessor) dispatch(ctx context.Context, id string, fn workerpool.TaskFunc) <-chan workerpool.Result {
	task := &workerpool.Task{
		ID:      id,
		Context: ctx,
		Timeout: a.config.CheckerTimeout,
		Run:     fn,
	}
	ch, err := a.pool.Submit(task)
	if err == nil {
		return ch
	}

	a.logger.Warn("checker fan-out running inline", zap.String("task_id", id), zap.Error(err))
	out := make(chan workerpool.Result, 1)
	go func() {
		cctx, cancel := context.WithTimeout(ctx, a.config.CheckerTimeout)
		defer cancel()
		data, runErr := fn(cctx)
		out <- workerpool.Result{TaskID: id, Data: data, Err: runErr}
	}()
	return out
}

// collect waits for one checker result. A failed or abandoned task reads as
// "could not evaluate", never as "no findings".
func (a *Assessor) collect(ctx context.Context, ch <-chan workerpool.Result) (interface{}, bool) {
	select {
	case res := <-ch:
		if res.Err != nil {
			a.logger.Warn("checker degraded", zap.String("task_id", res.TaskID), zap.Error(res.Err))
			return nil, false
		}
		return res.Data, true
	case <-ctx.Done():
		a.logger.Warn("assessment context cancelled while awaiting checker", zap.Error(ctx.Err()))
		return nil, false
	}
}

// triggerDistribution hands the alert off asynchronously. The caller's
// response is already complete; a distribution failure only logs.
func (a *Assessor) triggerDistribution(alert *Alert) {
	if a.publisher == nil {
		a.logger.Info("high-risk alert not distributed: no publisher configured",
			zap.String("alert_id", alert.ID),
			zap.String("patient_id", alert.PatientID))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.config.DistributionTimeout)
		defer cancel()
		if err := a.publisher.PublishAlert(ctx, alert); err != nil {
			a.logger.Error("alert distribution failed",
				zap.String("alert_id", alert.ID),
				zap.String("patient_id", alert.PatientID),
				zap.Error(err))
		}
	}()
}
