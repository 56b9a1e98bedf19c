package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vitalcare/go-medsafe/pkg/workerpool"
)

type capturePublisher struct {
	alerts chan *Alert
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{alerts: make(chan *Alert, 4)}
}

func (p *capturePublisher) PublishAlert(_ context.Context, alert *Alert) error {
	p.alerts <- alert
	return nil
}

func testPool(t *testing.T) *workerpool.Pool {
	t.Helper()
	wp := workerpool.New(workerpool.Config{Workers: 4, QueueSize: 16}, nil)
	wp.Start()
	t.Cleanup(func() { wp.Stop() })
	return wp
}

func highRiskRequest() *AssessmentRequest {
	return &AssessmentRequest{
		PatientID:      "patient-1",
		FacilityID:     "fac-1",
		OrganizationID: "org-1",
		Medications: []Medication{
			{Name: "Penicillin"},
			{Name: "Warfarin"},
			{Name: "Ibuprofen"},
		},
		CurrentMedications: []Medication{{Name: "Aspirin"}},
		Allergies: []AllergyRecord{
			{Allergen: "Penicillin", Severity: SeveritySevere, Reaction: "anaphylaxis"},
		},
		Conditions: []Condition{{Code: "N18", Name: "Chronic kidney disease"}},
	}
}

func TestAssessRejectsInvalidRequests(t *testing.T) {
	assessor := NewAssessor(testStore(), testPool(t), nil, AssessorConfig{}, nil)

	cases := []struct {
		name string
		req  *AssessmentRequest
	}{
		{"nil request", nil},
		{"missing patient id", &AssessmentRequest{Medications: []Medication{{Name: "Metformin"}}}},
		{"no medications", &AssessmentRequest{PatientID: "patient-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := assessor.Assess(context.Background(), tc.req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestAssessHighRiskRunsAllCheckersAndPublishes(t *testing.T) {
	publisher := newCapturePublisher()
	assessor := NewAssessor(testStore(), testPool(t), publisher, AssessorConfig{}, nil)

	assessment, err := assessor.Assess(context.Background(), highRiskRequest())
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	if len(assessment.Degraded) != 0 {
		t.Errorf("degraded = %v, want none", assessment.Degraded)
	}
	if !assessment.AllergyAlerts.HasAlerts {
		t.Error("expected the penicillin allergy to surface")
	}
	if !assessment.Interactions.HasInteractions {
		t.Error("expected the warfarin/aspirin interaction to surface")
	}
	if !assessment.Contraindications.HasContraindications {
		t.Error("expected the NSAID/CKD contraindication to surface")
	}
	if assessment.OverallRisk.Level != RiskHigh {
		t.Errorf("level = %v (score %d), want high", assessment.OverallRisk.Level, assessment.OverallRisk.Score)
	}
	if !assessment.BlocksAdministration {
		t.Error("expected blocking verdict")
	}

	select {
	case alert := <-publisher.alerts:
		if alert.PatientID != "patient-1" || alert.FacilityID != "fac-1" || alert.OrganizationID != "org-1" {
			t.Errorf("alert targeting = %s/%s/%s", alert.PatientID, alert.FacilityID, alert.OrganizationID)
		}
		if !alert.BlocksAdministration {
			t.Error("published alert should block")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("high-risk assessment never reached the publisher")
	}
}

func TestAssessLowRiskDoesNotPublish(t *testing.T) {
	publisher := newCapturePublisher()
	assessor := NewAssessor(testStore(), testPool(t), publisher, AssessorConfig{}, nil)

	req := &AssessmentRequest{
		PatientID:   "patient-2",
		Medications: []Medication{{Name: "Metformin", Dose: 1000, DoseUnit: "mg"}},
	}
	assessment, err := assessor.Assess(context.Background(), req)
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if assessment.OverallRisk.Level != RiskLow || assessment.BlocksAdministration {
		t.Fatalf("clean order produced %v/blocks=%v", assessment.OverallRisk.Level, assessment.BlocksAdministration)
	}

	select {
	case alert := <-publisher.alerts:
		t.Errorf("unexpected alert %s for low-risk assessment", alert.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAssessStoreOutageFailsClosed(t *testing.T) {
	assessor := NewAssessor(failingStore{}, testPool(t), nil, AssessorConfig{}, nil)

	req := &AssessmentRequest{
		PatientID: "patient-3",
		Medications: []Medication{
			{Name: "Metformin", Dose: 1000, DoseUnit: "mg"},
			{Name: "Warfarin"},
		},
		Allergies:  []AllergyRecord{{Allergen: "Sulfa", Severity: SeverityMild}},
		Conditions: []Condition{{Code: "N18"}},
	}
	assessment, err := assessor.Assess(context.Background(), req)
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	if len(assessment.Degraded) != 4 {
		t.Fatalf("degraded = %v, want all four checkers", assessment.Degraded)
	}
	// 2 + 3 + 4 + 2 from the degraded weights alone.
	if assessment.OverallRisk.Score != 11 {
		t.Errorf("score = %d, want 11", assessment.OverallRisk.Score)
	}
	if assessment.OverallRisk.Level != RiskHigh {
		t.Errorf("level = %v, want high", assessment.OverallRisk.Level)
	}
	if !assessment.BlocksAdministration {
		t.Error("a fully degraded assessment must fail closed")
	}
}

func TestAssessSurvivesSaturatedPool(t *testing.T) {
	// A one-worker pool with a full queue forces the inline fallback path.
	wp := workerpool.New(workerpool.Config{Workers: 1, QueueSize: 1}, nil)
	wp.Start()
	t.Cleanup(func() { wp.Stop() })

	block := make(chan struct{})
	for i := 0; i < 4; i++ {
		wp.Submit(&workerpool.Task{
			ID:      "filler",
			Context: context.Background(),
			Timeout: 5 * time.Second,
			Run: func(context.Context) (interface{}, error) {
				<-block
				return nil, nil
			},
		})
	}
	defer close(block)

	assessor := NewAssessor(testStore(), wp, nil, AssessorConfig{}, nil)
	assessment, err := assessor.Assess(context.Background(), highRiskRequest())
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if len(assessment.Degraded) != 0 {
		t.Errorf("degraded = %v, inline fallback should still evaluate", assessment.Degraded)
	}
	if assessment.OverallRisk.Level != RiskHigh {
		t.Errorf("level = %v, want high", assessment.OverallRisk.Level)
	}
}
