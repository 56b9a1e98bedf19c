package alert

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/vitalcare/go-medsafe/internal/domain/safety"
)

// ClinicalTeamRoom is the global broadcast room joined on every connect.
const ClinicalTeamRoom = "clinical-team"

const (
	eventClinicalAlert = "clinical-alert"
	eventCriticalAlert = "critical-alert"
)

// Publisher delivers a payload to one room. Satisfied by ConnManager.
type Publisher interface {
	Publish(ctx context.Context, room string, payload interface{}) error
}

// RoomMessage is the payload pushed into a room for one alert.
type RoomMessage struct {
	Event string        `json:"event"`
	Alert *safety.Alert `json:"alert"`
}

// Distributor fans high-risk alerts out to their target rooms. Each room
// publish is independent and best-effort: one failed room never blocks the
// others, and a fully failed distribution never surfaces to the assessment
// caller.
type Distributor struct {
	pub    Publisher
	dedup  *DedupCache
	logger *zap.Logger

	delivered  atomic.Int64
	duplicates atomic.Int64
	failures   atomic.Int64
}

// NewDistributor creates a distributor over the given publisher.
func NewDistributor(pub Publisher, dedup *DedupCache, logger *zap.Logger) *Distributor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Distributor{
		pub:    pub,
		dedup:  dedup,
		logger: logger,
	}
}

// Rooms returns the fan-out target list for alert. The clinical-team room
// is reserved for the top severity tier to keep the global channel quiet.
func Rooms(alert *safety.Alert) []string {
	rooms := []string{"patient-" + alert.PatientID}
	if alert.FacilityID != "" {
		rooms = append(rooms, "facility-"+alert.FacilityID)
	}
	if alert.OrganizationID != "" {
		rooms = append(rooms, "organization-"+alert.OrganizationID)
	}
	if alert.Severity == safety.SeverityLifeThreatening {
		rooms = append(rooms, ClinicalTeamRoom)
	}
	return rooms
}

// Distribute delivers alert to every target room. A repeated alert ID within
// the dedup window is acknowledged as a successful no-op so upstream
// redelivery never doubles alerts on clinician screens.
func (d *Distributor) Distribute(ctx context.Context, alert *safety.Alert) error {
	if alert == nil || alert.ID == "" {
		return fmt.Errorf("alert must have an id")
	}

	if d.dedup != nil && d.dedup.Seen(alert.ID) {
		d.duplicates.Add(1)
		d.logger.Debug("duplicate alert suppressed",
			zap.String("alert_id", alert.ID),
			zap.String("patient_id", alert.PatientID))
		return nil
	}

	msg := RoomMessage{Event: eventClinicalAlert, Alert: alert}
	if alert.Severity == safety.SeverityLifeThreatening {
		msg.Event = eventCriticalAlert
	}

	var failed int
	for _, room := range Rooms(alert) {
		if err := d.pub.Publish(ctx, room, msg); err != nil {
			failed++
			d.failures.Add(1)
			d.logger.Warn("room publish failed",
				zap.String("alert_id", alert.ID),
				zap.String("room", room),
				zap.Error(err))
			continue
		}
		d.delivered.Add(1)
	}

	d.logger.Info("alert distributed",
		zap.String("alert_id", alert.ID),
		zap.String("patient_id", alert.PatientID),
		zap.String("event", msg.Event),
		zap.Int("failed_rooms", failed))
	return nil
}

// DistributorStats holds delivery counters.
type DistributorStats struct {
	Delivered  int64 `json:"delivered"`
	Duplicates int64 `json:"duplicates"`
	Failures   int64 `json:"failures"`
}

// Stats returns a snapshot of delivery counters.
func (d *Distributor) Stats() DistributorStats {
	return DistributorStats{
		Delivered:  d.delivered.Load(),
		Duplicates: d.duplicates.Load(),
		Failures:   d.failures.Load(),
	}
}
