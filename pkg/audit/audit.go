package audit

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/timebok/timebok/internal/event_bus"
)

// Logger writes one structured entry per committed appointment or practitioner change.
type Logger struct {
	logger      log.FieldLogger
	unsubscribe []func()
}

func NewLogger(logger log.FieldLogger) *Logger {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Logger{logger: logger}
}

// Subscribe registers the logger on all audited event types.
func (l *Logger) Subscribe(bus *event_bus.EventBus) {
	for _, eventType := range []event_bus.EventType{
		event_bus.AppointmentCreatedType,
		event_bus.AppointmentUpdatedType,
		event_bus.AppointmentDeletedType,
	} {
		l.unsubscribe = append(l.unsubscribe, event_bus.SubscribeTyped(bus, eventType, l.appointmentChanged))
	}
	for _, eventType := range []event_bus.EventType{
		event_bus.PractitionerCreatedType,
		event_bus.PractitionerUpdatedType,
	} {
		l.unsubscribe = append(l.unsubscribe, event_bus.SubscribeTyped(bus, eventType, l.practitionerChanged))
	}
	l.unsubscribe = append(l.unsubscribe, event_bus.SubscribeTyped(bus, event_bus.PractitionerDeletedType, l.practitionerDeleted))
}

func (l *Logger) Close() {
	for _, unsubscribe := range l.unsubscribe {
		unsubscribe()
	}
	l.unsubscribe = nil
}

func (l *Logger) appointmentChanged(e event_bus.EventT[event_bus.AppointmentChanged]) error {
	fields := log.Fields{
		"event":           string(e.Type),
		"appointment_id":  e.Data.Id,
		"practitioner_id": e.Data.PractitionerId,
		"actor_id":        e.Data.ActorId,
		"type":            e.Data.Type,
		"start_time":      e.Data.StartTime.Format(time.RFC3339),
		"end_time":        e.Data.EndTime.Format(time.RFC3339),
	}
	if !e.Data.PreviousStartTime.IsZero() {
		fields["previous_start_time"] = e.Data.PreviousStartTime.Format(time.RFC3339)
		fields["previous_end_time"] = e.Data.PreviousEndTime.Format(time.RFC3339)
	}
	l.logger.WithFields(fields).Info("audit")
	return nil
}

// practitionerChanged never logs password material, only whether the login changed.
func (l *Logger) practitionerChanged(e event_bus.EventT[event_bus.PractitionerChanged]) error {
	l.logger.WithFields(log.Fields{
		"event":               string(e.Type),
		"practitioner_id":     e.Data.Id,
		"practitioner_name":   e.Data.Name,
		"username":            e.Data.Username,
		"credentials_changed": e.Data.CredentialsChanged,
		"actor_id":            e.Data.ActorId,
	}).Info("audit")
	return nil
}

func (l *Logger) practitionerDeleted(e event_bus.EventT[event_bus.PractitionerDeleted]) error {
	l.logger.WithFields(log.Fields{
		"event":             string(e.Type),
		"practitioner_id":   e.Data.Id,
		"practitioner_name": e.Data.Name,
		"actor_id":          e.Data.ActorId,
	}).Info("audit")
	return nil
}
