package event_bus

import "time"

const (
	AppointmentCreatedType  EventType = "appointment.created"
	AppointmentUpdatedType  EventType = "appointment.updated"
	AppointmentDeletedType  EventType = "appointment.deleted"
	PractitionerCreatedType EventType = "practitioner.created"
	PractitionerUpdatedType EventType = "practitioner.updated"
	PractitionerDeletedType EventType = "practitioner.deleted"
)

// AppointmentChanged is published after an appointment mutation has been committed.
type AppointmentChanged struct {
	Id             int64
	PractitionerId int
	StartTime      time.Time
	EndTime        time.Time
	Type           string
	// ActorId is the practitioner id of the caller who performed the change.
	ActorId int
	// Previous holds the interval before an update; zero for create and delete.
	PreviousStartTime time.Time
	PreviousEndTime   time.Time
}

// PractitionerChanged is published after a practitioner has been created or updated.
// ActorId is zero for the bootstrap account.
type PractitionerChanged struct {
	Id       int
	Name     string
	Username string
	ActorId  int
	// CredentialsChanged is set when the login was enabled, disabled, renamed or given a new password.
	CredentialsChanged bool
}

type PractitionerDeleted struct {
	Id      int
	Name    string
	ActorId int
}
