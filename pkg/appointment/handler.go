package appointment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/timebok/timebok/internal/rest"
	"github.com/timebok/timebok/pkg/auth"
)

type AppointmentDTO struct {
	Id             int64     `json:"id"`
	PractitionerId int       `json:"practitioner_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Patient        string    `json:"patient"`
	Type           string    `json:"type"`
	VideoLink      string    `json:"video_link,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AppointmentRequest is the body of create and update requests. "start" and "end"
// are accepted as aliases of "start_time" and "end_time".
type AppointmentRequest struct {
	StartTime      *time.Time `json:"start_time"`
	Start          *time.Time `json:"start"`
	EndTime        *time.Time `json:"end_time"`
	End            *time.Time `json:"end"`
	Patient        *string    `json:"patient" validate:"omitempty,max=200"`
	Type           *string    `json:"type" validate:"omitempty,oneof=in-clinic video-consultation phone-consultation"`
	PractitionerId *int       `json:"practitioner_id" validate:"omitempty,gt=0"`
	VideoLink      *string    `json:"video_link"`
}

type DeletedDTO struct {
	Id int64 `json:"id"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// ListAppointments godoc
// @Summary List appointments
// @Description Appointments starting in [start, end), ordered by start time. An empty range yields an empty array.
// @Tags Appointment
// @Produce json
// @Param start query string true "Range start (RFC3339)"
// @Param end query string true "Range end (RFC3339)"
// @Param practitionerId query string false "Practitioner id or 'all'"
// @Success 200 {array} AppointmentDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid date or practitioner"
// @Router /api/appointments [get]
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	log.Trace("Listing appointments")

	query := r.URL.Query()
	from, err := time.Parse(time.RFC3339, query.Get("start"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid start (date) format", "Expected RFC3339")
		return
	}
	to, err := time.Parse(time.RFC3339, query.Get("end"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid end (date) format", "Expected RFC3339")
		return
	}
	practitionerId, err := ParsePractitionerFilter(query.Get("practitionerId"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid practitionerId", err.Error())
		return
	}

	appointments, err := h.service.ListAppointments(r.Context(), from, to, practitionerId)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	dtos := make([]AppointmentDTO, 0, len(appointments))
	for _, a := range appointments {
		dtos = append(dtos, toDTO(a))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// GetAppointment godoc
// @Summary Get an appointment
// @Tags Appointment
// @Produce json
// @Param id path int true "Appointment id"
// @Success 200 {object} AppointmentDTO
// @Failure 404 {object} rest.ErrorResponse "Appointment not found"
// @Router /api/appointments/{id} [get]
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentId(w, r)
	if !ok {
		return
	}
	log.Tracef("Getting appointment %d", id)

	appointment, err := h.service.GetAppointment(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(appointment))
}

// CreateAppointment godoc
// @Summary Book an appointment
// @Description Creates the appointment unless it overlaps another appointment of the same practitioner
// @Tags Appointment
// @Accept json
// @Produce json
// @Param appointment body AppointmentRequest true "Appointment"
// @Success 201 {object} AppointmentDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid request"
// @Failure 401 {object} rest.ErrorResponse "Not logged in"
// @Failure 409 {object} rest.ErrorResponse "Time conflict"
// @Router /api/appointments [post]
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating appointment")
	if !requireCaller(w, r) {
		return
	}

	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	candidate, err := req.toAppointment()
	if err != nil {
		writeServiceError(w, err)
		return
	}

	created, err := h.service.CreateAppointment(r.Context(), candidate)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	log.Tracef("Created appointment: %+v", created)
	rest.WriteJSON(w, http.StatusCreated, toDTO(created))
}

// UpdateAppointment godoc
// @Summary Update an appointment
// @Description Moves, resizes or edits an appointment. Omitted fields keep their value.
// @Tags Appointment
// @Accept json
// @Produce json
// @Param id path int true "Appointment id"
// @Param appointment body AppointmentRequest true "Changed fields"
// @Success 200 {object} AppointmentDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid request"
// @Failure 401 {object} rest.ErrorResponse "Not logged in"
// @Failure 404 {object} rest.ErrorResponse "Appointment not found"
// @Failure 409 {object} rest.ErrorResponse "Time conflict"
// @Router /api/appointments/{id} [put]
func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	if !requireCaller(w, r) {
		return
	}
	id, ok := appointmentId(w, r)
	if !ok {
		return
	}
	log.Debugf("Updating appointment %d", id)

	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	updated, err := h.service.UpdateAppointment(r.Context(), id, req.toChanges())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(updated))
}

// DeleteAppointment godoc
// @Summary Cancel an appointment
// @Tags Appointment
// @Produce json
// @Param id path int true "Appointment id"
// @Success 200 {object} DeletedDTO
// @Failure 401 {object} rest.ErrorResponse "Not logged in"
// @Failure 404 {object} rest.ErrorResponse "Appointment not found"
// @Router /api/appointments/{id} [delete]
func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	if !requireCaller(w, r) {
		return
	}
	id, ok := appointmentId(w, r)
	if !ok {
		return
	}
	log.Debugf("Deleting appointment %d", id)

	if err := h.service.DeleteAppointment(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, DeletedDTO{Id: id})
}

// requireCaller answers 401 for anonymous requests before their input is looked at.
func requireCaller(w http.ResponseWriter, r *http.Request) bool {
	if _, err := auth.CurrentCaller(r.Context()); err != nil {
		rest.WriteError(w, http.StatusUnauthorized, "Authentication required", "")
		return false
	}
	return true
}

// ParsePractitionerFilter turns the practitionerId query value into a filter, 0 meaning all.
func ParsePractitionerFilter(value string) (int, error) {
	if value == "" || value == "all" {
		return 0, nil
	}
	id, err := strconv.Atoi(value)
	if err != nil || id <= 0 {
		return 0, errors.New("expected a positive number or 'all'")
	}
	return id, nil
}

func appointmentId(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		rest.WriteError(w, http.StatusNotFound, "Appointment not found", "")
		return 0, false
	}
	return id, true
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (AppointmentRequest, bool) {
	var req AppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
		return AppointmentRequest{}, false
	}
	if err := rest.ValidateStruct(req); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid appointment", rest.FormatValidationError(err))
		return AppointmentRequest{}, false
	}
	return req, true
}

func (req AppointmentRequest) start() *time.Time {
	if req.StartTime != nil {
		return req.StartTime
	}
	return req.Start
}

func (req AppointmentRequest) end() *time.Time {
	if req.EndTime != nil {
		return req.EndTime
	}
	return req.End
}

func (req AppointmentRequest) toAppointment() (Appointment, error) {
	switch {
	case req.start() == nil:
		return Appointment{}, &ValidationError{Field: "start_time", Reason: "is required"}
	case req.end() == nil:
		return Appointment{}, &ValidationError{Field: "end_time", Reason: "is required"}
	case req.Patient == nil:
		return Appointment{}, &ValidationError{Field: "patient", Reason: "is required"}
	case req.Type == nil:
		return Appointment{}, &ValidationError{Field: "type", Reason: "is required"}
	case req.PractitionerId == nil:
		return Appointment{}, &ValidationError{Field: "practitioner_id", Reason: "is required"}
	}

	a := Appointment{
		PractitionerId: *req.PractitionerId,
		StartTime:      *req.start(),
		EndTime:        *req.end(),
		Patient:        *req.Patient,
		Kind:           Kind(*req.Type),
	}
	if req.VideoLink != nil {
		a.VideoLink = *req.VideoLink
	}
	return a, nil
}

func (req AppointmentRequest) toChanges() Changes {
	changes := Changes{
		PractitionerId: req.PractitionerId,
		StartTime:      req.start(),
		EndTime:        req.end(),
		Patient:        req.Patient,
		VideoLink:      req.VideoLink,
	}
	if req.Type != nil {
		kind := Kind(*req.Type)
		changes.Kind = &kind
	}
	return changes
}

func toDTO(a Appointment) AppointmentDTO {
	return AppointmentDTO{
		Id:             a.Id,
		PractitionerId: a.PractitionerId,
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		Patient:        a.Patient,
		Type:           string(a.Kind),
		VideoLink:      a.VideoLink,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *ValidationError
	var conflictErr *ConflictError
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		rest.WriteError(w, http.StatusUnauthorized, "Authentication required", "")
	case errors.As(err, &validationErr):
		rest.WriteError(w, http.StatusBadRequest, "Invalid appointment", validationErr.Error())
	case errors.Is(err, ErrValidation):
		rest.WriteError(w, http.StatusBadRequest, "Invalid appointment", err.Error())
	case errors.Is(err, ErrAppointmentNotFound):
		rest.WriteError(w, http.StatusNotFound, "Appointment not found", "")
	case errors.As(err, &conflictErr):
		rest.WriteError(w, http.StatusConflict, "Time conflict", conflictErr.Error())
	case errors.Is(err, ErrTimeConflict):
		rest.WriteError(w, http.StatusConflict, "Time conflict", err.Error())
	default:
		log.Errorf("appointment request failed: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
	}
}
