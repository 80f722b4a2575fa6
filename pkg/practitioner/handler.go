package practitioner

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/timebok/timebok/internal/rest"
	"github.com/timebok/timebok/pkg/auth"
)

type PractitionerDTO struct {
	Id       int    `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Color    string `json:"color"`
	Username string `json:"username,omitempty"`
	CanLogin bool   `json:"can_login"`
}

type PractitionerRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=100"`
	Role     *string `json:"role" validate:"omitempty,max=100"`
	Color    *string `json:"color" validate:"omitempty,hexcolor"`
	Username *string `json:"username" validate:"omitempty,max=64"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// ListPractitioners godoc
// @Summary List practitioners
// @Tags Practitioner
// @Produce json
// @Success 200 {array} PractitionerDTO
// @Router /api/practitioners [get]
func (h *Handler) ListPractitioners(w http.ResponseWriter, r *http.Request) {
	log.Trace("Listing practitioners")

	practitioners, err := h.service.ListPractitioners(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	dtos := make([]PractitionerDTO, 0, len(practitioners))
	for _, p := range practitioners {
		dtos = append(dtos, toDTO(p))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// GetPractitioner godoc
// @Summary Get a practitioner
// @Tags Practitioner
// @Produce json
// @Param id path int true "Practitioner id"
// @Success 200 {object} PractitionerDTO
// @Failure 404 {object} rest.ErrorResponse "Practitioner not found"
// @Router /api/practitioners/{id} [get]
func (h *Handler) GetPractitioner(w http.ResponseWriter, r *http.Request) {
	id, ok := practitionerId(w, r)
	if !ok {
		return
	}
	practitioner, err := h.service.GetPractitioner(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(practitioner))
}

// CreatePractitioner godoc
// @Summary Create a practitioner
// @Description A password is required when a username is given
// @Tags Practitioner
// @Accept json
// @Produce json
// @Param practitioner body PractitionerRequest true "Practitioner"
// @Success 201 {object} PractitionerDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid request"
// @Failure 401 {object} rest.ErrorResponse "Not logged in"
// @Failure 409 {object} rest.ErrorResponse "Username taken"
// @Router /api/practitioners [post]
func (h *Handler) CreatePractitioner(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating practitioner")
	if !requireCaller(w, r) {
		return
	}

	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	if req.Name == nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid practitioner", "name is required")
		return
	}

	practitioner := Practitioner{Name: *req.Name}
	if req.Role != nil {
		practitioner.Role = *req.Role
	}
	if req.Color != nil {
		practitioner.Color = *req.Color
	}
	if req.Username != nil {
		practitioner.Username = *req.Username
	}
	password := ""
	if req.Password != nil {
		password = *req.Password
	}

	created, err := h.service.CreatePractitioner(r.Context(), practitioner, password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, toDTO(created))
}

// UpdatePractitioner godoc
// @Summary Update a practitioner
// @Description Omitted fields keep their value. An empty username disables login.
// @Tags Practitioner
// @Accept json
// @Produce json
// @Param id path int true "Practitioner id"
// @Param practitioner body PractitionerRequest true "Changed fields"
// @Success 200 {object} PractitionerDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid request"
// @Failure 401 {object} rest.ErrorResponse "Not logged in"
// @Failure 404 {object} rest.ErrorResponse "Practitioner not found"
// @Failure 409 {object} rest.ErrorResponse "Username taken"
// @Router /api/practitioners/{id} [put]
func (h *Handler) UpdatePractitioner(w http.ResponseWriter, r *http.Request) {
	if !requireCaller(w, r) {
		return
	}
	id, ok := practitionerId(w, r)
	if !ok {
		return
	}
	log.Debugf("Updating practitioner %d", id)

	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	updated, err := h.service.UpdatePractitioner(r.Context(), id, Changes{
		Name:     req.Name,
		Role:     req.Role,
		Color:    req.Color,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(updated))
}

// DeletePractitioner godoc
// @Summary Delete a practitioner
// @Description Fails while the practitioner has appointments ending in the future
// @Tags Practitioner
// @Param id path int true "Practitioner id"
// @Success 204 "No Content"
// @Failure 401 {object} rest.ErrorResponse "Not logged in"
// @Failure 404 {object} rest.ErrorResponse "Practitioner not found"
// @Failure 409 {object} rest.ErrorResponse "Practitioner has upcoming appointments"
// @Router /api/practitioners/{id} [delete]
func (h *Handler) DeletePractitioner(w http.ResponseWriter, r *http.Request) {
	if !requireCaller(w, r) {
		return
	}
	id, ok := practitionerId(w, r)
	if !ok {
		return
	}
	log.Debugf("Deleting practitioner %d", id)

	if err := h.service.DeletePractitioner(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requireCaller(w http.ResponseWriter, r *http.Request) bool {
	if _, err := auth.CurrentCaller(r.Context()); err != nil {
		rest.WriteError(w, http.StatusUnauthorized, "Authentication required", "")
		return false
	}
	return true
}

func practitionerId(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		rest.WriteError(w, http.StatusNotFound, "Practitioner not found", "")
		return 0, false
	}
	return id, true
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (PractitionerRequest, bool) {
	var req PractitionerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
		return PractitionerRequest{}, false
	}
	if err := rest.ValidateStruct(req); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid practitioner", rest.FormatValidationError(err))
		return PractitionerRequest{}, false
	}
	return req, true
}

func toDTO(p Practitioner) PractitionerDTO {
	return PractitionerDTO{
		Id:       p.Id,
		Name:     p.Name,
		Role:     p.Role,
		Color:    p.Color,
		Username: p.Username,
		CanLogin: p.HasCredentials(),
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		rest.WriteError(w, http.StatusUnauthorized, "Authentication required", "")
	case errors.Is(err, ErrInvalidPractitioner):
		rest.WriteError(w, http.StatusBadRequest, "Invalid practitioner", err.Error())
	case errors.Is(err, ErrPractitionerNotFound):
		rest.WriteError(w, http.StatusNotFound, "Practitioner not found", "")
	case errors.Is(err, ErrUsernameTaken):
		rest.WriteError(w, http.StatusConflict, "Username is already taken", "")
	case errors.Is(err, ErrPractitionerHasAppointments):
		rest.WriteError(w, http.StatusConflict, "Practitioner has upcoming appointments", err.Error())
	default:
		log.Errorf("practitioner request failed: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
	}
}
