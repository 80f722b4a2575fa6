package calendar

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/timebok/timebok/internal/rest"
	"github.com/timebok/timebok/pkg/appointment"
)

type EntryDTO struct {
	Id                int64     `json:"id"`
	PractitionerId    int       `json:"practitioner_id"`
	PractitionerName  string    `json:"practitioner_name"`
	PractitionerColor string    `json:"practitioner_color,omitempty"`
	Patient           string    `json:"patient"`
	Type              string    `json:"type"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	DayIndex          int       `json:"day_index"`
	TopOffsetMinutes  int       `json:"top_offset_minutes"`
	HeightMinutes     int       `json:"height_minutes"`
	SlotIndex         int       `json:"slot_index"`
}

type NowDTO struct {
	DayIndex      int `json:"day_index"`
	OffsetMinutes int `json:"offset_minutes"`
}

type WeekDTO struct {
	WeekStart time.Time  `json:"week_start"`
	Days      []string   `json:"days"`
	StartHour int        `json:"start_hour"`
	EndHour   int        `json:"end_hour"`
	Entries   []EntryDTO `json:"entries"`
	Now       *NowDTO    `json:"now,omitempty"`
}

type Handler struct {
	service       *Service
	defaultWindow Window
}

func NewHandler(service *Service, defaultWindow Window) *Handler {
	return &Handler{service: service, defaultWindow: defaultWindow}
}

// GetWeek godoc
// @Summary Week grid
// @Description Appointments of the week containing date, positioned on a day/time grid
// @Tags Calendar
// @Produce json
// @Param date query string false "Any instant in the week (RFC3339), defaults to now"
// @Param practitionerId query string false "Practitioner id or 'all'"
// @Param startHour query int false "First visible hour"
// @Param endHour query int false "End of the visible hours"
// @Success 200 {object} WeekDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid parameters"
// @Router /api/calendar/week [get]
func (h *Handler) GetWeek(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	date := h.service.clock.Now()
	if value := query.Get("date"); value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			rest.WriteError(w, http.StatusBadRequest, "Invalid date format", "'date' must be in RFC3339 format")
			return
		}
		date = parsed
	}
	practitionerId, err := appointment.ParsePractitionerFilter(query.Get("practitionerId"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid practitionerId", err.Error())
		return
	}
	window := h.defaultWindow
	if window.StartHour, err = hourParam(query.Get("startHour"), window.StartHour); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid startHour", err.Error())
		return
	}
	if window.EndHour, err = hourParam(query.Get("endHour"), window.EndHour); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid endHour", err.Error())
		return
	}
	log.Tracef("Building week for %s, practitioner %d, window %+v", date, practitionerId, window)

	week, err := h.service.Week(r.Context(), date, practitionerId, window)
	if err != nil {
		if errors.Is(err, ErrInvalidWindow) {
			rest.WriteError(w, http.StatusBadRequest, "Invalid calendar window", err.Error())
			return
		}
		log.Errorf("failed to build week: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	rest.WriteJSON(w, http.StatusOK, weekToDTO(week))
}

func hourParam(value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

func weekToDTO(week Week) WeekDTO {
	dto := WeekDTO{
		WeekStart: week.Start,
		Days:      make([]string, 0, len(week.Days)),
		StartHour: week.Window.StartHour,
		EndHour:   week.Window.EndHour,
		Entries:   make([]EntryDTO, 0, len(week.Entries)),
	}
	for _, day := range week.Days {
		dto.Days = append(dto.Days, day.Format(time.DateOnly))
	}
	for _, e := range week.Entries {
		a := e.Appointment
		dto.Entries = append(dto.Entries, EntryDTO{
			Id:                a.Id,
			PractitionerId:    a.PractitionerId,
			PractitionerName:  e.PractitionerName,
			PractitionerColor: e.PractitionerColor,
			Patient:           a.Patient,
			Type:              string(a.Kind),
			StartTime:         a.StartTime,
			EndTime:           a.EndTime,
			DayIndex:          e.DayIndex,
			TopOffsetMinutes:  e.TopOffsetMinutes,
			HeightMinutes:     e.HeightMinutes,
			SlotIndex:         e.SlotIndex,
		})
	}
	if week.Now != nil {
		dto.Now = &NowDTO{DayIndex: week.Now.DayIndex, OffsetMinutes: week.Now.OffsetMinutes}
	}
	return dto
}
