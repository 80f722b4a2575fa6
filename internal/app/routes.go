package app

import (
	"github.com/gorilla/mux"
	"github.com/timebok/timebok/internal/database"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies) {

	// Session
	r.HandleFunc("/api/login", deps.LoginLimiter.Limit(deps.AuthHandler.Login)).Methods("POST")
	r.HandleFunc("/api/logout", deps.AuthHandler.Logout).Methods("POST")
	r.HandleFunc("/api/session", deps.AuthHandler.Session).Methods("GET")

	// Appointments
	r.HandleFunc("/api/appointments", deps.AppointmentHandler.ListAppointments).Methods("GET")
	r.HandleFunc("/api/appointments", deps.AppointmentHandler.CreateAppointment).Methods("POST")
	r.HandleFunc("/api/appointments/{id}", deps.AppointmentHandler.GetAppointment).Methods("GET")
	r.HandleFunc("/api/appointments/{id}", deps.AppointmentHandler.UpdateAppointment).Methods("PUT")
	r.HandleFunc("/api/appointments/{id}", deps.AppointmentHandler.DeleteAppointment).Methods("DELETE")

	// Practitioners
	r.HandleFunc("/api/practitioners", deps.PractitionerHandler.ListPractitioners).Methods("GET")
	r.HandleFunc("/api/practitioners", deps.PractitionerHandler.CreatePractitioner).Methods("POST")
	r.HandleFunc("/api/practitioners/{id}", deps.PractitionerHandler.GetPractitioner).Methods("GET")
	r.HandleFunc("/api/practitioners/{id}", deps.PractitionerHandler.UpdatePractitioner).Methods("PUT")
	r.HandleFunc("/api/practitioners/{id}", deps.PractitionerHandler.DeletePractitioner).Methods("DELETE")

	// Calendar
	r.HandleFunc("/api/calendar/week", deps.CalendarHandler.GetWeek).Methods("GET")

	// Health
	r.HandleFunc("/api/health", database.HealthHandler(deps.DB)).Methods("GET")
}
