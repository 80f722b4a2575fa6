package app

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/timebok/timebok/internal/config"
	"github.com/timebok/timebok/internal/event_bus"
	"github.com/timebok/timebok/internal/utils"
	"github.com/timebok/timebok/pkg/appointment"
	"github.com/timebok/timebok/pkg/audit"
	"github.com/timebok/timebok/pkg/auth"
	"github.com/timebok/timebok/pkg/calendar"
	"github.com/timebok/timebok/pkg/practitioner"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	DB       *pgxpool.Pool
	Clock    utils.Clock
	EventBus *event_bus.EventBus
	Audit    *audit.Logger

	Sessions     *auth.SessionManager
	LoginLimiter *auth.LoginLimiter
	AuthHandler  *auth.Handler

	AppointmentRepo    appointment.Repository
	AppointmentService *appointment.ServiceImpl
	AppointmentHandler *appointment.Handler

	PractitionerRepo    practitioner.Repository
	PractitionerService *practitioner.ServiceImpl
	PractitionerHandler *practitioner.Handler

	CalendarService *calendar.Service
	CalendarHandler *calendar.Handler
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *pgxpool.Pool, cfg config.Application) *Dependencies {
	deps := &Dependencies{DB: db}

	deps.Clock = &utils.SystemClock{}
	deps.EventBus = event_bus.NewEventBus()
	deps.Audit = audit.NewLogger(nil)
	deps.Audit.Subscribe(deps.EventBus)

	deps.AppointmentRepo = appointment.NewRepo(db)
	deps.AppointmentService = appointment.NewService(deps.AppointmentRepo, deps.EventBus, cfg.Calendar.MinDuration())
	deps.AppointmentHandler = appointment.NewHandler(deps.AppointmentService)

	deps.PractitionerRepo = practitioner.NewRepo(db)
	deps.PractitionerService = practitioner.NewService(deps.PractitionerRepo, deps.AppointmentRepo, deps.EventBus, deps.Clock)
	deps.PractitionerHandler = practitioner.NewHandler(deps.PractitionerService)

	deps.Sessions = auth.NewSessionManager(cfg.Auth.JwtSecret, cfg.Auth.SessionTTL, deps.Clock)
	deps.LoginLimiter = auth.NewLoginLimiter(cfg.Auth.LoginRateLimit, cfg.Auth.LoginBurst)
	deps.AuthHandler = auth.NewHandler(deps.PractitionerService, deps.Sessions, cfg.Auth.CookieName)

	deps.CalendarService = calendar.NewService(
		deps.AppointmentService,
		deps.PractitionerService,
		deps.Clock,
		cfg.Calendar.Location(),
		time.Duration(cfg.Calendar.SlotMinutes)*time.Minute,
	)
	deps.CalendarHandler = calendar.NewHandler(deps.CalendarService, calendar.Window{
		StartHour: cfg.Calendar.StartHour,
		EndHour:   cfg.Calendar.EndHour,
	})

	return deps
}

func (d *Dependencies) Close() {
	d.Audit.Close()
	d.DB.Close()
}
