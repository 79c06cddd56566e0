package services

import (
	"context"
	"log"

	"pill-reminder/internal/database"
	"pill-reminder/internal/events"
	"pill-reminder/internal/push"
	"pill-reminder/internal/utils"
)

type Options struct {
	Clock     utils.Clock
	Window    ReminderWindow
	Publisher events.Publisher
}

type ServiceManager struct {
	Roles      *RoleService
	Intake     *IntakeService
	Reminders  *ReminderScheduler
	Escalation *EscalationEngine
	Analytics  *AnalyticsService
	router     *push.Router
	repository *database.Repository
}

func NewServiceManager(store database.Store, router *push.Router, opts Options) *ServiceManager {
	repo := database.NewRepository(store)

	facility := NewTimerFacility(NewRegistrationSender(repo, router), opts.Clock.Now)
	reminders := NewReminderScheduler(facility, opts.Clock)
	intake := NewIntakeService(repo, reminders, opts.Window, opts.Clock)

	roles := NewRoleService(repo)
	roles.OnChange(intake.ResyncReminders)

	return &ServiceManager{
		Roles:      roles,
		Intake:     intake,
		Reminders:  reminders,
		Escalation: NewEscalationEngine(repo, repo, router, opts.Publisher, opts.Clock),
		Analytics:  NewAnalyticsService(repo, opts.Clock),
		router:     router,
		repository: repo,
	}
}

// SetPushTransport wires a transport that is built after the services, like the Telegram bot.
func (sm *ServiceManager) SetPushTransport(platform database.Platform, t push.Transport) {
	sm.router.Register(platform, t)
	log.Printf("✅ Push transport registered: %s", platform)
}

func (sm *ServiceManager) ResyncReminders(ctx context.Context) error {
	return sm.Intake.ResyncReminders(ctx)
}
