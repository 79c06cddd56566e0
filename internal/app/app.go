package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"pill-reminder/internal/api"
	"pill-reminder/internal/config"
	"pill-reminder/internal/database"
	"pill-reminder/internal/events"
	"pill-reminder/internal/push"
	"pill-reminder/internal/services"
	"pill-reminder/internal/telegram"
	"pill-reminder/internal/utils"

	"github.com/robfig/cron/v3"
)

// dailyResyncSpec rolls the reminder window forward just after local midnight.
const dailyResyncSpec = "1 0 * * *"

type Application struct {
	config     *config.Config
	store      database.Store
	publisher  events.Publisher
	bot        *telegram.Bot
	services   *services.ServiceManager
	httpServer *http.Server
	cron       *cron.Cron
	clock      utils.Clock
	cancelFunc context.CancelFunc
	ctx        context.Context
}

func New(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	store, err := database.Open(ctx, cfg.Database.URL, cfg.Database.Path)
	if err != nil {
		cancel()
		return nil, err
	}

	router := push.NewRouter()
	router.Register(database.PlatformExpo, push.NewExpoClient(cfg.Push.ExpoURL, cfg.Push.ExpoAccessToken, cfg.Push.Timeout))
	if cfg.Push.SNSEnabled {
		snsClient, err := push.NewSNSClient(ctx, cfg.Push.AWSRegion)
		if err != nil {
			store.Close()
			cancel()
			return nil, err
		}
		router.Register(database.PlatformSNS, snsClient)
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Printf("✅ Escalation events go to kafka topic %s", cfg.Kafka.Topic)
	}

	clock := utils.NewClock(cfg.Location())
	serviceManager := services.NewServiceManager(store, router, services.Options{
		Clock:     clock,
		Window:    services.ReminderWindow{Days: cfg.Schedule.WindowDays, Cutoff: cfg.ReminderCutoff()},
		Publisher: publisher,
	})

	app := &Application{
		config:     cfg,
		store:      store,
		publisher:  publisher,
		services:   serviceManager,
		cron:       cron.New(cron.WithLocation(clock.Location)),
		clock:      clock,
		cancelFunc: cancel,
		ctx:        ctx,
	}

	if cfg.Telegram.Token != "" {
		bot, err := telegram.NewBot(cfg.Telegram.Token, serviceManager, clock)
		if err != nil {
			app.close()
			return nil, err
		}
		serviceManager.SetPushTransport(database.PlatformTelegram, bot)
		app.bot = bot
	} else {
		log.Println("⚠️ TG_TOKEN not set, telegram bot disabled")
	}

	if cfg.Server.JWTSecret != "" {
		app.httpServer = &http.Server{
			Addr:              cfg.Server.Address,
			Handler:           api.NewServer(serviceManager, cfg.Server.JWTSecret).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	} else {
		log.Println("⚠️ JWT_SECRET not set, HTTP API disabled")
	}

	if err := app.setupCronJobs(); err != nil {
		app.close()
		return nil, err
	}

	return app, nil
}

func (a *Application) Services() *services.ServiceManager {
	return a.services
}

func (a *Application) Clock() utils.Clock {
	return a.clock
}

func (a *Application) Start() error {
	log.Println("🚀 Starting pill reminder...")

	if a.bot != nil {
		go a.bot.Start(a.ctx)
	}

	if a.httpServer != nil {
		go func() {
			log.Printf("🌐 API listening on %s", a.httpServer.Addr)
			if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("❌ HTTP server stopped: %v", err)
			}
		}()
	}

	a.cron.Start()

	a.resync()

	if a.bot != nil {
		log.Printf("✅ Started. Bot: @%s", a.bot.GetUsername())
	} else {
		log.Println("✅ Started")
	}
	log.Println(a.clock.TimezoneInfo())
	return nil
}

func (a *Application) Stop() error {
	log.Println("🛑 Stopping...")

	a.cancelFunc()
	<-a.cron.Stop().Done()

	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(ctx); err != nil {
			log.Printf("⚠️ HTTP shutdown: %v", err)
		}
	}

	if err := a.services.Reminders.CancelAll(context.Background()); err != nil {
		log.Printf("⚠️ Cancel reminders: %v", err)
	}

	a.close()
	log.Println("✅ Stopped")
	return nil
}

// Close releases storage and the event publisher without touching jobs or servers.
func (a *Application) Close() error {
	a.cancelFunc()
	a.close()
	return nil
}

func (a *Application) close() {
	if err := a.publisher.Close(); err != nil {
		log.Printf("⚠️ Close event publisher: %v", err)
	}
	if err := a.store.Close(); err != nil {
		log.Printf("⚠️ Close database: %v", err)
	}
}

func (a *Application) setupCronJobs() error {
	escalationSpec := a.config.EscalationAt().CronSpec()
	if _, err := a.cron.AddFunc(escalationSpec, a.escalate); err != nil {
		return fmt.Errorf("schedule escalation %q: %w", escalationSpec, err)
	}

	if _, err := a.cron.AddFunc(dailyResyncSpec, a.resync); err != nil {
		return fmt.Errorf("schedule daily re-sync: %w", err)
	}

	log.Printf("⏰ Escalation check at %s, reminders at %s (%s)",
		a.config.EscalationAt(), a.config.ReminderCutoff(), a.clock.Location)
	return nil
}

func (a *Application) escalate() {
	ctx, cancel := context.WithTimeout(a.ctx, 2*time.Minute)
	defer cancel()

	result, err := a.services.Escalation.Run(ctx)
	if err != nil {
		log.Printf("❌ Escalation run failed: %v", err)
		return
	}
	log.Printf("🔎 Escalation run %s for %s: %s %s", result.RunID, result.DayKey, result.Outcome, result.Reason)
}

func (a *Application) resync() {
	ctx, cancel := context.WithTimeout(a.ctx, time.Minute)
	defer cancel()

	if err := a.services.ResyncReminders(ctx); err != nil {
		if errors.Is(err, services.ErrPermissionDenied) {
			log.Printf("⚠️ Reminders not scheduled: %v", err)
			return
		}
		log.Printf("❌ Reminder re-sync failed: %v", err)
		return
	}
	log.Printf("✅ Reminders scheduled: %d pending", len(a.services.Reminders.Pending(ctx)))
}
