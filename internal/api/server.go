package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pill-reminder/internal/database"
	"pill-reminder/internal/push"
	"pill-reminder/internal/services"
)

type Server struct {
	services *services.ServiceManager
	secret   []byte
}

func NewServer(sm *services.ServiceManager, jwtSecret string) *Server {
	return &Server{services: sm, secret: []byte(jwtSecret)}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(AuthMiddleware(s.secret))
	{
		v1.GET("/me", s.getMe)
		v1.PUT("/me/role", s.putRole)
		v1.POST("/devices", s.postDevice)

		v1.GET("/records", s.listRecords)
		v1.GET("/records/:dayKey", s.getRecord)
		v1.GET("/records/:dayKey/watch", s.watchRecord)
		v1.GET("/stats", s.getStats)
		v1.GET("/reminders", s.listReminders)

		taker := v1.Group("")
		taker.Use(s.requireRole(database.RolePillTaker))
		{
			taker.PUT("/records/:dayKey", s.putRecord)
			taker.DELETE("/records/:dayKey", s.deleteRecord)
			taker.POST("/records/today/confirm", s.confirmToday)
		}

		v1.POST("/escalation/run",
			s.requireRole(database.RolePillTaker, database.RoleReminderRecipient),
			s.runEscalation)
	}

	return r
}

func writeError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidDayKey),
		errors.Is(err, services.ErrInvalidTakenAt),
		errors.Is(err, services.ErrInvalidToken),
		errors.Is(err, services.ErrFutureDay),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrRoleNotSelected):
		return http.StatusConflict
	case errors.Is(err, services.ErrNoRecipientConfigured),
		errors.Is(err, services.ErrNoValidRecipientToken):
		return http.StatusConflict
	case errors.Is(err, services.ErrAllDeliveriesFailed),
		errors.Is(err, push.ErrDeliveryRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
