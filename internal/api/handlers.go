package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pill-reminder/internal/database"
)

var errBadRequest = errors.New("bad request")

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", errBadRequest, err)
}

type meResponse struct {
	UserID    string            `json:"userId"`
	Role      database.Role     `json:"role"`
	Platform  database.Platform `json:"platform,omitempty"`
	HasDevice bool              `json:"hasDevice"`
}

func (s *Server) getMe(c *gin.Context) {
	id := identity(c)
	cfg, _, err := s.services.Roles.Profile(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, meResponse{
		UserID:    id,
		Role:      cfg.Role,
		Platform:  cfg.Platform,
		HasDevice: cfg.PushToken != "",
	})
}

type roleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (s *Server) putRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest(err))
		return
	}
	role, err := database.ParseRole(req.Role)
	if err != nil {
		writeError(c, badRequest(err))
		return
	}
	cfg, err := s.services.Roles.Select(c.Request.Context(), identity(c), role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, meResponse{UserID: cfg.UserID, Role: cfg.Role, Platform: cfg.Platform, HasDevice: cfg.PushToken != ""})
}

type deviceRequest struct {
	Platform string `json:"platform"`
	Token    string `json:"token" binding:"required"`
}

func (s *Server) postDevice(c *gin.Context) {
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest(err))
		return
	}
	if req.Platform == "" {
		req.Platform = string(database.PlatformExpo)
	}
	platform, err := database.ParsePlatform(req.Platform)
	if err != nil {
		writeError(c, badRequest(err))
		return
	}
	cfg, err := s.services.Roles.RegisterDevice(c.Request.Context(), identity(c), platform, req.Token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, meResponse{UserID: cfg.UserID, Role: cfg.Role, Platform: cfg.Platform, HasDevice: true})
}

func daysParam(c *gin.Context) (int, error) {
	raw := c.Query("days")
	if raw == "" {
		return 0, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 {
		return 0, badRequest(fmt.Errorf("days must be a positive integer"))
	}
	return days, nil
}

func (s *Server) listRecords(c *gin.Context) {
	days, err := daysParam(c)
	if err != nil {
		writeError(c, err)
		return
	}
	records, err := s.services.Intake.History(c.Request.Context(), days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

type recordResponse struct {
	Exists bool                 `json:"exists"`
	Record database.DailyRecord `json:"record"`
}

func (s *Server) getRecord(c *gin.Context) {
	rec, exists, err := s.services.Intake.Get(c.Request.Context(), c.Param("dayKey"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, recordResponse{Exists: exists, Record: rec})
}

type intakeRequest struct {
	TakenAt string   `json:"takenAt"`
	Variant string   `json:"variant"`
	Notes   []string `json:"notes"`
}

func (r intakeRequest) parse() (database.Variant, []database.Note, error) {
	variant, err := database.ParseVariant(r.Variant)
	if err != nil {
		return "", nil, badRequest(err)
	}
	notes, err := database.ParseNotes(r.Notes)
	if err != nil {
		return "", nil, badRequest(err)
	}
	return variant, notes, nil
}

func (s *Server) putRecord(c *gin.Context) {
	var req intakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest(err))
		return
	}
	variant, notes, err := req.parse()
	if err != nil {
		writeError(c, err)
		return
	}
	rec, err := s.services.Intake.RecordRetroactive(c.Request.Context(), c.Param("dayKey"), req.TakenAt, variant, notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, recordResponse{Exists: true, Record: rec})
}

func (s *Server) deleteRecord(c *gin.Context) {
	if err := s.services.Intake.Delete(c.Request.Context(), c.Param("dayKey")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) confirmToday(c *gin.Context) {
	var req intakeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, badRequest(err))
			return
		}
	}
	variant, notes, err := req.parse()
	if err != nil {
		writeError(c, err)
		return
	}
	rec, err := s.services.Intake.Confirm(c.Request.Context(), variant, notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, recordResponse{Exists: true, Record: rec})
}

func (s *Server) getStats(c *gin.Context) {
	days, err := daysParam(c)
	if err != nil {
		writeError(c, err)
		return
	}
	summary, err := s.services.Analytics.Summary(c.Request.Context(), days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) listReminders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reminders": s.services.Intake.PendingReminders(c.Request.Context())})
}

func (s *Server) runEscalation(c *gin.Context) {
	result, err := s.services.Escalation.Run(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error(), "result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}
