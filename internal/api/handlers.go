package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crashstack/crash-radar/internal/models"
	"github.com/crashstack/crash-radar/internal/repo"
	"github.com/crashstack/crash-radar/internal/utils"
)

// runRequest is the POST /api/v1/reports/run body. Date is the local
// calendar day the report covers; empty means yesterday in the server's
// report timezone. For weekly reports it is the last day of the week.
type runRequest struct {
	Granularity string `json:"granularity"`
	Date        string `json:"date"`
	Environment string `json:"environment"`
	Release     string `json:"release"`
	DryRun      bool   `json:"dry_run"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleRunReport(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	granularity, err := models.ParseGranularity(req.Granularity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	window, err := s.resolveWindow(granularity, req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filter := models.WindowFilter{
		Environment: req.Environment,
		Release:     req.Release,
	}
	if filter.Environment == "" {
		filter.Environment = s.defaultEnv
	}

	report, err := s.reports.Run(c.Request.Context(), models.ReportRequest{
		Granularity: granularity,
		Window:      window,
		Filter:      filter,
		DryRun:      req.DryRun,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repo.ErrDataUnavailable) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

// resolveWindow maps a local calendar date onto a UTC fetch window.
// Empty dates mean the most recently completed period.
func (s *Server) resolveWindow(granularity models.Granularity, date string) (models.TimeRange, error) {
	day := time.Now().In(s.loc).AddDate(0, 0, -1)
	if date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", date, s.loc)
		if err != nil {
			return models.TimeRange{}, errors.New("date must be YYYY-MM-DD")
		}
		day = parsed
	}

	if granularity == models.GranularityWeekly {
		return utils.WeekWindow(day, s.loc), nil
	}
	return utils.DayWindow(day, s.loc), nil
}
