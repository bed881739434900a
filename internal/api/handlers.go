package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"monitoring-service/internal/db"
	"monitoring-service/internal/models"
)

func (h *Handler) Notify(c *gin.Context) {
	var env models.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		h.logger.Warnf("Invalid notify body: %v", err)
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	req, err := env.ToRequest(models.SourceAPI)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	req, err = h.notifier.Enqueue(c.Request.Context(), req)
	if err != nil {
		h.logger.Errorf("Failed to enqueue notification: %v", err)
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			status = http.StatusServiceUnavailable
		}
		fail(c, status, err)
		return
	}
	c.JSON(http.StatusAccepted, result{Success: true, ID: req.ID})
}

func (h *Handler) NotificationTypes(c *gin.Context) {
	types := models.ChannelTypes()
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) NotificationPriorities(c *gin.Context) {
	type priority struct {
		Value int    `json:"value"`
		Name  string `json:"name"`
	}
	var out []priority
	for _, p := range models.Priorities() {
		out = append(out, priority{Value: int(p), Name: p.String()})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) DeadLetters(c *gin.Context) {
	letters, err := h.notifier.DeadLetters(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to list dead letters: %v", err)
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, letters)
}

func (h *Handler) UnprocessedDeadLetters(c *gin.Context) {
	letters, err := h.notifier.UnprocessedDeadLetters(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to list unprocessed dead letters: %v", err)
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, letters)
}

func (h *Handler) ProcessDeadLetter(c *gin.Context) {
	id := c.Param("id")
	dl, err := h.notifier.MarkProcessed(c.Request.Context(), id)
	if err != nil {
		h.logger.Warnf("Mark dead letter %s processed failed: %v", id, err)
		fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, dl)
}

func (h *Handler) ResendDeadLetter(c *gin.Context) {
	id := c.Param("id")
	req, err := h.notifier.Resend(c.Request.Context(), id)
	if err != nil {
		h.logger.Warnf("Resend dead letter %s failed: %v", id, err)
		fail(c, statusOf(err), err)
		return
	}
	h.logger.Infof("Dead letter %s resent as %s", id, req.ID)
	c.JSON(http.StatusAccepted, result{Success: true, ID: req.ID})
}

func (h *Handler) GetTemplate(c *gin.Context) {
	tpl, err := h.store.GetTemplate(c.Request.Context(), c.Param("name"))
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (h *Handler) PutTemplate(c *gin.Context) {
	var body struct {
		Subject string `json:"subject"`
		Body    string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	tpl := models.Template{
		Name:      strings.TrimSpace(c.Param("name")),
		Subject:   body.Subject,
		Body:      body.Body,
		UpdatedAt: time.Now().UTC(),
	}
	if err := h.store.UpsertTemplate(c.Request.Context(), tpl); err != nil {
		h.logger.Errorf("Failed to save template %s: %v", tpl.Name, err)
		fail(c, http.StatusInternalServerError, err)
		return
	}
	h.logger.Infof("Saved template: %s", tpl.Name)
	c.JSON(http.StatusOK, tpl)
}

func (h *Handler) EvaluateMetric(c *gin.Context) {
	var reading models.MetricReading
	if err := c.ShouldBindJSON(&reading); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := reading.Validate(); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now().UTC()
	}
	events, err := h.engine.Process(c.Request.Context(), reading)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	if events == nil {
		events = []models.AlertEvent{}
	}
	c.JSON(http.StatusOK, events)
}

func (h *Handler) Alerts(c *gin.Context) {
	filter := db.AlertFilter{PatientID: c.Query("patient_id")}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			fail(c, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		filter.Limit = limit
	}
	events, err := h.store.ListAlertEvents(c.Request.Context(), filter)
	if err != nil {
		h.logger.Errorf("Failed to list alert events: %v", err)
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// Health reports queue depth, open dead letters and abandoned evaluations.
// Abandoned evaluations are alert checks that never happened, so any
// non-zero count marks the service degraded.
func (h *Handler) Health(c *gin.Context) {
	unprocessed, err := h.notifier.CountUnprocessedDeadLetters(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	engine := h.engine.Stats()
	status := "ok"
	if engine.Abandoned > 0 {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":                 status,
		"queueDepth":             h.notifier.QueueDepth(),
		"unprocessedDeadLetters": unprocessed,
		"abandonedEvaluations":   engine.Abandoned,
		"delivery":               h.notifier.Stats(),
		"alerting":               engine,
	})
}
