package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Barsa-M/accident-reporting-sub000/internal/config"
	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/Barsa-M/accident-reporting-sub000/internal/scheduler"
	"github.com/Barsa-M/accident-reporting-sub000/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Services - зависимости обработчиков
type Services struct {
	Incidents  service.IncidentService
	Dispatch   service.DispatchService
	Responders service.ResponderService
	History    service.HistoryLog
	Sweeper    scheduler.Sweeper
}

type Handler struct {
	incidentService  service.IncidentService
	dispatchService  service.DispatchService
	responderService service.ResponderService
	historyLog       service.HistoryLog
	sweeper          scheduler.Sweeper
	logger           *logrus.Logger
	validate         *validator.Validate
	cfg              *config.Config
}

func NewHandler(services Services, logger *logrus.Logger, cfg *config.Config) *Handler {
	return &Handler{
		incidentService:  services.Incidents,
		dispatchService:  services.Dispatch,
		responderService: services.Responders,
		historyLog:       services.History,
		sweeper:          services.Sweeper,
		logger:           logger,
		validate:         validator.New(),
		cfg:              cfg,
	}
}

// bind читает JSON и проверяет его; при ошибке ответ уже записан
func (h *Handler) bind(c *gin.Context, log *logrus.Entry, input any) bool {
	if err := c.ShouldBindJSON(input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// bindOptional - как bind, но пустое тело допустимо
func (h *Handler) bindOptional(c *gin.Context, log *logrus.Entry, input any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return h.bind(c, log, input)
}

func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " ID"})
		return uuid.Nil, false
	}
	return id, true
}

// statusFor сопоставляет доменные ошибки с кодами HTTP
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrResponderNotEligible),
		errors.Is(err, models.ErrNotAssignedResponder),
		errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, log *logrus.Entry, err error, msg string) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.WithError(err).Error(msg)
		c.JSON(code, gin.H{"error": "internal server error"})
		return
	}
	log.WithError(err).Warn(msg)
	c.JSON(code, gin.H{"error": err.Error()})
}

// @Summary Submit an incident report
// @Description Create an incident and attempt an immediate dispatch. If dispatch fails the incident stays pending and a warning is returned. Requires API key.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param incident body CreateIncidentRequest true "Incident report"
// @Success 201 {object} CreateIncidentResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents [post]
func (h *Handler) createIncident(c *gin.Context) {
	var input CreateIncidentRequest
	log := h.logger.WithField("method", "createIncident")
	if !h.bind(c, log, &input) {
		return
	}

	model := DTOToIncidentModel(input)
	if err := h.incidentService.CreateIncident(c.Request.Context(), model); err != nil {
		h.fail(c, log, err, "Failed to create incident in service")
		return
	}
	log = log.WithField("id", model.ID)

	result, err := h.dispatchService.Dispatch(c.Request.Context(), model.ID)
	if err != nil {
		// инцидент сохранен, повторить назначение можно позже
		log.WithError(err).Warn("Initial dispatch failed, incident left pending")
		c.JSON(http.StatusCreated, CreateIncidentResponse{
			Incident: ModelToIncidentResponse(model),
			Warning:  "incident saved but dispatch failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, CreateIncidentResponse{
		Incident: ModelToIncidentResponse(result.Incident),
		Outcome:  string(result.Outcome),
	})
}

// @Summary Get a list of incidents
// @Description Get a paginated list of incidents, newest first. Requires API key.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param status query string false "Filter by status"
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Number of items per page" default(20)
// @Success 200 {array} IncidentResponse
// @Failure 400 {object} map[string]string "Unknown status"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents [get]
func (h *Handler) listIncidents(c *gin.Context) {
	log := h.logger.WithField("method", "listIncidents")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	incidents, err := h.incidentService.ListIncidents(c.Request.Context(), models.IncidentFilter{
		Status:   models.IncidentStatus(c.Query("status")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		h.fail(c, log, err, "Failed to list incidents from service")
		return
	}

	c.JSON(http.StatusOK, ModelsToIncidentResponses(incidents))
}

// @Summary Get incident by ID
// @Description Get a single incident by its ID. Requires API key.
// @Tags Incidents
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id} [get]
func (h *Handler) getIncident(c *gin.Context) {
	id, ok := parseID(c, "incident")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getIncident").WithField("id", id)

	incident, err := h.incidentService.GetIncident(c.Request.Context(), id)
	if err != nil {
		h.fail(c, log, err, "Failed to get incident from service")
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Get routing history of an incident
// @Description Routing decisions for the incident, newest first. Requires API key.
// @Tags Incidents
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Success 200 {array} HistoryEntryResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id}/history [get]
func (h *Handler) getHistory(c *gin.Context) {
	id, ok := parseID(c, "incident")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getHistory").WithField("id", id)

	if _, err := h.incidentService.GetIncident(c.Request.Context(), id); err != nil {
		h.fail(c, log, err, "Failed to get incident from service")
		return
	}

	entries, err := h.historyLog.GetHistory(c.Request.Context(), id)
	if err != nil {
		h.fail(c, log, err, "Failed to get routing history")
		return
	}
	c.JSON(http.StatusOK, ModelsToHistoryResponses(entries))
}

// @Summary Dispatch an incident
// @Description Match the incident with the least loaded eligible responder or queue it. Idempotent for already assigned incidents. Requires API key.
// @Tags Dispatch
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} DispatchResponse
// @Failure 400 {object} map[string]string "Invalid incident ID or unroutable type"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 409 {object} map[string]string "Concurrent modification"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id}/dispatch [post]
func (h *Handler) dispatchIncident(c *gin.Context) {
	id, ok := parseID(c, "incident")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "dispatchIncident").WithField("id", id)

	result, err := h.dispatchService.Dispatch(c.Request.Context(), id)
	if err != nil {
		h.fail(c, log, err, "Failed to dispatch incident")
		return
	}
	c.JSON(http.StatusOK, ResultToDispatchResponse(result))
}

// @Summary Assign an incident manually
// @Description Operator assignment to a specific approved responder, bypassing matching. Requires API key.
// @Tags Dispatch
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param assignment body AssignRequest true "Responder to assign"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident or responder not found"
// @Failure 409 {object} map[string]string "Invalid transition or responder not eligible"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id}/assign [post]
func (h *Handler) assignIncident(c *gin.Context) {
	id, ok := parseID(c, "incident")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "assignIncident").WithField("id", id)

	var input AssignRequest
	if !h.bind(c, log, &input) {
		return
	}

	incident, err := h.dispatchService.ManualAssign(c.Request.Context(), id, uuid.MustParse(input.ResponderID), input.Notes)
	if err != nil {
		h.fail(c, log, err, "Failed to assign incident")
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Unassign an incident
// @Description Return an assigned or in-progress incident to pending and release the responder. Requires API key.
// @Tags Dispatch
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param reason body ReasonRequest false "Reason"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 409 {object} map[string]string "Invalid transition"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id}/unassign [post]
func (h *Handler) unassignIncident(c *gin.Context) {
	id, ok := parseID(c, "incident")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "unassignIncident").WithField("id", id)

	var input ReasonRequest
	if !h.bindOptional(c, log, &input) {
		return
	}

	incident, err := h.dispatchService.Unassign(c.Request.Context(), id, input.Reason)
	if err != nil {
		h.fail(c, log, err, "Failed to unassign incident")
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Start work on an incident
// @Description The assigned responder starts work. Requires API key.
// @Tags Dispatch
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param action body ResponderActionRequest true "Acting responder"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 409 {object} map[string]string "Invalid transition or responder not assigned"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id}/start [post]
func (h *Handler) startIncident(c *gin.Context) {
	id, ok := parseID(c, "incident")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "startIncident").WithField("id", id)

	var input ResponderActionRequest
	if !h.bind(c, log, &input) {
		return
	}

	incident, err := h.dispatchService.Start(c.Request.Context(), id, uuid.MustParse(input.ResponderID))
	if err != nil {
		h.fail(c, log, err, "Failed to start incident")
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Resolve an incident
// @Description The assigned responder completes the incident; the responder load is released. Requires API key.
// @Tags Dispatch
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param action body ResponderActionRequest true "Acting responder"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 409 {object} map[string]string "Invalid transition or responder not assigned"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id}/resolve [post]
func (h *Handler) resolveIncident(c *gin.Context) {
	id, ok := parseID(c, "incident")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "resolveIncident").WithField("id", id)

	var input ResponderActionRequest
	if !h.bind(c, log, &input) {
		return
	}

	incident, err := h.dispatchService.Resolve(c.Request.Context(), id, uuid.MustParse(input.ResponderID), input.Notes)
	if err != nil {
		h.fail(c, log, err, "Failed to resolve incident")
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Reject an assignment
// @Description The assigned responder declines; the incident is re-dispatched excluding that responder. Requires API key.
// @Tags Dispatch
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param action body ResponderActionRequest true "Rejecting responder"
// @Success 200 {object} DispatchResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 409 {object} map[string]string "Invalid transition or responder not assigned"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id}/reject [post]
func (h *Handler) rejectIncident(c *gin.Context) {
	id, ok := parseID(c, "incident")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "rejectIncident").WithField("id", id)

	var input ResponderActionRequest
	if !h.bind(c, log, &input) {
		return
	}

	result, err := h.dispatchService.Reject(c.Request.Context(), id, uuid.MustParse(input.ResponderID), input.Notes)
	if err != nil {
		h.fail(c, log, err, "Failed to reject incident")
		return
	}
	c.JSON(http.StatusOK, ResultToDispatchResponse(result))
}

// @Summary Cancel an incident
// @Description Administrative close from any non-terminal state. Requires API key.
// @Tags Dispatch
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Incident ID"
// @Param reason body ReasonRequest false "Reason"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 409 {object} map[string]string "Incident already closed"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id}/cancel [post]
func (h *Handler) cancelIncident(c *gin.Context) {
	id, ok := parseID(c, "incident")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "cancelIncident").WithField("id", id)

	var input ReasonRequest
	if !h.bindOptional(c, log, &input) {
		return
	}

	incident, err := h.dispatchService.Cancel(c.Request.Context(), id, input.Reason)
	if err != nil {
		h.fail(c, log, err, "Failed to cancel incident")
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Register a responder
// @Description Add a responder to the registry. Defaults: off_duty, pending approval. Requires API key.
// @Tags Responders
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param responder body CreateResponderRequest true "Responder"
// @Success 201 {object} ResponderResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /responders [post]
func (h *Handler) createResponder(c *gin.Context) {
	var input CreateResponderRequest
	log := h.logger.WithField("method", "createResponder")
	if !h.bind(c, log, &input) {
		return
	}

	model := DTOToResponderModel(input)
	if err := h.responderService.RegisterResponder(c.Request.Context(), model); err != nil {
		h.fail(c, log, err, "Failed to register responder")
		return
	}
	c.JSON(http.StatusCreated, ModelToResponderResponse(model))
}

// @Summary Get a list of responders
// @Description Paginated responder registry in registration order. Requires API key.
// @Tags Responders
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Number of items per page" default(20)
// @Success 200 {array} ResponderResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /responders [get]
func (h *Handler) listResponders(c *gin.Context) {
	log := h.logger.WithField("method", "listResponders")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	responders, err := h.responderService.ListResponders(c.Request.Context(), page, pageSize)
	if err != nil {
		h.fail(c, log, err, "Failed to list responders")
		return
	}
	c.JSON(http.StatusOK, ModelsToResponderResponses(responders))
}

// @Summary Get responder by ID
// @Tags Responders
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Responder ID"
// @Success 200 {object} ResponderResponse
// @Failure 400 {object} map[string]string "Invalid responder ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Responder not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /responders/{id} [get]
func (h *Handler) getResponder(c *gin.Context) {
	id, ok := parseID(c, "responder")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getResponder").WithField("id", id)

	responder, err := h.responderService.GetResponder(c.Request.Context(), id)
	if err != nil {
		h.fail(c, log, err, "Failed to get responder")
		return
	}
	c.JSON(http.StatusOK, ModelToResponderResponse(responder))
}

// @Summary Update responder status
// @Description Change availability and/or approval. Becoming available and approved triggers a queue sweep. Requires API key.
// @Tags Responders
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Responder ID"
// @Param status body UpdateResponderStatusRequest true "New status"
// @Success 200 {object} ResponderResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Responder not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /responders/{id}/status [put]
func (h *Handler) updateResponderStatus(c *gin.Context) {
	id, ok := parseID(c, "responder")
	if !ok {
		return
	}
	log := h.logger.WithField("method", "updateResponderStatus").WithField("id", id)

	var input UpdateResponderStatusRequest
	if !h.bind(c, log, &input) {
		return
	}

	responder, err := h.responderService.UpdateStatus(c.Request.Context(), id, DTOToStatusUpdate(input))
	if err != nil {
		h.fail(c, log, err, "Failed to update responder status")
		return
	}
	c.JSON(http.StatusOK, ModelToResponderResponse(responder))
}

// @Summary Sweep the dispatch queue
// @Description Re-dispatch queued incidents now. Skipped when another replica holds the sweep lock. Requires API key.
// @Tags Admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} SweepResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /dispatch/sweep [post]
func (h *Handler) sweepQueue(c *gin.Context) {
	log := h.logger.WithField("method", "sweepQueue")

	report, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		h.fail(c, log, err, "Failed to sweep queue")
		return
	}
	c.JSON(http.StatusOK, ReportToSweepResponse(report))
}

// @Summary Check responder load integrity
// @Description Compare each responder's current_load with its active assignment count. Requires API key.
// @Tags Admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} LoadDriftResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /admin/integrity [get]
func (h *Handler) checkIntegrity(c *gin.Context) {
	log := h.logger.WithField("method", "checkIntegrity")

	drift, err := h.responderService.CheckLoadIntegrity(c.Request.Context())
	if err != nil {
		h.fail(c, log, err, "Failed to check load integrity")
		return
	}
	c.JSON(http.StatusOK, DriftToResponse(drift))
}

// @Summary Get application health status
// @Description Get health status of the application
// @Tags System
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string "Status OK"
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
