package v1

import (
	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/Barsa-M/accident-reporting-sub000/internal/scheduler"
	"github.com/Barsa-M/accident-reporting-sub000/internal/service"
)

// DTOToIncidentModel преобразует DTO подачи в доменную модель
func DTOToIncidentModel(dto CreateIncidentRequest) *models.Incident {
	return &models.Incident{
		Origin:      models.IncidentOrigin(dto.Origin),
		ReporterID:  dto.ReporterID,
		Type:        models.IncidentType(dto.Type),
		Severity:    models.Severity(dto.Severity),
		Description: dto.Description,
		Latitude:    dto.Latitude,
		Longitude:   dto.Longitude,
		Address:     dto.Address,
		Media:       dto.Media,
	}
}

// ModelToIncidentResponse преобразует доменную модель в DTO для ответа
func ModelToIncidentResponse(model *models.Incident) *IncidentResponse {
	resp := &IncidentResponse{
		ID:                  model.ID,
		Origin:              string(model.Origin),
		ReporterID:          model.ReporterID,
		Type:                string(model.Type),
		Severity:            string(model.Severity),
		Priority:            model.Priority,
		Description:         model.Description,
		Latitude:            model.Latitude,
		Longitude:           model.Longitude,
		Address:             model.Address,
		Media:               model.Media,
		Status:              string(model.Status),
		AssignedResponderID: model.AssignedResponderID,
		AssignedAt:          model.AssignedAt,
		QueuedAt:            model.QueuedAt,
		StartedAt:           model.StartedAt,
		ResolvedAt:          model.ResolvedAt,
		CancelledAt:         model.CancelledAt,
		Version:             model.Version,
		CreatedAt:           model.CreatedAt,
		UpdatedAt:           model.UpdatedAt,
	}
	if model.AssignedResponderType != nil {
		spec := string(*model.AssignedResponderType)
		resp.AssignedResponderType = &spec
	}
	if resp.Media == nil {
		resp.Media = []string{}
	}
	return resp
}

// ModelsToIncidentResponses преобразует слайс моделей в слайс DTO
func ModelsToIncidentResponses(incidents []*models.Incident) []*IncidentResponse {
	responses := make([]*IncidentResponse, len(incidents))
	for i, model := range incidents {
		responses[i] = ModelToIncidentResponse(model)
	}
	return responses
}

func ModelToResponderResponse(model *models.Responder) *ResponderResponse {
	return &ResponderResponse{
		ID:             model.ID,
		Name:           model.Name,
		Specialization: string(model.Specialization),
		Availability:   string(model.Availability),
		Approval:       string(model.Approval),
		CurrentLoad:    model.CurrentLoad,
		Version:        model.Version,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

func ModelsToResponderResponses(responders []*models.Responder) []*ResponderResponse {
	responses := make([]*ResponderResponse, len(responders))
	for i, model := range responders {
		responses[i] = ModelToResponderResponse(model)
	}
	return responses
}

// DTOToResponderModel - пустые availability/approval заполняются значениями по умолчанию в сервисе
func DTOToResponderModel(dto CreateResponderRequest) *models.Responder {
	return &models.Responder{
		Name:           dto.Name,
		Specialization: models.Specialization(dto.Specialization),
		Availability:   models.Availability(dto.Availability),
		Approval:       models.Approval(dto.Approval),
	}
}

func DTOToStatusUpdate(dto UpdateResponderStatusRequest) models.ResponderStatusUpdate {
	var update models.ResponderStatusUpdate
	if dto.Availability != nil {
		a := models.Availability(*dto.Availability)
		update.Availability = &a
	}
	if dto.Approval != nil {
		a := models.Approval(*dto.Approval)
		update.Approval = &a
	}
	return update
}

func ModelsToHistoryResponses(entries []*models.RoutingHistoryEntry) []*HistoryEntryResponse {
	responses := make([]*HistoryEntryResponse, len(entries))
	for i, e := range entries {
		responses[i] = &HistoryEntryResponse{
			ID:          e.ID,
			IncidentID:  e.IncidentID,
			ResponderID: e.ResponderID,
			Decision:    string(e.Decision),
			Notes:       e.Notes,
			CreatedAt:   e.CreatedAt,
		}
	}
	return responses
}

func ResultToDispatchResponse(result *service.DispatchResult) *DispatchResponse {
	resp := &DispatchResponse{
		Outcome:  string(result.Outcome),
		Incident: ModelToIncidentResponse(result.Incident),
	}
	if result.Responder != nil {
		resp.Responder = ModelToResponderResponse(result.Responder)
	}
	return resp
}

func ReportToSweepResponse(report scheduler.SweepReport) SweepResponse {
	return SweepResponse{
		Reassigned:  report.Reassigned,
		StillQueued: report.StillQueued,
		Failed:      report.Failed,
		Skipped:     report.Skipped,
	}
}

func DriftToResponse(drift []models.LoadDrift) LoadDriftResponse {
	entries := make([]LoadDriftEntryDTO, len(drift))
	for i, d := range drift {
		entries[i] = LoadDriftEntryDTO{
			ResponderID: d.ResponderID,
			CurrentLoad: d.CurrentLoad,
			ActualLoad:  d.ActualLoad,
		}
	}
	return LoadDriftResponse{Consistent: len(drift) == 0, Drift: entries}
}
