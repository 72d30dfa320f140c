package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/crm-service/internal/api/dto"
	"github.com/spec-kit/crm-service/internal/domain"
	"github.com/spec-kit/crm-service/internal/repository"
	"github.com/spec-kit/crm-service/internal/service"
	apperrors "github.com/spec-kit/crm-service/pkg/util/errorutil"
)

// LeadsHandler manages lead endpoints.
type LeadsHandler struct {
	leads         *service.LeadService
	qualification *service.QualificationService
}

// NewLeadsHandler constructs handler.
func NewLeadsHandler(leads *service.LeadService, qualification *service.QualificationService) *LeadsHandler {
	return &LeadsHandler{leads: leads, qualification: qualification}
}

// CreateLead POST /leads.
func (h *LeadsHandler) CreateLead(c *fiber.Ctx) error {
	principal, err := caller(c)
	if err != nil {
		return err
	}
	var req dto.CreateLeadRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	details, err := h.leads.Create(c.UserContext(), principal, service.LeadInput{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Company: req.Company,
		Source:  req.Source,
		Notes:   req.Notes,
		Status:  req.Status,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewLeadDetailsResponse(details)})
}

// ListLeads GET /leads.
func (h *LeadsHandler) ListLeads(c *fiber.Ctx) error {
	principal, err := caller(c)
	if err != nil {
		return err
	}
	filter, err := parseLeadQuery(c)
	if err != nil {
		return err
	}
	leads, err := h.leads.List(c.UserContext(), principal, filter)
	if err != nil {
		return err
	}
	items := make([]dto.LeadResponse, 0, len(leads))
	for i := range leads {
		items = append(items, dto.NewLeadResponse(&leads[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetLead GET /leads/:id.
func (h *LeadsHandler) GetLead(c *fiber.Ctx) error {
	principal, err := caller(c)
	if err != nil {
		return err
	}
	details, err := h.leads.Get(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewLeadDetailsResponse(details)})
}

// UpdateLead PATCH /leads/:id.
func (h *LeadsHandler) UpdateLead(c *fiber.Ctx) error {
	principal, err := caller(c)
	if err != nil {
		return err
	}
	var req dto.UpdateLeadRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	details, err := h.leads.Update(c.UserContext(), principal, c.Params("id"), service.LeadInput{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Company: req.Company,
		Source:  req.Source,
		Notes:   req.Notes,
		Status:  req.Status,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewLeadDetailsResponse(details)})
}

// DeleteLead DELETE /leads/:id.
func (h *LeadsHandler) DeleteLead(c *fiber.Ctx) error {
	principal, err := caller(c)
	if err != nil {
		return err
	}
	if err := h.leads.Delete(c.UserContext(), principal, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ChangeStatus PATCH /leads/:id/status.
func (h *LeadsHandler) ChangeStatus(c *fiber.Ctx) error {
	principal, err := caller(c)
	if err != nil {
		return err
	}
	var req dto.StatusChangeRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	result, err := h.qualification.ChangeStatus(c.UserContext(), principal, c.Params("id"), service.StatusChangeInput{
		Status:     req.Status,
		Reason:     req.Reason,
		Department: req.Department,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewStatusChangeResponse(result)})
}

// History GET /leads/:id/history.
func (h *LeadsHandler) History(c *fiber.Ctx) error {
	principal, err := caller(c)
	if err != nil {
		return err
	}
	limit, offset := pagination(c)
	entries, err := h.leads.History(c.UserContext(), principal, c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.LeadHistoryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, dto.NewLeadHistoryResponse(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseLeadQuery(c *fiber.Ctx) (service.LeadListFilter, error) {
	filter := service.LeadListFilter{Search: c.Query("search")}
	for _, raw := range splitList(c.Query("status")) {
		status, err := domain.ParseLeadStatus(raw)
		if err != nil {
			return filter, apperrors.NewValidationError("unknown status filter", map[string]any{"status": raw})
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	sort := c.Query("sort")
	if strings.HasPrefix(sort, "-") {
		filter.SortDesc = true
		sort = strings.TrimPrefix(sort, "-")
	}
	switch field := repository.LeadSortField(sort); field {
	case "":
	case repository.LeadSortCreatedAt, repository.LeadSortUpdatedAt, repository.LeadSortName:
		filter.SortBy = field
	default:
		return filter, apperrors.NewValidationError("unknown sort field", map[string]any{"sort": sort})
	}

	filter.Limit, filter.Offset = pagination(c)
	return filter, nil
}
