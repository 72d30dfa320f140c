package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/crm-service/internal/api/dto"
	"github.com/spec-kit/crm-service/internal/domain"
	"github.com/spec-kit/crm-service/internal/service"
	apperrors "github.com/spec-kit/crm-service/pkg/util/errorutil"
)

// ClientsHandler exposes client accounts.
type ClientsHandler struct {
	clients *service.ClientService
}

// NewClientsHandler constructs handler.
func NewClientsHandler(clients *service.ClientService) *ClientsHandler {
	return &ClientsHandler{clients: clients}
}

// ListClients GET /clients.
func (h *ClientsHandler) ListClients(c *fiber.Ctx) error {
	principal, err := caller(c)
	if err != nil {
		return err
	}
	filter := service.ClientListFilter{Search: c.Query("search")}
	if raw := c.Query("client_status"); raw != "" {
		status := domain.ClientStatus(raw)
		if status != domain.ClientStatusQualified && status != domain.ClientStatusUnqualified {
			return apperrors.NewValidationError("unknown client_status filter", map[string]any{"client_status": raw})
		}
		filter.ClientStatus = &status
	}
	filter.Limit, filter.Offset = pagination(c)

	clients, err := h.clients.List(c.UserContext(), principal, filter)
	if err != nil {
		return err
	}
	items := make([]dto.ClientResponse, 0, len(clients))
	for i := range clients {
		items = append(items, dto.NewClientResponse(&clients[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetClient GET /clients/:id.
func (h *ClientsHandler) GetClient(c *fiber.Ctx) error {
	principal, err := caller(c)
	if err != nil {
		return err
	}
	client, err := h.clients.Get(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewClientResponse(client)})
}

// RevealTemporaryPassword POST /clients/:id/temporary-password.
func (h *ClientsHandler) RevealTemporaryPassword(c *fiber.Ctx) error {
	principal, err := caller(c)
	if err != nil {
		return err
	}
	clientID := c.Params("id")
	password, err := h.clients.RevealTemporaryPassword(c.UserContext(), principal, clientID)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(fiber.Map{"data": dto.TemporaryPasswordResponse{ClientID: clientID, TemporaryPassword: password}})
}
