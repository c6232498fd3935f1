// internal/handlers/event.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-licensing/internal/models"
	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

type EventHandler struct {
	eventService *services.EventService
}

func NewEventHandler(eventService *services.EventService) *EventHandler {
	return &EventHandler{
		eventService: eventService,
	}
}

// GET /events?ip_id=&type=
func (h *EventHandler) GetEvents(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	searchParams := services.EventSearchParams{
		PaginationParams: params,
	}

	if c.Query("ip_id") != "" {
		ipID, ok := addressQuery(c, "ip_id")
		if !ok {
			return
		}
		searchParams.IPID = &ipID
	}
	if eventType := c.Query("type"); eventType != "" {
		t := models.EventType(eventType)
		searchParams.Type = &t
	}

	events, total, err := h.eventService.SearchEvents(c.Request.Context(), searchParams)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(events, total, params)
	utils.PaginatedResponse(c, result)
}
