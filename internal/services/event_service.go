// internal/services/event_service.go
package services

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/imi-licensing/internal/database"
	"github.com/javajoker/imi-licensing/internal/models"
	"github.com/javajoker/imi-licensing/internal/utils"
)

// EventService persists protocol events inside the emitting operation's transaction,
// so a reverted operation leaves no event behind.
type EventService struct {
	db *gorm.DB
}

type EventSearchParams struct {
	utils.PaginationParams
	IPID *common.Address   `json:"ip_id,omitempty"`
	Type *models.EventType `json:"type,omitempty"`
}

func NewEventService(db *gorm.DB) *EventService {
	return &EventService{db: db}
}

func (s *EventService) Emit(ctx context.Context, eventType models.EventType, ipID, caller common.Address, data map[string]interface{}) error {
	event := &models.ProtocolEvent{
		EventID: uuid.NewString(),
		Type:    eventType,
		IPID:    ipID.Hex(),
		Caller:  caller.Hex(),
		Data:    models.JSONB(data),
	}

	if err := database.Conn(ctx, s.db).Create(event).Error; err != nil {
		return fmt.Errorf("failed to record %s event: %w", eventType, err)
	}

	onCommit(ctx, func() {
		logrus.WithFields(logrus.Fields{
			"event_id": event.EventID,
			"type":     eventType,
			"ip_id":    event.IPID,
			"caller":   event.Caller,
		}).Debug("Protocol event emitted")
	})
	return nil
}

func (s *EventService) SearchEvents(ctx context.Context, params EventSearchParams) ([]models.ProtocolEvent, int64, error) {
	query := database.Conn(ctx, s.db).Model(&models.ProtocolEvent{})
	if params.IPID != nil {
		query = query.Where("ip_id = ?", params.IPID.Hex())
	}
	if params.Type != nil {
		query = query.Where("type = ?", *params.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	var events []models.ProtocolEvent
	if err := utils.Paginate(query, params.PaginationParams, "id", "created_at", "type").Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch events: %w", err)
	}

	return events, total, nil
}
