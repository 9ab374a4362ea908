package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"stablepay.backend/internal/domain/entities"
)

// SettlementFlowRepository defines settlement flow data operations
type SettlementFlowRepository interface {
	Create(ctx context.Context, flow *entities.SettlementFlow) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.SettlementFlow, error)
	Update(ctx context.Context, flow *entities.SettlementFlow) error
	ListByState(ctx context.Context, state entities.FlowState, limit, offset int) ([]*entities.SettlementFlow, int64, error)
	GetStale(ctx context.Context, states []entities.FlowState, before time.Time, limit int) ([]*entities.SettlementFlow, error)
	MarkAbandoned(ctx context.Context, ids []uuid.UUID) error
}

// FlowEventRepository defines flow audit trail data operations
type FlowEventRepository interface {
	Create(ctx context.Context, event *entities.FlowEvent) error
	GetByFlowID(ctx context.Context, flowID uuid.UUID) ([]*entities.FlowEvent, error)
}
