package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/internal/infrastructure/models"
	"stablepay.backend/pkg/utils"
)

// SettlementFlowRepositoryImpl implements SettlementFlowRepository
type SettlementFlowRepositoryImpl struct {
	db *gorm.DB
}

func NewSettlementFlowRepository(db *gorm.DB) *SettlementFlowRepositoryImpl {
	return &SettlementFlowRepositoryImpl{db: db}
}

func (r *SettlementFlowRepositoryImpl) Create(ctx context.Context, flow *entities.SettlementFlow) error {
	if flow.ID == uuid.Nil {
		flow.ID = utils.NewRecordID()
	}
	now := time.Now()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}
	flow.UpdatedAt = now

	m, err := toSettlementFlowModel(flow)
	if err != nil {
		return err
	}
	return GetDB(ctx, r.db).WithContext(ctx).Create(m).Error
}

func (r *SettlementFlowRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*entities.SettlementFlow, error) {
	var m models.SettlementFlow
	if err := GetDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toSettlementFlowEntity(&m)
}

func (r *SettlementFlowRepositoryImpl) Update(ctx context.Context, flow *entities.SettlementFlow) error {
	flow.UpdatedAt = time.Now()
	m, err := toSettlementFlowModel(flow)
	if err != nil {
		return err
	}
	res := GetDB(ctx, r.db).WithContext(ctx).Model(&models.SettlementFlow{}).
		Where("id = ?", flow.ID).
		Updates(map[string]interface{}{
			"state":             m.State,
			"plan":              m.Plan,
			"outcome":           m.Outcome,
			"approval_tx_hash":  m.ApprovalTxHash,
			"swap_tx_hash":      m.SwapTxHash,
			"confirm_threshold": m.ConfirmThreshold,
			"prior_balance":     m.PriorBalance,
			"last_error_kind":   m.LastErrorKind,
			"last_error_detail": m.LastErrorDetail,
			"decided_at":        m.DecidedAt,
			"completed_at":      m.CompletedAt,
			"updated_at":        m.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *SettlementFlowRepositoryImpl) ListByState(ctx context.Context, state entities.FlowState, limit, offset int) ([]*entities.SettlementFlow, int64, error) {
	byState := func(db *gorm.DB) *gorm.DB {
		if state == "" {
			return db
		}
		return db.Where("state = ?", state)
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.SettlementFlow{}).Scopes(byState).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ms []models.SettlementFlow
	if err := r.db.WithContext(ctx).Scopes(byState).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&ms).Error; err != nil {
		return nil, 0, err
	}

	flows, err := toSettlementFlowEntities(ms)
	if err != nil {
		return nil, 0, err
	}
	return flows, total, nil
}

func (r *SettlementFlowRepositoryImpl) GetStale(ctx context.Context, states []entities.FlowState, before time.Time, limit int) ([]*entities.SettlementFlow, error) {
	var ms []models.SettlementFlow
	if err := r.db.WithContext(ctx).
		Where("state IN ? AND updated_at < ?", states, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&ms).Error; err != nil {
		return nil, err
	}
	return toSettlementFlowEntities(ms)
}

func (r *SettlementFlowRepositoryImpl) MarkAbandoned(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).WithContext(ctx).Model(&models.SettlementFlow{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"state":      entities.FlowStateAbandoned,
			"updated_at": time.Now(),
		}).Error
}

func toSettlementFlowEntities(ms []models.SettlementFlow) ([]*entities.SettlementFlow, error) {
	flows := make([]*entities.SettlementFlow, 0, len(ms))
	for i := range ms {
		flow, err := toSettlementFlowEntity(&ms[i])
		if err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

func toSettlementFlowModel(f *entities.SettlementFlow) (*models.SettlementFlow, error) {
	m := &models.SettlementFlow{
		ID:              f.ID,
		HolderAddress:   f.HolderAddress,
		MerchantAddress: f.Request.MerchantAddress,
		Amount:          f.Request.Amount.String(),
		CurrencyCode:    f.Request.CurrencyCode,
		Description:     f.Request.Description,
		AllowFallback:   f.Request.AllowFallback,
		State:           string(f.State),
		ApprovalTxHash:  f.ApprovalTxHash.Ptr(),
		SwapTxHash:      f.SwapTxHash.Ptr(),
		LastErrorKind:   f.LastErrorKind.Ptr(),
		LastErrorDetail: f.LastErrorDetail.Ptr(),
		DecidedAt:       f.DecidedAt,
		CompletedAt:     f.CompletedAt,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
	if f.ConfirmThreshold != nil {
		s := f.ConfirmThreshold.String()
		m.ConfirmThreshold = &s
	}
	if f.PriorTargetBalance != nil {
		s := f.PriorTargetBalance.String()
		m.PriorBalance = &s
	}
	if f.Plan != nil {
		raw, err := json.Marshal(f.Plan)
		if err != nil {
			return nil, fmt.Errorf("encode plan: %w", err)
		}
		s := string(raw)
		m.Plan = &s
	}
	if f.Outcome != nil {
		raw, err := json.Marshal(f.Outcome)
		if err != nil {
			return nil, fmt.Errorf("encode outcome: %w", err)
		}
		s := string(raw)
		m.Outcome = &s
	}
	return m, nil
}

func toSettlementFlowEntity(m *models.SettlementFlow) (*entities.SettlementFlow, error) {
	amount, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("decode amount of flow %s: %w", m.ID, err)
	}
	f := &entities.SettlementFlow{
		ID:            m.ID,
		HolderAddress: m.HolderAddress,
		Request: entities.PaymentRequest{
			MerchantAddress: m.MerchantAddress,
			Amount:          amount,
			CurrencyCode:    m.CurrencyCode,
			Description:     m.Description,
			AllowFallback:   m.AllowFallback,
		},
		State:           entities.FlowState(m.State),
		ApprovalTxHash:  null.StringFromPtr(m.ApprovalTxHash),
		SwapTxHash:      null.StringFromPtr(m.SwapTxHash),
		LastErrorKind:   null.StringFromPtr(m.LastErrorKind),
		LastErrorDetail: null.StringFromPtr(m.LastErrorDetail),
		DecidedAt:       m.DecidedAt,
		CompletedAt:     m.CompletedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.ConfirmThreshold != nil && *m.ConfirmThreshold != "" {
		threshold, err := decimal.NewFromString(*m.ConfirmThreshold)
		if err != nil {
			return nil, fmt.Errorf("decode confirm threshold of flow %s: %w", m.ID, err)
		}
		f.ConfirmThreshold = &threshold
	}
	if m.PriorBalance != nil && *m.PriorBalance != "" {
		prior, err := decimal.NewFromString(*m.PriorBalance)
		if err != nil {
			return nil, fmt.Errorf("decode prior balance of flow %s: %w", m.ID, err)
		}
		f.PriorTargetBalance = &prior
	}
	if m.Plan != nil && *m.Plan != "" {
		var plan entities.SettlementPlan
		if err := json.Unmarshal([]byte(*m.Plan), &plan); err != nil {
			return nil, fmt.Errorf("decode plan of flow %s: %w", m.ID, err)
		}
		f.Plan = &plan
	}
	if m.Outcome != nil && *m.Outcome != "" {
		var outcome entities.TransferOutcome
		if err := json.Unmarshal([]byte(*m.Outcome), &outcome); err != nil {
			return nil, fmt.Errorf("decode outcome of flow %s: %w", m.ID, err)
		}
		f.Outcome = &outcome
	}
	return f, nil
}

// FlowEventRepositoryImpl implements FlowEventRepository
type FlowEventRepositoryImpl struct {
	db *gorm.DB
}

func NewFlowEventRepository(db *gorm.DB) *FlowEventRepositoryImpl {
	return &FlowEventRepositoryImpl{db: db}
}

func (r *FlowEventRepositoryImpl) Create(ctx context.Context, event *entities.FlowEvent) error {
	if event.ID == uuid.Nil {
		event.ID = utils.NewRecordID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	m := &models.SettlementFlowEvent{
		ID:        event.ID,
		FlowID:    event.FlowID,
		EventType: string(event.EventType),
		State:     string(event.State),
		TxHash:    event.TxHash.Ptr(),
		Detail:    event.Detail,
		CreatedAt: event.CreatedAt,
	}
	return GetDB(ctx, r.db).WithContext(ctx).Create(m).Error
}

func (r *FlowEventRepositoryImpl) GetByFlowID(ctx context.Context, flowID uuid.UUID) ([]*entities.FlowEvent, error) {
	var ms []models.SettlementFlowEvent
	if err := r.db.WithContext(ctx).
		Where("flow_id = ?", flowID).
		Order("created_at ASC, id ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}

	events := make([]*entities.FlowEvent, 0, len(ms))
	for _, m := range ms {
		events = append(events, &entities.FlowEvent{
			ID:        m.ID,
			FlowID:    m.FlowID,
			EventType: entities.FlowEventType(m.EventType),
			State:     entities.FlowState(m.State),
			TxHash:    null.StringFromPtr(m.TxHash),
			Detail:    m.Detail,
			CreatedAt: m.CreatedAt,
		})
	}
	return events, nil
}
