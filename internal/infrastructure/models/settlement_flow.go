package models

import (
	"time"

	"github.com/google/uuid"
)

type SettlementFlow struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	HolderAddress    string    `gorm:"type:varchar(64);not null;index"`
	MerchantAddress  string    `gorm:"type:varchar(64);not null;index"`
	Amount           string    `gorm:"type:varchar(100);not null"` // decimal
	CurrencyCode     string    `gorm:"type:varchar(16);not null"`
	Description      string    `gorm:"type:text"`
	AllowFallback    bool      `gorm:"not null;default:false"`
	State            string    `gorm:"type:varchar(20);not null;index"`
	Plan             *string   `gorm:"type:text"` // JSON
	Outcome          *string   `gorm:"type:text"` // JSON
	ApprovalTxHash   *string   `gorm:"type:varchar(80)"`
	SwapTxHash       *string   `gorm:"type:varchar(80)"`
	ConfirmThreshold *string   `gorm:"type:varchar(100)"` // decimal
	PriorBalance     *string   `gorm:"type:varchar(100)"` // decimal
	LastErrorKind    *string   `gorm:"type:varchar(40)"`
	LastErrorDetail  *string   `gorm:"type:text"`
	DecidedAt        *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time `gorm:"index"`
}

func (SettlementFlow) TableName() string { return "settlement_flows" }

type SettlementFlowEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	FlowID    uuid.UUID `gorm:"type:uuid;not null;index"`
	EventType string    `gorm:"type:varchar(30);not null"`
	State     string    `gorm:"type:varchar(20);not null"`
	TxHash    *string   `gorm:"type:varchar(80)"`
	Detail    string    `gorm:"type:text"`
	CreatedAt time.Time
}

func (SettlementFlowEvent) TableName() string { return "settlement_flow_events" }
