package db

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the store's order record. The engine changes it only through the projector.
type Order struct {
	ID           string          `gorm:"primaryKey;size:64"`
	Status       string          `gorm:"size:32;not null;index"` // pending, on-hold, processing, completed, cancelled
	Total        decimal.Decimal `gorm:"type:varchar(64);not null"`
	Currency     string          `gorm:"size:8;not null"`
	StockReduced bool            `gorm:"not null;default:false"`
	Items        []OrderItem     `gorm:"foreignKey:OrderID"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type OrderItem struct {
	ID        uint   `gorm:"primaryKey"`
	OrderID   string `gorm:"size:64;not null;index"`
	ProductID uint   `gorm:"not null"`
	Quantity  int    `gorm:"not null"`
	Product   Product
}

type Product struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"size:255"`
	Virtual     bool   `gorm:"not null;default:false"`
	ManageStock bool   `gorm:"not null;default:false"`
	Stock       int    `gorm:"not null;default:0"`
}

// Payment is the payment request metadata stored alongside its order.
type Payment struct {
	ID                string          `gorm:"primaryKey;size:128"` // issued by the monitoring service
	OrderID           string          `gorm:"size:64;not null;index"`
	Network           string          `gorm:"size:16;not null"`
	Token             string          `gorm:"size:16;not null"`
	Address           string          `gorm:"size:128;not null;index"`
	RequestedAmount   decimal.Decimal `gorm:"type:varchar(64);not null"`
	EffectiveAmount   decimal.Decimal `gorm:"type:varchar(64);not null"`
	ExpiresAt         time.Time       `gorm:"not null"`
	Status            string          `gorm:"size:16;not null;index"`
	PaidAmount        string          `gorm:"size:64"`
	TxHash            string          `gorm:"size:256"`
	ProcessedTerminal bool            `gorm:"not null;default:false"`
	ConfirmURL        string          `gorm:"size:512"`
	RequiresTxID      bool            `gorm:"not null;default:false"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OrderNote is an operator-visible annotation on an order.
type OrderNote struct {
	ID        uint   `gorm:"primaryKey"`
	OrderID   string `gorm:"size:64;not null;index"`
	PaymentID string `gorm:"size:128;index"`
	Source    string `gorm:"size:16"`
	RequestID string `gorm:"size:64"`
	Note      string `gorm:"type:text;not null"`
	CreatedAt time.Time
}
