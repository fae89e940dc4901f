package index

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Loan status values mirrored from the protocol.
const (
	StatusActive     = "Active"
	StatusLiquidated = "Liquidated"
)

// Loan is the read model row of a protocol loan.
type Loan struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	Borrower         string    `gorm:"size:64;uniqueIndex:idx_loans_borrower_index"`
	LoanIndex        uint64    `gorm:"uniqueIndex:idx_loans_borrower_index"`
	Amount           uint64    `gorm:"not null"`
	Collateral       uint64    `gorm:"not null"`
	CreditScore      uint8
	InterestRate     uint16
	LTVThreshold     uint16
	Status           string `gorm:"size:16;index"`
	StartTime        int64
	LiquidatedBy     string `gorm:"size:64"`
	LiquidatedAmount uint64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Activity is one entry of an address's history. An event touching two
// addresses (a transfer, a liquidation) yields one row per address sharing
// the same receipt.
type Activity struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"index"`
	Receipt    string    `gorm:"size:64;uniqueIndex:idx_activities_receipt_address"`
	Type       string    `gorm:"size:64;index"`
	Address    string    `gorm:"size:64;uniqueIndex:idx_activities_receipt_address;index"`
	Role       string    `gorm:"size:32"`
	Amount     uint64
	Attributes string `gorm:"type:text"`
	CreatedAt  time.Time
}

// AutoMigrate performs all schema migrations for the index.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Loan{},
		&Activity{},
	)
}
