package models

import "time"

// LedgerDateLayout is the day granularity used for budget entries.
const LedgerDateLayout = "2006-01-02"

// BudgetEntry records one spend event in minor currency units.
type BudgetEntry struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Date        string    `gorm:"column:ledger_date;size:10;index;not null" json:"date"`
	Spent       int64     `gorm:"not null" json:"spent"`
	CampaignID  string    `gorm:"size:64;index" json:"campaign_id,omitempty"`
	Description string    `gorm:"size:255" json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName pins the ledger table name.
func (BudgetEntry) TableName() string {
	return "budget_tracking"
}

// LedgerDate formats t as a ledger day in UTC.
func LedgerDate(t time.Time) string {
	return t.UTC().Format(LedgerDateLayout)
}
