package domain

import "time"

// Statement is a committed bank statement. It owns the expenses created in
// the same transaction.
type Statement struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Date         time.Time `json:"date"`
	Bank         Bank      `json:"bank"`
	FileURI      string    `json:"fileUri,omitempty"`
	UserID       string    `json:"userId"`
	SourceTaskID string    `json:"sourceTaskId,omitempty"`
	ExpenseCount int       `json:"expenseCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewStatement holds the header fields of a statement about to be created.
// SourceTaskID, when set, makes the insert idempotent per user.
type NewStatement struct {
	Name         string
	Date         time.Time
	Bank         Bank
	File         []byte
	SourceTaskID string
}
