// internal/domain/analysis.go
package domain

import "time"

// Analysis is one forecast run for a user, persisted as a single document.
type Analysis struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Products  []Product `json:"products"`
}

// StoredAnalysis is an analysis together with the version it was read at.
type StoredAnalysis struct {
	Analysis *Analysis `json:"analysis"`
	Version  int64     `json:"version"`
}

// AnalysisSummary is a listing row.
type AnalysisSummary struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	Name         string    `json:"name" db:"name"`
	ProductCount int       `json:"product_count" db:"product_count"`
	Version      int64     `json:"version" db:"version"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Product returns the product with the given code.
func (a *Analysis) Product(code string) (*Product, bool) {
	for i := range a.Products {
		if a.Products[i].Code == code {
			return &a.Products[i], true
		}
	}
	return nil, false
}

// Summary builds the listing row for a.
func (a *Analysis) Summary(version int64) AnalysisSummary {
	return AnalysisSummary{
		ID:           a.ID,
		UserID:       a.UserID,
		Name:         a.Name,
		ProductCount: len(a.Products),
		Version:      version,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

// AuditEntry records one applied override.
type AuditEntry struct {
	ID          int64     `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	AnalysisID  string    `json:"analysis_id" db:"analysis_id"`
	ProductCode string    `json:"product_code" db:"product_code"`
	Action      string    `json:"action" db:"action"`
	Field       string    `json:"field" db:"field"`
	OldValue    string    `json:"old_value" db:"old_value"`
	NewValue    string    `json:"new_value" db:"new_value"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
