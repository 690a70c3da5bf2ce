package domain

// OverrideKind names an override variant. It doubles as the audit action.
type OverrideKind string

const (
	KindSafetyStock   OverrideKind = "safety_stock"
	KindLeadTime      OverrideKind = "lead_time"
	KindAlertUpdate   OverrideKind = "alert_update"
	KindManualTransit OverrideKind = "manual_transit"
	KindRecalculation OverrideKind = "recalculation"
)

// Override is a user change to a product. The concrete types below are the
// only implementations.
type Override interface {
	Kind() OverrideKind
	// AffectsReorderTiming reports whether alerts must be regenerated
	// after the override is applied.
	AffectsReorderTiming() bool
}

// SafetyStockOverride pins the safety stock of one projection month.
type SafetyStockOverride struct {
	ProjectionIndex int     `json:"projection_index"`
	Value           float64 `json:"value"`
}

// LeadTimeOverride pins the lead time of one projection month.
type LeadTimeOverride struct {
	ProjectionIndex int `json:"projection_index"`
	Days            int `json:"days"`
}

// AlertUpdate edits an existing alert. Zero values leave the field as is.
type AlertUpdate struct {
	AlertID      string  `json:"alert_id"`
	AlertDate    string  `json:"alert_date,omitempty"`
	Units        float64 `json:"units,omitempty"`
	LeadTimeDays int     `json:"lead_time_days,omitempty"`
}

// ManualTransit registers units already ordered outside the system.
type ManualTransit struct {
	Units       float64 `json:"units"`
	ArrivalDate string  `json:"arrival_date"`
	CreatedDate string  `json:"created_date,omitempty"`
}

// Recalculation re-runs the whole pipeline without changing anything.
type Recalculation struct{}

func (SafetyStockOverride) Kind() OverrideKind { return KindSafetyStock }
func (LeadTimeOverride) Kind() OverrideKind    { return KindLeadTime }
func (AlertUpdate) Kind() OverrideKind         { return KindAlertUpdate }
func (ManualTransit) Kind() OverrideKind       { return KindManualTransit }
func (Recalculation) Kind() OverrideKind       { return KindRecalculation }

func (SafetyStockOverride) AffectsReorderTiming() bool { return true }
func (LeadTimeOverride) AffectsReorderTiming() bool    { return true }
func (AlertUpdate) AffectsReorderTiming() bool         { return false }
func (ManualTransit) AffectsReorderTiming() bool       { return false }
func (Recalculation) AffectsReorderTiming() bool       { return true }

// OverrideRequest addresses an override to one product of one analysis.
type OverrideRequest struct {
	UserID      string
	AnalysisID  string
	ProductCode string
	Override    Override
}
