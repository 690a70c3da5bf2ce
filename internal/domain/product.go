// internal/domain/product.go
package domain

// Safety stock sources as reported on projections and products.
const (
	SourceManual     = "Manual"
	SourceCalculated = "Calculado"
)

// RiskLevel is the per-month stock risk indicator.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Bajo"
	RiskMedium RiskLevel = "Medio"
	RiskHigh   RiskLevel = "Alto"
)

// Product is one forecasted item of an analysis. Field names follow the
// document produced by the upstream forecasting process.
type Product struct {
	Code             string  `json:"CODIGO"`
	Description      string  `json:"DESCRIPCION"`
	StartDate        string  `json:"FECHA_INICIAL"`
	UnitsPerBox      float64 `json:"UNIDADES_POR_CAJA"`
	InitialStock     float64 `json:"STOCK_INICIAL"`
	TotalStock       float64 `json:"STOCK_TOTAL"`
	AvgConsumption   float64 `json:"CONSUMO_PROMEDIO"`
	DailyConsumption float64 `json:"CONSUMO_DIARIO"`
	SigmaD           float64 `json:"SIGMA_D"`

	// Headline metrics, recomputed from the non-monthly effective parameters.
	SafetyStock       float64 `json:"STOCK_SEGURIDAD"`
	SafetyStockSource string  `json:"STOCK_SEGURIDAD_SOURCE"`
	ReorderPoint      float64 `json:"PUNTO_REORDEN"`
	Deficit           float64 `json:"DEFICIT"`
	BoxesToOrder      int     `json:"CAJAS_A_PEDIR"`
	UnitsToOrder      float64 `json:"UNIDADES_A_PEDIR"`
	CoverageDays      float64 `json:"DIAS_COBERTURA"`

	MonthlyForecasts []MonthlyForecast `json:"CONSUMOS_MENSUALES_PREVISTOS"`
	Projections      []Projection      `json:"PROYECCIONES"`
	PendingOrders    []PendingOrder    `json:"PEDIDOS_POR_LLEGAR"`
	Config           Configuration     `json:"CONFIGURACION"`
}

// MonthlyForecast is one month of upstream predicted consumption.
type MonthlyForecast struct {
	Month string  `json:"month"`
	Yhat  float64 `json:"yhat"`
}

// Configuration holds the product-level planning parameters and the
// per-month overrides entered by the user.
type Configuration struct {
	ServiceLevel           float64   `json:"NIVEL_SERVICIO"`
	OperatingDays          int       `json:"DIAS_OPERACION"`
	MinUnitsPerBox         float64   `json:"MIN_UNIDADES_CAJA"`
	LeadTimeDays           int       `json:"LEAD_TIME_DAYS"`
	SafetyStock            *float64  `json:"SAFETY_STOCK"`
	SafetyStockSource      string    `json:"SAFETY_STOCK_SOURCE"`
	MonthlyConsumptionDays int       `json:"DIAS_CONSUMO_MENSUAL"`
	TransitDays            int       `json:"DIAS_TRANSITO"`
	ModelVersion           string    `json:"VERSION_MODELO"`
	Overrides              Overrides `json:"OVERRIDES"`
}

// Overrides are keyed by month key ("ENE-2025").
type Overrides struct {
	LeadTimeDays map[string]int     `json:"LEAD_TIME_DAYS,omitempty"`
	SafetyStock  map[string]float64 `json:"SAFETY_STOCK,omitempty"`
}

// Projection is one calendar month of the stock projection.
type Projection struct {
	Month               string       `json:"mes"`
	MonthStart          string       `json:"fecha_inicio_mes"`
	MonthEnd            string       `json:"fecha_fin_mes"`
	StartingStock       float64      `json:"stock_inicial_mes"`
	EndingStock         float64      `json:"stock_proyectado_mes"`
	TotalProjectedStock float64      `json:"stock_total_proyectado"`
	MonthlyConsumption  float64      `json:"consumo_mensual"`
	DailyConsumption    float64      `json:"consumo_diario"`
	SafetyStock         float64      `json:"stock_seguridad"`
	SafetyStockSource   string       `json:"stock_seguridad_source"`
	LeadTimeDays        int          `json:"lead_time_days"`
	ReorderPoint        float64      `json:"punto_reorden"`
	UnitsInTransit      float64      `json:"unidades_en_transito"`
	CoverageDays        float64      `json:"tiempo_cobertura"`
	ForecastUsed        bool         `json:"prediccion_usada"`
	Risk                RiskLevel    `json:"indicador_riesgo"`
	DailyStock          []DailyStock `json:"stock_diario_proyectado"`
	Alerts              []Alert      `json:"alertas_y_pedidos"`
}

// DailyStock is one simulated day.
type DailyStock struct {
	Date                string  `json:"fecha"`
	ProjectedStock      float64 `json:"stock_proyectado"`
	UnitsInTransit      float64 `json:"unidades_en_transito"`
	TotalProjectedStock float64 `json:"stock_total_proyectado"`
}

// Alert is a reorder event: an order placed on AlertDate that arrives on
// ArrivalDate.
type Alert struct {
	ID           string  `json:"id"`
	AlertDate    string  `json:"fecha_alerta"`
	ArrivalDate  string  `json:"fecha_arribo"`
	Units        float64 `json:"unidades"`
	Boxes        int     `json:"cajas_pedir"`
	LeadTimeDays int     `json:"lead_time_especifico"`
}

// PendingOrder is a shipment expected on ArrivalDate. Manual orders are
// entered by the user and survive alert regeneration; the others are
// materialized from alerts and rebuilt every time.
type PendingOrder struct {
	ID          string  `json:"id,omitempty"`
	ArrivalDate string  `json:"fecha_arribo"`
	Units       float64 `json:"unidades"`
	CreatedDate string  `json:"fecha_creacion,omitempty"`
	Manual      bool    `json:"manual"`
	AlertID     string  `json:"alert_id,omitempty"`
}

// ProjectionIndex returns the index of the projection for monthKey, or -1.
func (p *Product) ProjectionIndex(monthKey string) int {
	for i := range p.Projections {
		if p.Projections[i].Month == monthKey {
			return i
		}
	}
	return -1
}

// FindAlert locates an alert by ID, falling back to the alert date for
// documents written before alerts carried IDs.
func (p *Product) FindAlert(ref string) (projection, alert int, ok bool) {
	for i := range p.Projections {
		for j := range p.Projections[i].Alerts {
			if p.Projections[i].Alerts[j].ID == ref {
				return i, j, true
			}
		}
	}
	for i := range p.Projections {
		for j := range p.Projections[i].Alerts {
			if p.Projections[i].Alerts[j].AlertDate == ref {
				return i, j, true
			}
		}
	}
	return -1, -1, false
}

// AllAlerts returns the alerts of every projection in month order.
func (p *Product) AllAlerts() []Alert {
	var out []Alert
	for _, proj := range p.Projections {
		out = append(out, proj.Alerts...)
	}
	return out
}

// ManualOrders returns the user-entered pending orders.
func (p *Product) ManualOrders() []PendingOrder {
	var out []PendingOrder
	for _, o := range p.PendingOrders {
		if o.Manual {
			out = append(out, o)
		}
	}
	return out
}
