// Package export writes an analysis as an Excel workbook.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/andresuchdata/stockcast/internal/domain"
)

const (
	ProjectionsSheet = "Proyecciones"
	OrdersSheet      = "Pedidos"
)

var projectionHeader = []interface{}{
	"CODIGO", "DESCRIPCION", "MES", "STOCK_INICIAL", "STOCK_PROYECTADO", "STOCK_TOTAL_PROYECTADO",
	"CONSUMO_MENSUAL", "CONSUMO_DIARIO", "STOCK_SEGURIDAD", "FUENTE_SS", "LEAD_TIME",
	"PUNTO_REORDEN", "UNIDADES_EN_TRANSITO", "DIAS_COBERTURA", "RIESGO",
}

var orderHeader = []interface{}{
	"CODIGO", "DESCRIPCION", "ID", "FECHA_ALERTA", "FECHA_ARRIBO", "UNIDADES", "CAJAS", "LEAD_TIME",
}

// Write renders the projections and reorder alerts of products as a workbook.
func Write(w io.Writer, products []domain.Product) error {
	f, err := build(products)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteFile renders the workbook to path.
func WriteFile(path string, products []domain.Product) error {
	f, err := build(products)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

func build(products []domain.Product) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", ProjectionsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(OrdersSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet %s: %w", OrdersSheet, err)
	}
	if err := writeProjections(f, products); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeOrders(f, products); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeProjections(f *excelize.File, products []domain.Product) error {
	sw, err := f.NewStreamWriter(ProjectionsSheet)
	if err != nil {
		return fmt.Errorf("failed to open stream writer: %w", err)
	}
	if err := sw.SetRow("A1", projectionHeader); err != nil {
		return err
	}

	row := 2
	for _, p := range products {
		for _, proj := range p.Projections {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			values := []interface{}{
				p.Code, p.Description, proj.Month, proj.StartingStock, proj.EndingStock, proj.TotalProjectedStock,
				proj.MonthlyConsumption, proj.DailyConsumption, proj.SafetyStock, proj.SafetyStockSource,
				proj.LeadTimeDays, proj.ReorderPoint, proj.UnitsInTransit, proj.CoverageDays, string(proj.Risk),
			}
			if err := sw.SetRow(cell, values); err != nil {
				return fmt.Errorf("failed to write projection row %d: %w", row, err)
			}
			row++
		}
	}
	return sw.Flush()
}

func writeOrders(f *excelize.File, products []domain.Product) error {
	sw, err := f.NewStreamWriter(OrdersSheet)
	if err != nil {
		return fmt.Errorf("failed to open stream writer: %w", err)
	}
	if err := sw.SetRow("A1", orderHeader); err != nil {
		return err
	}

	row := 2
	for i := range products {
		p := &products[i]
		for _, a := range p.AllAlerts() {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			values := []interface{}{
				p.Code, p.Description, a.ID, a.AlertDate, a.ArrivalDate, a.Units, a.Boxes, a.LeadTimeDays,
			}
			if err := sw.SetRow(cell, values); err != nil {
				return fmt.Errorf("failed to write order row %d: %w", row, err)
			}
			row++
		}
	}
	return sw.Flush()
}
