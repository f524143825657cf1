// Package export формирует XLSX-выгрузку остатков.
package export

import (
	"bytes"
	"fmt"
	"time"

	"atelier-stock-service/internal/repository"

	"github.com/xuri/excelize/v2"
)

// StockReportXLSX собирает книгу с текущими остатками по всем складам.
func StockReportXLSX(rows []repository.StockLevelRow, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetSheetName(sheet, "Остатки"); err != nil {
		return nil, err
	}
	sheet = "Остатки"

	header := []interface{}{
		"Товар",
		"Тип",
		"Вариант (SKU)",
		"Размер",
		"Цвет",
		"Склад",
		"Количество",
		"Резерв",
		"Доступно",
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("заголовок: %w", err)
	}

	row := 2
	for _, r := range rows {
		qty, _ := r.Quantity.Float64()
		res, _ := r.Reserved.Float64()
		avail, _ := r.Quantity.Sub(r.Reserved).Float64()
		excelRow := []interface{}{
			r.ProductName,
			string(r.ProductType),
			r.VariantSKU,
			r.Size,
			r.Color,
			r.WarehouseName,
			qty,
			res,
			avail,
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &excelRow); err != nil {
			return nil, fmt.Errorf("строка %d: %w", row, err)
		}
		row++
	}

	cell, err := excelize.CoordinatesToCellName(1, row+1)
	if err != nil {
		return nil, err
	}
	stamp := "Сформировано: " + generatedAt.Format("02.01.2006 15:04")
	if err := f.SetCellValue(sheet, cell, stamp); err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
