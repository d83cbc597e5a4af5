package services

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"crm-backend/models"
)

const exportSheet = "Customers"

var exportHeader = []any{
	"ID", "First name", "Last name", "Email", "Phone", "Street", "City",
	"Postal code", "Country", "Company", "Notes", "Created at", "Updated at",
}

// Export renders every customer, newest first, as an xlsx workbook.
func (s *CustomerService) Export(ctx context.Context) ([]byte, error) {
	customers, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, c := range customers {
		row := exportRow(c)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func exportRow(c models.Customer) []any {
	return []any{
		c.ID, c.FirstName, c.LastName, c.Email, c.Phone, c.Street, c.City,
		c.PostalCode, c.Country, deref(c.Company), deref(c.Notes),
		c.CreatedAt.UTC().Format(time.RFC3339), c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
