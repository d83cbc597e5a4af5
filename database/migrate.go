package database

import (
	"fmt"

	"crm-backend/models"

	"gorm.io/gorm"
)

// Migrate applies (idempotent) schema migrations:
// - AutoMigrate (tables/columns/index tags)
// - Listing index (created_at DESC, id DESC)
// - Basic CHECK constraints
func Migrate(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		// --- AutoMigrate tables/columns/index tags (non-destructive) ---
		if err := tx.AutoMigrate(
			&models.Customer{},
			&models.IdempotencyKey{},
		); err != nil {
			return fmt.Errorf("automigrate failed: %w", err)
		}

		indexes := []string{
			`CREATE INDEX IF NOT EXISTS idx_customers_listing ON customers (created_at DESC, id DESC)`,
		}
		for _, stmt := range indexes {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("index migration failed on: %s - %w", stmt, err)
			}
		}

		checks := []struct{ name, expr string }{
			{"chk_customers_updated_after_created", `updated_at >= created_at`},
			{"chk_customers_email_not_blank", `btrim(email) <> ''`},
		}
		for _, chk := range checks {
			name, expr := chk.name, chk.expr
			stmt := fmt.Sprintf(`DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_constraint
		WHERE conrelid = 'customers'::regclass
		  AND conname  = '%s'
	) THEN
		ALTER TABLE customers ADD CONSTRAINT %s CHECK (%s);
	END IF;
END $$;`, name, name, expr)
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("check constraint migration failed (%s): %w", name, err)
			}
		}

		return nil
	})
}
