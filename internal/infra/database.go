package infra

import (
	"fmt"
	"time"

	"github.com/DeybisMelendez/km9-comanda/internal/model"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormConfig is shared by the server, the CLI and the test databases. Times are
// stored in UTC and driver errors are translated so unique violations surface
// as gorm.ErrDuplicatedKey.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

// NewDatabase opens the Postgres pool, installs the tracing plugin and brings
// the schema up to date.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), GormConfig())
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		log.Warn().Err(err).Msg("database: otelgorm plugin not installed")
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table, then applies the patches GORM
// cannot express.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Table{},
		&model.ProductCategory{},
		&model.Ingredient{},
		&model.Product{},
		&model.ProductIngredient{},
		&model.Movement{},
		&model.Order{},
		&model.OrderItem{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs idempotent Postgres-only DDL. The trigger makes the
// movement log append-only for any client, not only for code going through the
// model hooks.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		{"movements append-only function", `
CREATE OR REPLACE FUNCTION movements_reject_change() RETURNS trigger AS $$
BEGIN
  RAISE EXCEPTION 'movements are append-only';
END;
$$ LANGUAGE plpgsql`},
		{"movements append-only trigger", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_movements_append_only') THEN
    CREATE TRIGGER trg_movements_append_only
      BEFORE UPDATE OR DELETE ON movements
      FOR EACH ROW EXECUTE FUNCTION movements_reject_change();
  END IF;
END $$`},
		{"unpaid orders by table", `
CREATE INDEX IF NOT EXISTS idx_orders_unpaid_table
    ON orders (table_id)
    WHERE is_paid = false`},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
