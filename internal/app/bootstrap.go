package app

import (
	"context"
	"database/sql"
	"fmt"

	"agrosurvey/internal/db"
	"agrosurvey/internal/schema"
	"agrosurvey/internal/store"

	"go.uber.org/zap"
)

func NewLogger(cfg Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// LoadSchema returns the survey definition and location taxonomy, taking the
// file overrides from cfg when set.
func LoadSchema(cfg Config, logger *zap.Logger) (*schema.Survey, *schema.Taxonomy, error) {
	sv := schema.DefaultSurvey()
	if cfg.SurveyFile != "" {
		loaded, err := schema.LoadSurveyFile(cfg.SurveyFile)
		if err != nil {
			return nil, nil, err
		}
		sv = loaded
	}

	tax := schema.DefaultTaxonomy()
	if cfg.LocationsXLSX != "" {
		loaded, report, err := schema.LoadTaxonomyExcelFile(cfg.LocationsXLSX)
		if err != nil {
			return nil, nil, err
		}
		if report.FailedRows > 0 {
			logger.Warn("taxonomy import skipped rows",
				zap.String("file", cfg.LocationsXLSX),
				zap.Int("failed_rows", report.FailedRows),
				zap.Int("total_rows", report.TotalRows),
			)
		}
		tax = loaded
	}
	return sv, tax, nil
}

// OpenStore returns the response store selected by STORE_DRIVER. The *sql.DB
// is nil for the memory driver.
func OpenStore(ctx context.Context, cfg Config) (store.Store, *sql.DB, error) {
	if cfg.StoreDriver == StoreDriverMemory {
		return store.NewMemoryStore(), nil, nil
	}

	conn, err := db.OpenAndMigrate(ctx, db.PostgresConfig{
		DSN:             cfg.DBDSN,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres store: %w", err)
	}
	return store.NewPostgresStore(conn), conn, nil
}
