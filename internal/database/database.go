package database

import (
	"log/slog"
	"strings"

	"autorent/internal/domain"

	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"

	// Registers the cgo-free "sqlite" driver used for dev and tests.
	_ "modernc.org/sqlite"
)

func Connect(dsn string) (*gorm.DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		slog.Info("connecting to postgres")
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	}

	slog.Info("using sqlite", "dsn", dsn)

	return gorm.Open(
		gormsqlite.New(gormsqlite.Config{
			DriverName: "sqlite",
			DSN:        dsn,
		}),
		&gorm.Config{},
	)
}

// Migrate applies the schema and, on Postgres, installs the store-level
// correctness constraints: an exclusion constraint that refuses two
// active-claim reservations with overlapping [start_at, end_at) windows on
// the same car, and a partial unique index that refuses a second COMPLETED
// payment session per reservation. SQLite (dev/tests) relies on the per-car
// lock in the reservation service instead.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.User{},
		&domain.Car{},
		&domain.Reservation{},
		&domain.PaymentSession{},
	); err != nil {
		return err
	}

	if db.Dialector.Name() != "postgres" {
		return nil
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS btree_gist`,
		`ALTER TABLE reservations ADD CONSTRAINT reservations_no_overlap
			EXCLUDE USING gist (
				car_id WITH =,
				tstzrange(start_at, end_at, '[)') WITH &&
			) WHERE (status IN ('PENDING', 'APPROVED', 'COMPLETED'))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS payment_sessions_one_completed
			ON payment_sessions (reservation_id) WHERE (status = 'COMPLETED')`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			// Re-running the ALTER TABLE on an existing schema is fine.
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			return err
		}
	}
	return nil
}
