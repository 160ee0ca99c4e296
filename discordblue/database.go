package discordblue

import (
	"context"
	"errors"
	"fmt"
	"github.com/lmittmann/tint"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	dbTypeSQLite   = "sqlite"
	dbTypePostgres = "postgres"

	printJobStateSubmitted = "submitted"
	printJobStateFailed    = "failed"

	defaultListLimit = 50
)

var (
	sqliteMaxOpenConns    = 1
	sqliteMaxIdleConns    = 1
	sqliteMaxConnLifetime = 5 * time.Minute
	sqliteExecPragma      = []string{
		"pragma journal_mode=WAL;",
		"pragma synchronous = normal;",
		"pragma temp_store = memory;",
		"pragma foreign_keys = ON;",
	}
	dbOperationTimeout = 30 * time.Second
)

// ModelUnixTime is an embeddable model with millisecond Unix timestamps
type ModelUnixTime struct {
	CreatedAt int64          `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
	UpdatedAt int64          `gorm:"autoUpdateTime:milli" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

type ModelUintID struct {
	ID uint `gorm:"primaryKey" json:"id"`
}

// PrintJob records a label submitted to PrintNode
//
//nolint:lll // struct tags can't be split
type PrintJob struct {
	ModelUintID
	ModelUnixTime
	RequestID      string `json:"request_id" gorm:"type:string;index"`
	PrinterID      int    `json:"printer_id"`
	PrintNodeJobID int    `json:"printnode_job_id"`
	Title          string `json:"title" gorm:"type:string"`
	SchoolKey      string `json:"school_key" gorm:"type:string"`
	AssetIDs       string `json:"asset_ids" gorm:"type:string"`
	UserID         string `json:"user_id" gorm:"type:string"`
	Username       string `json:"username" gorm:"type:string"`
	State          string `json:"state" gorm:"type:string"`
	Error          string `json:"error,omitempty" gorm:"type:string"`
}

func (p PrintJob) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("id", uint64(p.ID)),
		slog.String("request_id", p.RequestID),
		slog.Int("printer_id", p.PrinterID),
		slog.Int("printnode_job_id", p.PrintNodeJobID),
		slog.String("school_key", p.SchoolKey),
		slog.String("asset_ids", p.AssetIDs),
		slog.String("state", p.State),
	)
}

// Shipment records a Shippo label purchase
type Shipment struct {
	ModelUintID
	ModelUnixTime
	RequestID      string `json:"request_id" gorm:"type:string;index"`
	ShipmentID     string `json:"shipment_id" gorm:"type:string"`
	TransactionID  string `json:"transaction_id" gorm:"type:string"`
	RateID         string `json:"rate_id" gorm:"type:string"`
	Provider       string `json:"provider" gorm:"type:string"`
	ServiceLevel   string `json:"service_level" gorm:"type:string"`
	Amount         string `json:"amount" gorm:"type:string"`
	Currency       string `json:"currency" gorm:"type:string"`
	ToName         string `json:"to_name" gorm:"type:string"`
	ToZip          string `json:"to_zip" gorm:"type:string"`
	TrackingNumber string `json:"tracking_number" gorm:"type:string"`
	LabelURL       string `json:"label_url" gorm:"type:string"`
	Status         string `json:"status" gorm:"type:string"`
	Error          string `json:"error,omitempty" gorm:"type:string"`
}

// database wraps the gorm handle, serializing writes for SQLite
type database struct {
	db                     *gorm.DB
	mu                     sync.Mutex
	logger                 *slog.Logger
	enableConcurrentWrites bool
}

func newDatabase(db *gorm.DB, logger *slog.Logger, enableConcurrentWrites bool) *database {
	if logger == nil {
		logger = slog.Default()
	}
	return &database{
		db:                     db,
		logger:                 logger.With(loggerNameKey, "writedb"),
		enableConcurrentWrites: enableConcurrentWrites,
	}
}

func (d *database) lock() {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
	}
}

func (d *database) unlock() {
	if !d.enableConcurrentWrites {
		d.mu.Unlock()
	}
}

// Create inserts value, returning the number of rows affected
func (d *database) Create(ctx context.Context, value any) (int64, error) {
	d.lock()
	defer d.unlock()

	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	rv := d.db.WithContext(ctx).Create(value)
	if rv.Error != nil {
		d.logger.ErrorContext(ctx, "error creating record", tint.Err(rv.Error))
	}
	return rv.RowsAffected, rv.Error
}

// Updates updates the given columns on model
func (d *database) Updates(ctx context.Context, model any, values map[string]any) (int64, error) {
	d.lock()
	defer d.unlock()

	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	rv := d.db.WithContext(ctx).Model(model).Updates(values)
	if rv.Error != nil {
		d.logger.ErrorContext(ctx, "error updating record", tint.Err(rv.Error))
	}
	return rv.RowsAffected, rv.Error
}

// PrintJobs returns the most recent print jobs, newest first
func (d *database) PrintJobs(ctx context.Context, limit int) ([]PrintJob, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var jobs []PrintJob
	err := d.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&jobs).Error
	return jobs, err
}

// Shipments returns the most recent shipments, newest first
func (d *database) Shipments(ctx context.Context, limit int) ([]Shipment, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var shipments []Shipment
	err := d.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&shipments).Error
	return shipments, err
}

// CreateDB opens the database and migrates all models
func CreateDB(ctx context.Context, databaseType string, database string) (*gorm.DB, error) {
	handler := newComponentHandler(DefaultDatabaseLogLevel)

	gormLogger := newGORMLogger(handler, DefaultDatabaseSlowThreshold)
	dbLogger := slog.New(handler)

	dbLogger.InfoContext(
		ctx,
		"Initializing database",
		"database_type", databaseType,
		"database", database,
	)
	db, err := getDB(databaseType, database, gormLogger)
	if err != nil {
		return db, err
	}

	if err = migrate(ctx, db); err != nil {
		return db, err
	}
	return db, nil
}

func migrate(ctx context.Context, db *gorm.DB) error {
	txn := db.WithContext(ctx).Begin()
	if txn.Error != nil {
		return fmt.Errorf("error starting transaction: %w", txn.Error)
	}
	err := txn.Migrator().AutoMigrate(
		&InteractionLog{},
		&PrintJob{},
		&Shipment{},
	)
	if err != nil {
		txn.Rollback()
		return fmt.Errorf("error migrating database: %w", err)
	}
	if commitErr := txn.Commit().Error; commitErr != nil {
		return fmt.Errorf("error committing transaction: %w", commitErr)
	}
	return nil
}

// getDB initializes and returns a GORM database connection based on the
// specified database type ('sqlite' or 'postgres'). For SQLite, the
// parent directory of the database file is created if needed.
func getDB(
	databaseType string,
	database string,
	gormLogger *gormStructuredLogger,
) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
	switch databaseType {
	case dbTypeSQLite:
		parentDir := filepath.Dir(database)
		if parentDir != "" {
			if err := os.MkdirAll(parentDir, 0755); err != nil {
				if !errors.Is(err, os.ErrExist) {
					return nil, err
				}
			}
		}
		return gorm.Open(sqlite.Open(database), gormConfig)
	case dbTypePostgres:
		return gorm.Open(postgres.Open(database), gormConfig)
	default:
		return nil, fmt.Errorf(
			"unsupported database type: %s (must be %q or %q)",
			databaseType, dbTypeSQLite, dbTypePostgres,
		)
	}
}

func (b *Bot) initDB(ctx context.Context) error {
	if b.db != nil {
		return nil
	}
	logger := loggerFrom(ctx, b.logger)

	handler := newComponentHandler(b.config.DatabaseLogLevel)
	gormLogger := newGORMLogger(handler, b.config.DatabaseSlowThreshold)
	db, err := getDB(b.config.DatabaseType, b.config.Database, gormLogger)
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("error getting database connection: %w", err)
	}

	if b.config.DatabaseType == dbTypeSQLite {
		sqlDB.SetMaxOpenConns(sqliteMaxOpenConns)
		sqlDB.SetMaxIdleConns(sqliteMaxIdleConns)
		sqlDB.SetConnMaxLifetime(sqliteMaxConnLifetime)
		pragmaErrors := make([]error, 0, len(sqliteExecPragma))
		for _, p := range sqliteExecPragma {
			pragmaErrors = append(pragmaErrors, db.WithContext(ctx).Exec(p).Error)
		}
		if pragmaErr := errors.Join(pragmaErrors...); pragmaErr != nil {
			return fmt.Errorf("error setting pragma: %w", pragmaErr)
		}
	}

	logger.DebugContext(ctx, "migrating database")
	if err = migrate(ctx, db); err != nil {
		logger.ErrorContext(ctx, "error migrating database", tint.Err(err))
		return err
	}
	logger.DebugContext(ctx, "finished migrating database")

	b.db = newDatabase(db, b.logger, b.config.DatabaseType == dbTypePostgres)
	return nil
}
