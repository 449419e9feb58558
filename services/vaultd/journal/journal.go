package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	nativevault "stakevault/native/vault"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

var errUnsupportedDriver = errors.New("journal: unsupported driver")

// Record is one committed vault event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index"`
	Account    string    `gorm:"size:42;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// TableName pins the table name independent of the struct name.
func (Record) TableName() string { return "vault_events" }

// Decoded returns the attribute map of the record.
func (r Record) Decoded() (map[string]string, error) {
	attrs := map[string]string{}
	if r.Attributes == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
		return nil, fmt.Errorf("journal: decode attributes of %s: %w", r.ID, err)
	}
	return attrs, nil
}

// Filter narrows List results.
type Filter struct {
	Account string
	Type    string
	// AfterSequence returns only records with a larger sequence.
	AfterSequence uint64
	Limit         int
}

// Journal appends and queries committed vault events. Appends from one
// process are serialised so sequence numbers are assigned without gaps or
// collisions.
type Journal struct {
	mu sync.Mutex
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema.
func Open(driver, dsn string) (*Journal, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: database required")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

// Append stores events in emission order inside one transaction.
func (j *Journal) Append(ctx context.Context, events []nativevault.Event, at time.Time) ([]Record, error) {
	if len(events) == 0 {
		return nil, nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	records := make([]Record, 0, len(events))
	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last Record
		next := uint64(1)
		res := tx.Order("sequence desc").Limit(1).Find(&last)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			next = last.Sequence + 1
		}
		for _, ev := range events {
			encoded, err := json.Marshal(ev.Attributes)
			if err != nil {
				return err
			}
			records = append(records, Record{
				ID:         uuid.New(),
				Sequence:   next,
				Type:       ev.Type,
				Account:    ev.Account(),
				Attributes: string(encoded),
				CreatedAt:  at.UTC(),
			})
			next++
		}
		return tx.Create(&records).Error
	})
	if err != nil {
		return nil, fmt.Errorf("journal: append: %w", err)
	}
	return records, nil
}

// List returns records matching filter ordered by sequence.
func (j *Journal) List(ctx context.Context, filter Filter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	query := j.db.WithContext(ctx).Model(&Record{}).Where("sequence > ?", filter.AfterSequence)
	if filter.Account != "" {
		query = query.Where("account = ?", filter.Account)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	var records []Record
	if err := query.Order("sequence asc").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	return records, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
