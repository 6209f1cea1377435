// Package indexer mirrors committed chain events into a SQL database so
// operators can query liquidation and settlement history without replaying
// blocks.
package indexer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cdpchain/core/types"
)

// ErrDSNRequired is returned when no database location is configured.
var ErrDSNRequired = errors.New("indexer dsn must be configured")

// EventRecord is one committed event.
type EventRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Height     uint64 `gorm:"index:idx_height_pos,priority:1;not null"`
	Position   int    `gorm:"index:idx_height_pos,priority:2;not null"`
	Type       string `gorm:"size:64;index;not null"`
	Attributes string `gorm:"type:text"`
	IndexedAt  time.Time
}

// Decode returns the event the record was built from.
func (r EventRecord) Decode() (types.Event, error) {
	evt := types.Event{Type: r.Type, Attributes: map[string]string{}}
	if strings.TrimSpace(r.Attributes) == "" {
		return evt, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &evt.Attributes); err != nil {
		return types.Event{}, fmt.Errorf("decode attributes: %w", err)
	}
	return evt, nil
}

// Indexer writes events through gorm.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to the sqlite DSN and migrates the schema.
func Open(dsn string, log *slog.Logger) (*Indexer, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrDSNRequired
	}
	db, err := gorm.Open(sqlite.Open(trimmed), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open indexer database: %w", err)
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("migrate indexer schema: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{db: db, logger: log, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (i *Indexer) Close() error {
	if i == nil || i.db == nil {
		return nil
	}
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Index stores the events committed at height. Re-indexing a height replaces
// its rows.
func (i *Indexer) Index(ctx context.Context, height uint64, evts []types.Event) error {
	if i == nil || i.db == nil {
		return errors.New("indexer not configured")
	}
	now := i.now().UTC()
	records := make([]EventRecord, 0, len(evts))
	for pos, evt := range evts {
		attrs, err := json.Marshal(evt.Attributes)
		if err != nil {
			return fmt.Errorf("encode attributes: %w", err)
		}
		records = append(records, EventRecord{
			Height:     height,
			Position:   pos,
			Type:       evt.Type,
			Attributes: string(attrs),
			IndexedAt:  now,
		})
	}
	return i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("height = ?", height).Delete(&EventRecord{}).Error; err != nil {
			return fmt.Errorf("clear height %d: %w", height, err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("insert events: %w", err)
		}
		return nil
	})
}

// CommitHook adapts Index to the processor's commit callback. Failures are
// logged; the chain never waits on the indexer.
func (i *Indexer) CommitHook(height uint64, evts []types.Event) {
	if err := i.Index(context.Background(), height, evts); err != nil {
		i.logger.Error("index events failed", slog.Uint64("height", height), slog.Any("error", err))
	}
}

// ByHeight returns the events committed at height in emission order.
func (i *Indexer) ByHeight(ctx context.Context, height uint64) ([]EventRecord, error) {
	var out []EventRecord
	err := i.db.WithContext(ctx).
		Where("height = ?", height).
		Order("position asc").
		Find(&out).Error
	return out, err
}

// ByType returns up to limit events of the given type, newest first.
func (i *Indexer) ByType(ctx context.Context, eventType string, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []EventRecord
	err := i.db.WithContext(ctx).
		Where("type = ?", eventType).
		Order("height desc, position desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// LatestHeight reports the highest indexed height, or zero when empty.
func (i *Indexer) LatestHeight(ctx context.Context) (uint64, error) {
	var height sql.NullInt64
	row := i.db.WithContext(ctx).Model(&EventRecord{}).Select("MAX(height)").Row()
	if err := row.Scan(&height); err != nil {
		return 0, err
	}
	if !height.Valid {
		return 0, nil
	}
	return uint64(height.Int64), nil
}
