// Package journal persists emitted module events and idempotent responses to
// a SQL database for indexers and API replays.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lendchain/core/types"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// ErrNotConfigured is returned by a nil journal.
var ErrNotConfigured = errors.New("journal: not configured")

// Open connects to dsn and migrates the schema. postgres:// and
// postgresql:// URLs and key=value DSNs containing host= select Postgres;
// anything else is treated as a sqlite path or URI.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("journal dsn required")
	}
	var dialector gorm.Dialector
	if isPostgres(trimmed) {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if !isPostgres(trimmed) {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return db, nil
}

func isPostgres(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") ||
		strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=")
}

// Journal appends events in a single increasing sequence.
type Journal struct {
	db  *gorm.DB
	now func() time.Time
}

// New wraps an opened and migrated database.
func New(db *gorm.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

// DB exposes the underlying handle, shared with the idempotency middleware.
func (j *Journal) DB() *gorm.DB {
	if j == nil {
		return nil
	}
	return j.db
}

// Append stores evts atomically after the current highest sequence and
// returns the stored entries.
func (j *Journal) Append(ctx context.Context, requestID string, evts []*types.Event) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, ErrNotConfigured
	}
	if len(evts) == 0 {
		return nil, nil
	}
	var rows []Event
	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last uint64
		if err := tx.Model(&Event{}).Select("COALESCE(MAX(sequence), 0)").Scan(&last).Error; err != nil {
			return fmt.Errorf("load sequence: %w", err)
		}
		now := j.now().UTC()
		rows = make([]Event, 0, len(evts))
		for _, evt := range evts {
			if evt == nil {
				continue
			}
			attrs, err := json.Marshal(evt.Attributes)
			if err != nil {
				return fmt.Errorf("encode attributes: %w", err)
			}
			last++
			row := Event{
				ID:         uuid.New(),
				Sequence:   last,
				Type:       evt.Type,
				Attributes: string(attrs),
				RequestID:  requestID,
				CreatedAt:  now,
			}
			if raw, ok := evt.Attributes["id"]; ok {
				if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
					row.MortgageID = &id
				}
			}
			rows = append(rows, row)
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return decodeRows(rows)
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	MortgageID *uint64
	Type       string
	After      uint64
	Limit      int
}

// Entry is a decoded journal row.
type Entry struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	MortgageID *uint64           `json:"mortgageId,omitempty"`
	Attributes map[string]string `json:"attributes"`
	RequestID  string            `json:"requestId,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// List returns events with sequence greater than f.After in ascending order.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, ErrNotConfigured
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := j.db.WithContext(ctx).Model(&Event{}).Where("sequence > ?", f.After)
	if f.MortgageID != nil {
		query = query.Where("mortgage_id = ?", *f.MortgageID)
	}
	if t := strings.TrimSpace(f.Type); t != "" {
		query = query.Where("type = ?", t)
	}
	var rows []Event
	if err := query.Order("sequence ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return decodeRows(rows)
}

func decodeRows(rows []Event) ([]Entry, error) {
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		attrs := map[string]string{}
		if row.Attributes != "" {
			if err := json.Unmarshal([]byte(row.Attributes), &attrs); err != nil {
				return nil, fmt.Errorf("decode event %d: %w", row.Sequence, err)
			}
		}
		entries = append(entries, Entry{
			Sequence:   row.Sequence,
			Type:       row.Type,
			MortgageID: row.MortgageID,
			Attributes: attrs,
			RequestID:  row.RequestID,
			CreatedAt:  row.CreatedAt,
		})
	}
	return entries, nil
}
