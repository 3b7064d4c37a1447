package journal

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event is one module event in emission order.
type Event struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index"`
	MortgageID *uint64   `gorm:"index"`
	Attributes string    `gorm:"type:text"`
	RequestID  string    `gorm:"size:64"`
	CreatedAt  time.Time
}

// IdempotencyKey stores the response of a write request so a retry with the
// same key and caller replays it.
type IdempotencyKey struct {
	Key         string `gorm:"primaryKey;size:128"`
	Caller      string `gorm:"primaryKey;size:64"`
	RequestID   string `gorm:"size:64"`
	Method      string `gorm:"size:8"`
	Path        string `gorm:"size:255"`
	Fingerprint string `gorm:"size:64"`
	Status      int
	Response    string `gorm:"type:text"`
	CreatedAt   time.Time
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Event{}, &IdempotencyKey{})
}
