package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"trancheledger/core/events"
	"trancheledger/core/types"
)

// ErrUnsupportedDriver is returned by Open for drivers other than sqlite and
// postgres.
var ErrUnsupportedDriver = errors.New("history: unsupported driver")

// Record is one persisted ledger event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type       string    `gorm:"index;not null"`
	Attributes string    `gorm:"type:text;not null"`
	RecordedAt time.Time `gorm:"index"`
}

// TableName pins the table name across drivers.
func (Record) TableName() string { return "ledger_events" }

// Decode returns the attribute map of the record.
func (r Record) Decode() (*types.Event, error) {
	attrs := map[string]string{}
	if strings.TrimSpace(r.Attributes) != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("history: decode attributes: %w", err)
		}
	}
	return &types.Event{Type: r.Type, Attributes: attrs}, nil
}

// Open connects to the history database and migrates the schema.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		if strings.TrimSpace(dsn) == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return db, nil
}

// Recorder persists every describable event it receives. It implements
// events.Emitter, so write failures are logged rather than returned.
type Recorder struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time
}

func NewRecorder(db *gorm.DB, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		db:     db,
		logger: logger,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock used to stamp records.
func (r *Recorder) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	r.nowFn = now
}

// Emit implements events.Emitter.
func (r *Recorder) Emit(evt events.Event) {
	if r == nil || r.db == nil || evt == nil {
		return
	}
	if err := r.Record(context.Background(), evt); err != nil {
		r.logger.Error("history: record event", "type", evt.EventType(), "error", err)
	}
}

// Record persists a single event.
func (r *Recorder) Record(ctx context.Context, evt events.Event) error {
	typed := &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	if describer, ok := evt.(events.Describer); ok {
		if rendered := describer.Event(); rendered != nil {
			typed = rendered
		}
	}
	attrs, err := json.Marshal(typed.Attributes)
	if err != nil {
		return fmt.Errorf("history: encode attributes: %w", err)
	}
	record := Record{
		ID:         uuid.New(),
		Type:       typed.Type,
		Attributes: string(attrs),
		RecordedAt: r.nowFn(),
	}
	return r.db.WithContext(ctx).Create(&record).Error
}

// Filter narrows List results.
type Filter struct {
	Type  string
	Limit int
}

const defaultLimit = 100

// List returns the most recent records first.
func (r *Recorder) List(ctx context.Context, filter Filter) ([]Record, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("history: database not configured")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultLimit
	}
	query := r.db.WithContext(ctx).Model(&Record{}).Order("recorded_at DESC").Limit(limit)
	if kind := strings.TrimSpace(filter.Type); kind != "" {
		query = query.Where("type = ?", kind)
	}
	var records []Record
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	return records, nil
}
