package index

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"stakelend/core/events"
	"stakelend/core/types"
)

const defaultActivityLimit = 50

// Store maintains the loan and activity read model from committed lending
// events. It implements events.Emitter.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	clock  func() time.Time

	mu  sync.Mutex
	seq uint64
}

// Open connects to dsn. DSNs starting with postgres:// or postgresql:// use
// the postgres driver; anything else is treated as a sqlite path.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("index: dsn required")
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return gorm.Open(postgres.Open(dsn), cfg)
	}
	return gorm.Open(sqlite.Open(dsn), cfg)
}

// NewStore migrates db and resumes the activity sequence.
func NewStore(db *gorm.DB, log *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("index: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("index: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	var last Activity
	if err := db.Order("seq desc").Limit(1).Find(&last).Error; err != nil {
		return nil, fmt.Errorf("index: resume sequence: %w", err)
	}
	return &Store{db: db, logger: log.With("component", "index"), clock: time.Now, seq: last.Seq}, nil
}

// SetClock overrides the activity timestamp source.
func (s *Store) SetClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

// Sequence returns the sequence number of the last recorded event.
func (s *Store) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// ReceiptID derives the stable identifier of the seq-th published event.
func ReceiptID(seq uint64, ev *types.Event) string {
	h := blake3.New(32, nil)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	h.Write(buf[:])
	h.Write([]byte(ev.Type))
	keys := make([]string, 0, len(ev.Attributes))
	for k := range ev.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(ev.Attributes[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Emit implements events.Emitter. Index failures are logged; the protocol
// state is authoritative.
func (s *Store) Emit(e events.Event) {
	if err := s.Record(context.Background(), e); err != nil {
		s.logger.Error("index event failed", "type", e.EventType(), "error", err)
	}
}

type participant struct {
	address string
	role    string
}

// Record persists e into the read model.
func (s *Store) Record(ctx context.Context, e events.Event) error {
	if e == nil {
		return nil
	}
	ev := e.Event()
	if ev == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.seq + 1
	receipt := ReceiptID(seq, ev)
	now := s.clock().UTC()

	attrs, err := json.Marshal(ev.Attributes)
	if err != nil {
		return err
	}

	var amount uint64
	var parties []participant
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch payload := e.(type) {
		case events.Transfer:
			amount = payload.Amount
			if !payload.From.IsZero() {
				parties = append(parties, participant{payload.From.String(), "sender"})
			}
			parties = append(parties, participant{payload.To.String(), "recipient"})
		case events.LendingInitialized:
			parties = append(parties, participant{payload.Admin.String(), "admin"})
		case events.LendingStaked:
			amount = payload.Amount
			parties = append(parties, participant{payload.User.String(), "staker"})
		case events.LendingLoanRequested:
			amount = payload.Amount
			parties = append(parties, participant{payload.Borrower.String(), "borrower"})
			row := Loan{
				ID:           uuid.New(),
				Borrower:     payload.Borrower.String(),
				LoanIndex:    payload.Index,
				Amount:       payload.Amount,
				Collateral:   payload.Collateral,
				CreditScore:  payload.CreditScore,
				InterestRate: payload.InterestRate,
				LTVThreshold: payload.LTVThreshold,
				Status:       StatusActive,
				StartTime:    payload.StartTime,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		case events.LendingLoanLiquidated:
			amount = payload.Seized
			parties = append(parties,
				participant{payload.Borrower.String(), "borrower"},
				participant{payload.Liquidator.String(), "liquidator"})
			res := tx.Model(&Loan{}).
				Where("borrower = ? AND loan_index = ?", payload.Borrower.String(), payload.Index).
				Updates(map[string]interface{}{
					"status":            StatusLiquidated,
					"liquidated_by":     payload.Liquidator.String(),
					"liquidated_amount": payload.Seized,
				})
			if res.Error != nil {
				return res.Error
			}
		default:
			return nil
		}
		seen := make(map[string]bool, len(parties))
		for _, p := range parties {
			if seen[p.address] {
				continue
			}
			seen[p.address] = true
			row := Activity{
				ID:         uuid.New(),
				Seq:        seq,
				Receipt:    receipt,
				Type:       ev.Type,
				Address:    p.address,
				Role:       p.role,
				Amount:     amount,
				Attributes: string(attrs),
				CreatedAt:  now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.seq = seq
	return nil
}

// LoansByBorrower returns the indexed loans of borrower in index order.
func (s *Store) LoansByBorrower(ctx context.Context, borrower string) ([]Loan, error) {
	var loans []Loan
	err := s.db.WithContext(ctx).
		Where("borrower = ?", strings.TrimSpace(borrower)).
		Order("loan_index asc").
		Find(&loans).Error
	return loans, err
}

// Activity returns the most recent history entries of address, newest first.
func (s *Store) Activity(ctx context.Context, address string, limit int) ([]Activity, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultActivityLimit
	}
	var rows []Activity
	err := s.db.WithContext(ctx).
		Where("address = ?", strings.TrimSpace(address)).
		Order("seq desc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
