package confirmation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no record exists for a hash.
	ErrNotFound = errors.New("transaction record not found")
	// ErrConflict is returned when a record changed since it was read.
	ErrConflict = errors.New("transaction record changed concurrently")
)

// Store persists transaction records. Update is a compare-and-set on the
// state the caller read, so concurrent writers can never regress a record.
type Store interface {
	Create(ctx context.Context, record Record) error
	Update(ctx context.Context, prev State, next Record) error
	ByHash(ctx context.Context, hash string) (Record, error)
	// Pending lists non-terminal records that have a hash, oldest first.
	Pending(ctx context.Context, limit int) ([]Record, error)
	// Unsent lists Submitted records without a hash submitted before cutoff,
	// oldest first. The ledger never acknowledged them and nothing polls them.
	Unsent(ctx context.Context, cutoff time.Time, limit int) ([]Record, error)
}

type memoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	hashes  map[string]string
}

// NewMemoryStore builds an in-memory record store for tests and development.
func NewMemoryStore() Store {
	return &memoryStore{records: make(map[string]Record), hashes: make(map[string]string)}
}

func (s *memoryStore) Create(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return fmt.Errorf("record %s already exists", record.ID)
	}
	s.records[record.ID] = record
	if record.Hash != "" {
		s.hashes[record.Hash] = record.ID
	}
	return nil
}

func (s *memoryStore) Update(_ context.Context, prev State, next Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[next.ID]
	if !ok {
		return ErrNotFound
	}
	if current.State != prev || next.Confirmations < current.Confirmations {
		return ErrConflict
	}
	s.records[next.ID] = next
	if next.Hash != "" {
		s.hashes[next.Hash] = next.ID
	}
	return nil
}

func (s *memoryStore) ByHash(_ context.Context, hash string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.hashes[hash]
	if !ok {
		return Record{}, ErrNotFound
	}
	return s.records[id], nil
}

func (s *memoryStore) Pending(_ context.Context, limit int) ([]Record, error) {
	return s.filter(limit, func(r Record) bool {
		return r.Hash != "" && !r.State.Terminal()
	}), nil
}

func (s *memoryStore) Unsent(_ context.Context, cutoff time.Time, limit int) ([]Record, error) {
	return s.filter(limit, func(r Record) bool {
		return r.Hash == "" && r.State == StateSubmitted && r.SubmittedAt.Before(cutoff)
	}), nil
}

func (s *memoryStore) filter(limit int, keep func(Record) bool) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed record store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, hash, phone, from_address, to_address, amount, state, reason,
        confirmations, submitted_at, last_polled_at, terminal_at`

// Create inserts a new record.
func (s *PostgresStore) Create(ctx context.Context, r Record) error {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO transaction_records (`+recordColumns+`)
        VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id, r.Hash, r.Phone, r.From, r.To, r.Amount, string(r.State), string(r.Reason),
		r.Confirmations, r.SubmittedAt.UTC(), r.LastPolledAt, r.TerminalAt)
	return err
}

// Update writes next only if the stored record is still in state prev and
// would not lose confirmations.
func (s *PostgresStore) Update(ctx context.Context, prev State, r Record) error {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return err
	}
	cmd, err := s.db.Exec(ctx, `UPDATE transaction_records
        SET hash = COALESCE(NULLIF($2, ''), hash), state = $3, reason = $4, confirmations = $5,
            last_polled_at = $6, terminal_at = $7
        WHERE id = $1 AND state = $8 AND confirmations <= $5`,
		id, r.Hash, string(r.State), string(r.Reason), r.Confirmations, r.LastPolledAt, r.TerminalAt, string(prev))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transaction_records WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

// ByHash fetches the record for a transaction hash.
func (s *PostgresStore) ByHash(ctx context.Context, hash string) (Record, error) {
	return scanRecord(s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM transaction_records WHERE hash = $1`, hash))
}

// Pending lists records still awaiting a terminal state.
func (s *PostgresStore) Pending(ctx context.Context, limit int) ([]Record, error) {
	return s.list(ctx, `state IN ($1, $2) AND hash IS NOT NULL`, limit, string(StateSubmitted), string(StatePending))
}

// Unsent lists Submitted records the ledger never acknowledged.
func (s *PostgresStore) Unsent(ctx context.Context, cutoff time.Time, limit int) ([]Record, error) {
	return s.list(ctx, `state = $1 AND hash IS NULL AND submitted_at < $2`, limit, string(StateSubmitted), cutoff)
}

func (s *PostgresStore) list(ctx context.Context, where string, limit int, args ...any) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	rows, err := s.db.Query(ctx, `SELECT `+recordColumns+` FROM transaction_records
        WHERE `+where+`
        ORDER BY submitted_at
        LIMIT $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		r            Record
		id           uuid.UUID
		hash         *string
		state        string
		reason       string
		lastPolledAt *time.Time
		terminalAt   *time.Time
	)
	if err := row.Scan(&id, &hash, &r.Phone, &r.From, &r.To, &r.Amount, &state, &reason,
		&r.Confirmations, &r.SubmittedAt, &lastPolledAt, &terminalAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	r.ID = id.String()
	if hash != nil {
		r.Hash = *hash
	}
	r.State = State(state)
	r.Reason = Reason(reason)
	r.SubmittedAt = r.SubmittedAt.UTC()
	if lastPolledAt != nil {
		v := lastPolledAt.UTC()
		r.LastPolledAt = &v
	}
	if terminalAt != nil {
		v := terminalAt.UTC()
		r.TerminalAt = &v
	}
	return r, nil
}
