package banking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Keda87/simple-banking-api/internal/audit"
)

// memStore is an in-memory RepositoryPort with per-account mutexes standing
// in for row locks, so the service's locking discipline is exercised for real.
type memStore struct {
	mu         sync.Mutex
	accounts   map[int64]*memAccount
	names      map[int64]string
	statements []Statement
	nextID     atomic.Int64
	base       time.Time
	activeTx   atomic.Int32

	// failInsertAt makes the n-th InsertStatement call (1-based) fail.
	failInsertAt int64
	insertCalls  atomic.Int64
}

type memAccount struct {
	lock sync.Mutex
	acct Account
}

var errInjected = errors.New("injected failure")

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[int64]*memAccount),
		names:    make(map[int64]string),
		base:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) addAccount(id, customerID int64, holder, number string, active bool) Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := Account{
		ID:         id,
		GUID:       uuid.New(),
		Number:     number,
		CustomerID: customerID,
		Holder:     holder,
		IsActive:   active,
		CreatedAt:  m.base,
		UpdatedAt:  m.base,
	}
	m.accounts[id] = &memAccount{acct: a}
	m.names[customerID] = holder
	return a
}

func (m *memStore) seedCredit(accountID int64, amount string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[accountID].acct
	m.statements = append(m.statements, Statement{
		ID:            m.nextID.Add(1),
		AccountID:     a.ID,
		AccountNumber: a.Number,
		SenderID:      a.CustomerID,
		ReceiverID:    a.CustomerID,
		Amount:        decimal.RequireFromString(amount),
		Description:   DescriptionDeposit,
		CreatedAt:     m.base,
	})
}

func (m *memStore) committed(accountID int64) []Statement {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Statement
	for _, st := range m.statements {
		if st.AccountID == accountID {
			out = append(out, st)
		}
	}
	return out
}

func (m *memStore) balance(accountID int64) decimal.Decimal {
	return TotalsOf(m.committed(accountID)).Balance()
}

func (m *memStore) lookup(match func(Account) bool) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if match(a.acct) {
			return a.acct, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (m *memStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.activeTx.Add(1)
	defer m.activeTx.Add(-1)
	tx := &memTx{store: m, held: make(map[int64]*memAccount), active: make(map[int64]bool)}
	defer tx.release()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.mu.Lock()
	m.statements = append(m.statements, tx.pending...)
	for id, active := range tx.active {
		m.accounts[id].acct.IsActive = active
	}
	m.mu.Unlock()
	return nil
}

func (m *memStore) FindByOwner(ctx context.Context, customerID int64) (Account, error) {
	return m.lookup(func(a Account) bool { return a.CustomerID == customerID })
}

func (m *memStore) FindByGUID(ctx context.Context, customerID int64, guid uuid.UUID) (Account, error) {
	return m.lookup(func(a Account) bool { return a.GUID == guid && a.CustomerID == customerID })
}

func (m *memStore) FindByAccountNumber(ctx context.Context, number string) (Account, error) {
	return m.lookup(func(a Account) bool { return a.Number == number })
}

func (m *memStore) LedgerTotals(ctx context.Context, accountID int64) (LedgerTotals, error) {
	return TotalsOf(m.committed(accountID)), nil
}

func (m *memStore) ListStatements(ctx context.Context, accountID int64, limit, offset int) ([]Statement, int, error) {
	all := m.committed(accountID)
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

type memTx struct {
	store   *memStore
	held    map[int64]*memAccount
	pending []Statement
	active  map[int64]bool
}

func (tx *memTx) LockAccounts(ctx context.Context, ids ...int64) (map[int64]Account, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := make(map[int64]Account, len(sorted))
	for _, id := range sorted {
		tx.store.mu.Lock()
		a := tx.store.accounts[id]
		tx.store.mu.Unlock()
		if a == nil {
			continue
		}
		if _, ok := tx.held[id]; !ok {
			a.lock.Lock()
			tx.held[id] = a
		}
		tx.store.mu.Lock()
		out[id] = a.acct
		tx.store.mu.Unlock()
	}
	return out, nil
}

func (tx *memTx) LedgerTotals(ctx context.Context, accountID int64) (LedgerTotals, error) {
	statements := tx.store.committed(accountID)
	for _, st := range tx.pending {
		if st.AccountID == accountID {
			statements = append(statements, st)
		}
	}
	return TotalsOf(statements), nil
}

func (tx *memTx) InsertStatement(ctx context.Context, in StatementInput) (Statement, error) {
	call := tx.store.insertCalls.Add(1)
	if tx.store.failInsertAt > 0 && call == tx.store.failInsertAt {
		return Statement{}, errInjected
	}
	tx.store.mu.Lock()
	account := tx.store.accounts[in.AccountID].acct
	sender := tx.store.names[in.SenderID]
	receiver := tx.store.names[in.ReceiverID]
	tx.store.mu.Unlock()
	id := tx.store.nextID.Add(1)
	st := Statement{
		ID:            id,
		AccountID:     in.AccountID,
		AccountNumber: account.Number,
		SenderID:      in.SenderID,
		SenderName:    sender,
		ReceiverID:    in.ReceiverID,
		ReceiverName:  receiver,
		Amount:        in.Amount,
		IsDebit:       in.IsDebit,
		Description:   in.Description,
		CreatedAt:     tx.store.base.Add(time.Duration(id) * time.Second),
	}
	tx.pending = append(tx.pending, st)
	return st, nil
}

func (tx *memTx) SetActive(ctx context.Context, accountID int64, active bool) (bool, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	a, ok := tx.store.accounts[accountID]
	if !ok {
		return false, ErrAccountNotFound
	}
	if a.acct.IsActive == active {
		return false, nil
	}
	tx.active[accountID] = active
	return true, nil
}

func (tx *memTx) release() {
	for _, a := range tx.held {
		a.lock.Unlock()
	}
}

// recordingSink captures audit events and flags any emitted while a
// transaction is open.
type recordingSink struct {
	mu       sync.Mutex
	store    *memStore
	events   []audit.Event
	inTxEmit int
}

func (s *recordingSink) Emit(ctx context.Context, event audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil && s.store.activeTx.Load() > 0 {
		s.inTxEmit++
	}
	s.events = append(s.events, event)
}

func (s *recordingSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Message)
	}
	return out
}
