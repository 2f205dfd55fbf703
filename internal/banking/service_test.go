package banking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Keda87/simple-banking-api/internal/shared"
)

const (
	aliceNumber = "0123456789ABC"
	bobNumber   = "H0123456789AB"
)

var (
	alice = shared.Actor{CustomerID: 1, Email: "alice@example.com"}
	bob   = shared.Actor{CustomerID: 2, Email: "bob@example.com"}
)

type fixture struct {
	store   *memStore
	sink    *recordingSink
	service *Service
	alice   Account
	bob     Account
}

func newFixture(t *testing.T, aliceActive, bobActive bool) *fixture {
	t.Helper()
	store := newMemStore()
	sink := &recordingSink{store: store}
	svc := NewService(store, sink)
	svc.WithNow(func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) })
	return &fixture{
		store:   store,
		sink:    sink,
		service: svc,
		alice:   store.addAccount(10, alice.CustomerID, "Alice Doe", aliceNumber, aliceActive),
		bob:     store.addAccount(20, bob.CustomerID, "Bob Roe", bobNumber, bobActive),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireField(t *testing.T, err error, sentinel error, field string) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, sentinel)
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %T", err)
	assert.Equal(t, field, verr.Field)
}

func TestDepositCreditsAccount(t *testing.T) {
	f := newFixture(t, true, true)

	st, err := f.service.Deposit(context.Background(), alice, dec("20000"))
	require.NoError(t, err)

	assert.False(t, st.IsDebit)
	assert.Equal(t, DescriptionDeposit, st.Description)
	assert.Equal(t, alice.CustomerID, st.SenderID)
	assert.Equal(t, alice.CustomerID, st.ReceiverID)
	assert.Equal(t, aliceNumber, st.AccountNumber)

	balance, err := f.service.GetBalance(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("20000")), "balance %s", balance)
	assert.Equal(t, []string{"Succeed to deposit funds."}, f.sink.messages())
	assert.Equal(t, "20000", f.sink.events[0].Metadata["amount"])
	assert.Equal(t, alice.Email, f.sink.events[0].Actor)
}

func TestDepositRejectsInactiveAccount(t *testing.T) {
	f := newFixture(t, false, true)

	_, err := f.service.Deposit(context.Background(), alice, dec("10"))
	requireField(t, err, ErrAccountInactive, FieldSender)

	field, ok := InactiveField(err)
	assert.True(t, ok)
	assert.Equal(t, FieldSender, field)
	assert.Empty(t, f.store.committed(f.alice.ID))
	assert.Equal(t, []string{"Failed to deposit funds."}, f.sink.messages())
}

func TestRejectsInvalidAmounts(t *testing.T) {
	cases := []string{"0", "-5", "10.001", "10000000000.00"}
	for _, amount := range cases {
		t.Run(amount, func(t *testing.T) {
			f := newFixture(t, true, true)
			f.store.seedCredit(f.alice.ID, "100")

			_, err := f.service.Deposit(context.Background(), alice, dec(amount))
			requireField(t, err, ErrInvalidAmount, FieldAmount)
			_, err = f.service.Withdraw(context.Background(), alice, dec(amount))
			requireField(t, err, ErrInvalidAmount, FieldAmount)
			_, _, err = f.service.Transfer(context.Background(), alice, bobNumber, dec(amount))
			requireField(t, err, ErrInvalidAmount, FieldAmount)

			assert.Len(t, f.store.committed(f.alice.ID), 1)
		})
	}
}

func TestWithdrawChecksFreshBalance(t *testing.T) {
	f := newFixture(t, true, true)
	f.store.seedCredit(f.alice.ID, "50")

	_, err := f.service.Withdraw(context.Background(), alice, dec("50.01"))
	requireField(t, err, ErrInsufficientFunds, FieldAmount)

	st, err := f.service.Withdraw(context.Background(), alice, dec("50"))
	require.NoError(t, err)
	assert.True(t, st.IsDebit)
	assert.Equal(t, DescriptionWithdrawn, st.Description)
	assert.True(t, f.store.balance(f.alice.ID).IsZero())
	assert.Equal(t, []string{
		"Amount to transfer is exceeded to be withdraw.",
		"Succeed to withdraw funds.",
	}, f.sink.messages())
}

func TestWithdrawRejectsInactiveAccount(t *testing.T) {
	f := newFixture(t, false, true)
	f.store.seedCredit(f.alice.ID, "50")

	_, err := f.service.Withdraw(context.Background(), alice, dec("10"))
	requireField(t, err, ErrAccountInactive, FieldSender)
	assert.True(t, f.store.balance(f.alice.ID).Equal(dec("50")))
}

func TestTransferWritesBothLegs(t *testing.T) {
	f := newFixture(t, true, true)
	f.store.seedCredit(f.alice.ID, "100")

	debit, credit, err := f.service.Transfer(context.Background(), alice, bobNumber, dec("40.50"))
	require.NoError(t, err)

	assert.True(t, debit.IsDebit)
	assert.Equal(t, f.alice.ID, debit.AccountID)
	assert.Equal(t, DescriptionTransferred, debit.Description)
	assert.False(t, credit.IsDebit)
	assert.Equal(t, f.bob.ID, credit.AccountID)
	assert.Equal(t, DescriptionReceived, credit.Description)
	for _, st := range []Statement{debit, credit} {
		assert.Equal(t, alice.CustomerID, st.SenderID)
		assert.Equal(t, bob.CustomerID, st.ReceiverID)
		assert.True(t, st.Amount.Equal(dec("40.50")))
	}
	assert.Equal(t, "Alice Doe", debit.SenderName)
	assert.Equal(t, "Bob Roe", debit.ReceiverName)

	assert.True(t, f.store.balance(f.alice.ID).Equal(dec("59.50")))
	assert.True(t, f.store.balance(f.bob.ID).Equal(dec("40.50")))
	assert.Equal(t, []string{"Transfer succeed."}, f.sink.messages())
	assert.Equal(t, bobNumber, f.sink.events[0].Metadata[FieldDestination])
	assert.Zero(t, f.sink.inTxEmit)
}

func TestTransferValidationOrder(t *testing.T) {
	tests := []struct {
		name        string
		aliceActive bool
		bobActive   bool
		seed        string
		destination string
		amount      string
		sentinel    error
		field       string
		message     string
	}{
		{
			name: "unknown destination", aliceActive: false, bobActive: false, seed: "0",
			destination: "GGGGGGGGGGGGG", amount: "10",
			sentinel: ErrInvalidDestination, field: FieldDestination,
			message: "Failed to transfer, invalid destination account number.",
		},
		{
			name: "malformed destination", aliceActive: true, bobActive: true, seed: "100",
			destination: "not-a-number", amount: "10",
			sentinel: ErrInvalidDestination, field: FieldDestination,
			message: "Failed to transfer, invalid destination account number.",
		},
		{
			name: "self transfer", aliceActive: true, bobActive: true, seed: "100",
			destination: aliceNumber, amount: "10",
			sentinel: ErrInvalidDestination, field: FieldDestination,
			message: "Failed to transfer, invalid destination account number.",
		},
		{
			name: "receiver checked before sender", aliceActive: false, bobActive: false, seed: "0",
			destination: bobNumber, amount: "10",
			sentinel: ErrAccountInactive, field: FieldReceiver,
			message: "Failed to transfer, receiver bank is inactive.",
		},
		{
			name: "sender inactive", aliceActive: false, bobActive: true, seed: "0",
			destination: bobNumber, amount: "10",
			sentinel: ErrAccountInactive, field: FieldSender,
			message: "Failed to transfer, sender bank is inactive.",
		},
		{
			name: "balance checked last", aliceActive: true, bobActive: true, seed: "9.99",
			destination: bobNumber, amount: "10",
			sentinel: ErrInsufficientFunds, field: FieldAmount,
			message: "Failed to transfer, amount to be transfer is exceeded.",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.aliceActive, tc.bobActive)
			if tc.seed != "0" {
				f.store.seedCredit(f.alice.ID, tc.seed)
			}
			before := len(f.store.committed(f.alice.ID))

			_, _, err := f.service.Transfer(context.Background(), alice, tc.destination, dec(tc.amount))
			requireField(t, err, tc.sentinel, tc.field)

			assert.Len(t, f.store.committed(f.alice.ID), before)
			assert.Empty(t, f.store.committed(f.bob.ID))
			assert.Equal(t, []string{tc.message}, f.sink.messages())
		})
	}
}

func TestTransferIsAtomicWhenSecondLegFails(t *testing.T) {
	f := newFixture(t, true, true)
	f.store.seedCredit(f.alice.ID, "100")
	f.store.failInsertAt = 2

	_, _, err := f.service.Transfer(context.Background(), alice, bobNumber, dec("30"))
	require.ErrorIs(t, err, errInjected)

	assert.True(t, f.store.balance(f.alice.ID).Equal(dec("100")))
	assert.True(t, f.store.balance(f.bob.ID).IsZero())
	assert.Len(t, f.store.committed(f.alice.ID), 1)
	assert.Empty(t, f.sink.messages(), "infrastructure failures are not audited")
}

func TestExecuteRejectsNilOperation(t *testing.T) {
	f := newFixture(t, true, true)
	_, err := f.service.Execute(context.Background(), alice, nil)
	require.Error(t, err)
}

func TestActivationIsIdempotent(t *testing.T) {
	f := newFixture(t, false, true)
	ctx := context.Background()

	account, err := f.service.Activate(ctx, alice, f.alice.GUID)
	require.NoError(t, err)
	assert.True(t, account.IsActive)

	account, err = f.service.Activate(ctx, alice, f.alice.GUID)
	require.NoError(t, err)
	assert.True(t, account.IsActive)

	account, err = f.service.Deactivate(ctx, alice, f.alice.GUID)
	require.NoError(t, err)
	assert.False(t, account.IsActive)

	_, err = f.service.Deactivate(ctx, alice, f.alice.GUID)
	require.NoError(t, err)

	assert.Equal(t, []string{"Account activated.", "Account deactivated."}, f.sink.messages())
	stored, err := f.store.FindByOwner(ctx, alice.CustomerID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestActivationHidesForeignAccounts(t *testing.T) {
	f := newFixture(t, true, false)

	_, err := f.service.Activate(context.Background(), alice, f.bob.GUID)
	require.ErrorIs(t, err, ErrAccountNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.service.Activate(context.Background(), alice, uuid.New())
	require.ErrorIs(t, err, ErrAccountNotFound)

	stored, _ := f.store.FindByOwner(context.Background(), bob.CustomerID)
	assert.False(t, stored.IsActive)
}

func TestListStatementsNewestFirstWithPaging(t *testing.T) {
	f := newFixture(t, true, true)
	ctx := context.Background()
	for _, amount := range []string{"1", "2", "3", "4", "5"} {
		_, err := f.service.Deposit(ctx, alice, dec(amount))
		require.NoError(t, err)
	}

	page1, paging, err := f.service.ListStatements(ctx, alice, f.alice.GUID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, shared.Pagination{Page: 1, PerPage: 2, Total: 5, TotalPages: 3}, paging)
	require.Len(t, page1, 2)
	assert.True(t, page1[0].Amount.Equal(dec("5")))
	assert.True(t, page1[1].Amount.Equal(dec("4")))

	page3, paging, err := f.service.ListStatements(ctx, alice, f.alice.GUID, 3, 2)
	require.NoError(t, err)
	assert.False(t, paging.HasNext())
	require.Len(t, page3, 1)
	assert.True(t, page3[0].Amount.Equal(dec("1")))

	_, _, err = f.service.ListStatements(ctx, bob, f.alice.GUID, 1, 2)
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestSummaryDerivesBalance(t *testing.T) {
	f := newFixture(t, true, true)
	f.store.seedCredit(f.alice.ID, "75.25")
	_, err := f.service.Withdraw(context.Background(), alice, dec("0.25"))
	require.NoError(t, err)

	summary, err := f.service.Summary(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, aliceNumber, summary.Account.Number)
	assert.Equal(t, "75.00", summary.Balance.StringFixed(2))
}

type countingObserver struct {
	outcomes map[string]int
}

func (o *countingObserver) ObserveOperation(kind, outcome string) {
	o.outcomes[kind+"/"+outcome]++
}

func TestObserverReceivesOutcomes(t *testing.T) {
	f := newFixture(t, true, true)
	obs := &countingObserver{outcomes: map[string]int{}}
	f.service.WithObserver(obs)

	_, _ = f.service.Deposit(context.Background(), alice, dec("5"))
	_, _ = f.service.Withdraw(context.Background(), alice, dec("6"))
	_, _, _ = f.service.Transfer(context.Background(), alice, "GGGGGGGGGGGGG", dec("1"))

	assert.Equal(t, map[string]int{
		"deposit/success":              1,
		"withdraw/insufficient_funds":  1,
		"transfer/invalid_destination": 1,
	}, obs.outcomes)
}
