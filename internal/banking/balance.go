package banking

import "github.com/shopspring/decimal"

// LedgerTotals holds the two aggregates a balance is derived from.
type LedgerTotals struct {
	Credits decimal.Decimal
	Debits  decimal.Decimal
}

// Balance returns credits minus debits.
func (t LedgerTotals) Balance() decimal.Decimal {
	return Balance(t.Credits, t.Debits)
}

// Balance returns credits minus debits.
func Balance(credits, debits decimal.Decimal) decimal.Decimal {
	return credits.Sub(debits)
}

// TotalsOf folds statements of a single account into LedgerTotals, skipping
// soft-deleted rows.
func TotalsOf(statements []Statement) LedgerTotals {
	totals := LedgerTotals{Credits: decimal.Zero, Debits: decimal.Zero}
	for _, st := range statements {
		if st.DeletedAt != nil {
			continue
		}
		if st.IsDebit {
			totals.Debits = totals.Debits.Add(st.Amount)
		} else {
			totals.Credits = totals.Credits.Add(st.Amount)
		}
	}
	return totals
}
