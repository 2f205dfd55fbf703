package banking

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Keda87/simple-banking-api/internal/shared"
)

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type transferRequest struct {
	DestinationAccountNumber string          `json:"destination_account_number"`
	Amount                   decimal.Decimal `json:"amount"`
}

type statementResponse struct {
	ID       int64  `json:"id"`
	BankInfo string `json:"bank_info"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
	IsDebit  bool   `json:"is_debit"`
}

type mutationResponse struct {
	ID          int64     `json:"id"`
	Created     time.Time `json:"created"`
	Amount      string    `json:"amount"`
	Status      string    `json:"status"`
	Sender      string    `json:"sender"`
	Description string    `json:"description"`
}

type mutationPage struct {
	shared.Pagination
	Results []mutationResponse `json:"results"`
}

type accountResponse struct {
	ID            int64  `json:"id"`
	GUID          string `json:"guid"`
	AccountNumber string `json:"account_number"`
	Holder        string `json:"holder,omitempty"`
	IsActive      bool   `json:"is_active"`
	Balance       string `json:"balance,omitempty"`
}

func toStatementResponse(st Statement) statementResponse {
	return statementResponse{
		ID:       st.ID,
		BankInfo: st.AccountNumber,
		Sender:   st.SenderName,
		Receiver: st.ReceiverName,
		Amount:   st.Amount.StringFixed(2),
		IsDebit:  st.IsDebit,
	}
}

func toMutationResponse(st Statement) mutationResponse {
	return mutationResponse{
		ID:          st.ID,
		Created:     st.CreatedAt,
		Amount:      st.Amount.StringFixed(2),
		Status:      st.Status(),
		Sender:      st.AccountNumber,
		Description: st.Description,
	}
}

func toAccountResponse(a Account) accountResponse {
	return accountResponse{
		ID:            a.ID,
		GUID:          a.GUID.String(),
		AccountNumber: a.Number,
		Holder:        a.Holder,
		IsActive:      a.IsActive,
	}
}
