package topup

// CreateRequest is the payload for POST /topups
type CreateRequest struct {
	Amount int64 `json:"amount" validate:"required,amount"`
}

// CreateResponse carries everything the client needs to render transfer
// instructions for the user.
type CreateResponse struct {
	Topup             *TopupRequest `json:"topup"`
	BankAccountNumber string        `json:"bank_account_number"`
	BankAccountName   string        `json:"bank_account_name"`
	TransferContent   string        `json:"transfer_content"`
}

// BankNotification is the bank gateway's webhook payload for one incoming
// transfer. The description is free text; the transfer code is somewhere
// inside it if the sender followed instructions.
type BankNotification struct {
	TransactionID string `json:"transaction_id" validate:"required"`
	Amount        int64  `json:"amount" validate:"required,amount"`
	Description   string `json:"description"`
	AccountNumber string `json:"account_number"`
}
