package dto

// StartRunRequest is the request body for starting a reconciliation run.
// Since and Until are YYYY-MM-DD dates in the process timezone; when absent
// the window is DaysBack days ending today.
type StartRunRequest struct {
	DryRun   bool   `json:"dry_run"`
	DaysBack int    `json:"days_back"`
	Since    string `json:"since,omitempty"`
	Until    string `json:"until,omitempty"`
}

// AnalyzeRecordRequest is one bank statement line to classify and check for
// markup.
type AnalyzeRecordRequest struct {
	ID              string   `json:"id"`
	Timestamp       string   `json:"timestamp"`
	Narration       string   `json:"narration"`
	Counterparty    string   `json:"counterparty,omitempty"`
	LocalAmount     float64  `json:"local_amount"`
	ForeignAmount   *float64 `json:"foreign_amount,omitempty"`
	StatedCurrency  string   `json:"stated_currency,omitempty"`
	ReceiptCurrency string   `json:"receipt_currency,omitempty"`
	MerchantCountry string   `json:"merchant_country,omitempty"`
	CardLast4       string   `json:"card_last4,omitempty"`
}

// RunListParams represents query parameters for listing runs.
type RunListParams struct {
	Status string `json:"status"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// DefaultRunListParams returns default values for run list params.
func DefaultRunListParams() RunListParams {
	return RunListParams{
		Limit: 20,
	}
}
