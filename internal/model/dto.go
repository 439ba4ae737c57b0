package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ledgergate/ledgergate/internal/pkg/apperrors"
)

// ServiceRequest is the tagged union of per-service payloads. Exactly one
// variant is active per dispatch; the dispatcher matches variants
// exhaustively, so adding a service means adding a variant and a routing
// table entry.
type ServiceRequest interface {
	serviceRequest()
}

// UploadedFile is an inbound document attachment.
type UploadedFile struct {
	Name    string
	Content []byte
	Size    int64
}

func (f *UploadedFile) Validate() error {
	if f == nil {
		return nil
	}
	if f.Name == "" {
		return apperrors.NewInvalidRequest("uploaded file has no name")
	}
	if f.Size != int64(len(f.Content)) {
		return apperrors.NewInvalidRequest(
			fmt.Sprintf("uploaded file %s declares %d bytes but carries %d", f.Name, f.Size, len(f.Content)))
	}
	return nil
}

// TextRequest is a normalized text-only payload.
type TextRequest struct {
	Text string `json:"text"`
}

// TextOrFileRequest accepts free text, an uploaded document, or both.
// Used by service1 and service3.
type TextOrFileRequest struct {
	Text string
	File *UploadedFile
}

// JournalEntry is one line of a double-entry journal.
type JournalEntry struct {
	Account string          `json:"account" binding:"required"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
}

// JournalRequest is the structured payload for service2. Raw holds the
// client's original bytes; the dispatcher forwards those untouched, so
// re-encoding never changes the JSON type or ordering of a field. The typed
// fields exist for validation only.
type JournalRequest struct {
	JournalEntries    []JournalEntry  `json:"journal_entries" binding:"required"`
	AdditionalContext string          `json:"additional_context,omitempty"`
	Raw               json.RawMessage `json:"-"`
}

// TransactionRequest is the structured payload for service4. Like
// JournalRequest, Raw carries the verbatim client bytes for forwarding.
type TransactionRequest struct {
	TransactionID     string          `json:"transaction_id" binding:"required"`
	Date              string          `json:"date" binding:"required"`
	Type              string          `json:"type" binding:"required"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency" binding:"required"`
	Institution       string          `json:"institution" binding:"required"`
	Counterparty      string          `json:"counterparty" binding:"required"`
	Location          string          `json:"location" binding:"required"`
	Description       string          `json:"description" binding:"required"`
	AdditionalContext string          `json:"additional_context,omitempty"`
	Raw               json.RawMessage `json:"-"`
}

func (TextRequest) serviceRequest()        {}
func (TextOrFileRequest) serviceRequest()  {}
func (JournalRequest) serviceRequest()     {}
func (TransactionRequest) serviceRequest() {}

func (r TextOrFileRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" && r.File == nil {
		return apperrors.New(apperrors.ErrEmptyInput, "No input provided.", nil)
	}
	return r.File.Validate()
}

func (r JournalRequest) Validate() error {
	if len(r.JournalEntries) == 0 {
		return apperrors.New(apperrors.ErrEmptyInput, "journal_entries must not be empty", nil)
	}
	for i, entry := range r.JournalEntries {
		if strings.TrimSpace(entry.Account) == "" {
			return apperrors.NewInvalidRequest(fmt.Sprintf("journal_entries[%d].account is required", i))
		}
		if entry.Debit.IsNegative() {
			return apperrors.NewInvalidRequest(fmt.Sprintf("journal_entries[%d].debit must be non-negative", i))
		}
		if entry.Credit.IsNegative() {
			return apperrors.NewInvalidRequest(fmt.Sprintf("journal_entries[%d].credit must be non-negative", i))
		}
	}
	return nil
}

func (r TransactionRequest) Validate() error {
	if r.Amount.IsNegative() {
		return apperrors.NewInvalidRequest("amount must be non-negative")
	}
	return nil
}
