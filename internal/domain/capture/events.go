// Package capture materializes tax movements from host ERP document
// events: invoices and stock entries arriving on submit/cancel.
package capture

import (
	"time"

	"github.com/shopspring/decimal"

	"gnrtax/internal/core/types"
)

// Source document types as the host ERP names them.
const (
	DocTypeSalesInvoice    = "SalesInvoice"
	DocTypePurchaseInvoice = "PurchaseInvoice"
	DocTypeStockEntry      = "StockEntry"
	DocTypeDeliveryNote    = "DeliveryNote"
	DocTypePurchaseReceipt = "PurchaseReceipt"
)

// InvoiceLine is one item line of an invoice event.
type InvoiceLine struct {
	LineNo    int             `json:"lineNo"`
	ItemCode  string          `json:"itemCode"`
	ItemName  string          `json:"itemName,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      string          `json:"unit,omitempty"`
	UnitPrice types.Money     `json:"unitPrice"`

	// Rate is the host ERP's explicit per-line tax rate, when filled in
	Rate *types.Rate `json:"rate,omitempty"`
}

// InvoiceTaxLine is a tax/charge line of an invoice event. Lines whose
// description matches the configured tax keywords feed rate resolution.
type InvoiceTaxLine struct {
	Description string      `json:"description"`
	Amount      types.Money `json:"amount"`
}

// InvoiceEvent is a sales or purchase invoice submitted in the host ERP.
type InvoiceEvent struct {
	DocType          string           `json:"docType"`
	DocID            string           `json:"docId"`
	Date             time.Time        `json:"date"`
	CounterpartyCode string           `json:"counterpartyCode,omitempty"`
	Lines            []InvoiceLine    `json:"lines"`
	TaxLines         []InvoiceTaxLine `json:"taxLines,omitempty"`
}

// IsSale reports whether the event moves fuel out to a client.
func (e *InvoiceEvent) IsSale() bool {
	return e.DocType == DocTypeSalesInvoice || e.DocType == DocTypeDeliveryNote
}

// StockEntryLine is one item line of a stock entry event.
type StockEntryLine struct {
	LineNo   int             `json:"lineNo"`
	ItemCode string          `json:"itemCode"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit,omitempty"`
}

// StockEntryEvent is a warehouse movement submitted in the host ERP.
// The filled-in warehouse sides determine the movement direction.
type StockEntryEvent struct {
	DocType         string           `json:"docType"`
	DocID           string           `json:"docId"`
	Date            time.Time        `json:"date"`
	SourceWarehouse string           `json:"sourceWarehouse,omitempty"`
	TargetWarehouse string           `json:"targetWarehouse,omitempty"`
	Purpose         string           `json:"purpose,omitempty"`
	Lines           []StockEntryLine `json:"lines"`
}

// CancelEvent signals that a source document was cancelled in the host ERP.
type CancelEvent struct {
	DocType string `json:"docType"`
	DocID   string `json:"docId"`
}
