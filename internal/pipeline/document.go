// Package pipeline holds the typed shared state the supervisor and agents
// cooperate over: the input Document model, the mutable PipelineState
// record, and the final Verdict.
package pipeline

import "github.com/threeway/reconcile/internal/decimal"

// Kind identifies which of the three documents a Document is.
type Kind string

const (
	KindPO      Kind = "PO"
	KindGRN     Kind = "GRN"
	KindInvoice Kind = "INVOICE"
)

// BBox is a bounding box in unit coordinates ([0,1]) relative to the page.
type BBox struct {
	X0, Y0, X1, Y1 float64
}

// Citation refers to a (page, bbox) location inside a source document.
// A zero-value Citation with Unresolved=true represents a value whose
// source could not be located.
type Citation struct {
	Page       int
	Box        BBox
	Unresolved bool
}

// Unresolved constructs a citation marking a value with no located source.
func Unresolved() Citation { return Citation{Unresolved: true} }

// LineItem is one row of a document, exactly as parsed upstream.
// Quantity, UnitPrice, and ClaimedTotal are exact
// fixed-point values produced by internal/decimal.Parse.
type LineItem struct {
	Description  string
	Quantity     decimal.D
	UnitPrice    decimal.D
	ClaimedTotal decimal.D
	PartNumber   string // optional
	Citation     Citation
}

// Totals is a document's summary figures, each independently cited.
type Totals struct {
	Subtotal         decimal.D
	SubtotalCitation Citation
	Tax              decimal.D
	TaxCitation      Citation
	GrandTotal       decimal.D
	GrandCitation    Citation
}

// Document is an already-parsed input document: already rasterized, OCR'd,
// and chunked upstream. This pipeline only consumes
// the result.
type Document struct {
	DocumentID     string
	Kind           Kind
	Currency       string
	VendorName     string
	DocumentNumber string
	DocumentDate   string
	LineItems      []LineItem
	Totals         Totals
}

// PageCount reports the highest page index referenced by any citation in
// the document, 1-based, used to validate that a Citation's Page is within
// bounds.
func (d *Document) PageCount() int {
	max := -1
	consider := func(c Citation) {
		if !c.Unresolved && c.Page > max {
			max = c.Page
		}
	}
	for _, li := range d.LineItems {
		consider(li.Citation)
	}
	consider(d.Totals.SubtotalCitation)
	consider(d.Totals.TaxCitation)
	consider(d.Totals.GrandCitation)
	return max + 1
}
