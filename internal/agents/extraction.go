package agents

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/threeway/reconcile/internal/citation"
	"github.com/threeway/reconcile/internal/decimal"
	"github.com/threeway/reconcile/internal/external"
	"github.com/threeway/reconcile/internal/fuzzy"
	"github.com/threeway/reconcile/internal/llm"
	"github.com/threeway/reconcile/internal/pipeline"
)

// extractionConcurrency bounds how many of the three documents' LLM calls
// run at once per session.
const extractionConcurrency = 3

// chunksPerProbe / keptChunks implement "take top 5 after re-ranking from
// top 10".
const (
	chunksPerProbe = 10
	keptChunks     = 5
)

// Extractor is the Extraction Agent.
type Extractor struct {
	Router  *llm.Router
	Vectors external.VectorStore
}

// schema mirrors the canonical JSON shape the LLM is prompted for.
// Every numeric is returned as a string to
// preserve precision through the JSON boundary.
type schema struct {
	VendorName     string       `json:"vendorName"`
	DocumentNumber string       `json:"documentNumber"`
	DocumentDate   string       `json:"documentDate"`
	Currency       string       `json:"currency"`
	LineItems      []lineSchema `json:"lineItems"`
	Subtotal       string       `json:"subtotal"`
	Tax            string       `json:"tax"`
	GrandTotal     string       `json:"grandTotal"`
}

type lineSchema struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	Total       string `json:"total"`
	PartNumber  string `json:"partNumber,omitempty"`
}

// extractionSchema is the JSON Schema of schema, derived once by
// reflection so the hint handed to providers can never drift out of sync
// with the struct the completion is decoded into.
var extractionSchema = llm.MustSchemaOf(schema{})

// probe returns the per-kind retrieval probe text
// ("vendor number items total invoice" for invoices, etc.).
func probe(kind pipeline.Kind) string {
	switch kind {
	case pipeline.KindInvoice:
		return "vendor number items total invoice"
	case pipeline.KindGRN:
		return "goods receipt quantity delivered items"
	default:
		return "purchase order vendor items total"
	}
}

// Run extracts all three documents in parallel, joined by a barrier
// before returning.
func (e *Extractor) Run(ctx context.Context, st *pipeline.State) error {
	finish := trace(st, pipeline.StageExtraction)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractionConcurrency)

	type slot struct {
		target **pipeline.ExtractedDocument
		doc    *pipeline.Document
	}
	slots := []slot{
		{&st.ExtractedPO, &st.PO},
		{&st.ExtractedGRN, &st.GRN},
		{&st.ExtractedInvoice, &st.Invoice},
	}

	results := make([]*pipeline.ExtractedDocument, len(slots))
	errsByDoc := make([]error, len(slots))
	degradedByDoc := make([]bool, len(slots))

	for i, sl := range slots {
		i, sl := i, sl
		g.Go(func() error {
			ed, degraded, err := e.extractOne(gctx, sl.doc)
			results[i] = ed
			errsByDoc[i] = err
			degradedByDoc[i] = degraded
			return nil // per-document errors are non-fatal; never abort the group
		})
	}
	_ = g.Wait()

	for i, sl := range slots {
		*sl.target = results[i]
		if err := errsByDoc[i]; err != nil {
			st.AppendError(pipeline.StageError{
				Stage:   pipeline.StageExtraction,
				Kind:    pipeline.ErrorParseError,
				Message: fmt.Sprintf("extraction failed for %s: %v", sl.doc.Kind, err),
				Fatal:   false,
			})
		}
		if degradedByDoc[i] {
			st.AppendError(pipeline.StageError{
				Stage:   pipeline.StageExtraction,
				Kind:    pipeline.ErrorUpstreamUnavail,
				Message: fmt.Sprintf("%s extracted by a fallback provider", sl.doc.Kind),
				Fatal:   false,
			})
		}
	}

	outcome := pipeline.OutcomeSuccess
	if st.ExtractedCount() == 0 {
		outcome = pipeline.OutcomeFailed
	} else if st.ExtractedCount() < len(slots) {
		outcome = pipeline.OutcomePartial
	}
	finish(outcome)
	return nil
}

func (e *Extractor) extractOne(ctx context.Context, doc *pipeline.Document) (*pipeline.ExtractedDocument, bool, error) {
	chunks, err := e.Vectors.RetrieveChunks(ctx, doc.DocumentID, probe(doc.Kind), chunksPerProbe)
	if err != nil {
		return nil, false, fmt.Errorf("retrieve chunks: %w", err)
	}
	chunks = rerank(chunks, probe(doc.Kind), keptChunks)

	prompt := buildExtractionPrompt(doc.Kind, chunks)
	completion, outcome, err := e.Router.Complete(ctx, llm.CompletionRequest{
		Prompt:      prompt,
		Temperature: 0,
		JSONMode:    true,
		SchemaHint:  extractionSchema,
	})
	if err != nil {
		return nil, false, fmt.Errorf("llm complete: %w", err)
	}

	var parsed schema
	if err := llm.ExtractJSON(completion, &parsed); err != nil {
		return nil, outcome.Degraded, fmt.Errorf("parse completion: %w", err)
	}

	ed := &pipeline.ExtractedDocument{SourceKind: doc.Kind}
	ed.Document, ed.Warnings, err = bindDocument(doc, parsed, chunks)
	if err != nil {
		return nil, outcome.Degraded, err
	}
	return ed, outcome.Degraded, nil
}

// rerank scores chunks against probe text with the fuzzy matcher (a
// cross-encoder-style relevance function is out of scope for this
// pipeline's external boundary; description-similarity is the available
// deterministic proxy) and keeps the top n.
func rerank(chunks []external.Chunk, probe string, n int) []external.Chunk {
	scored := make([]external.Chunk, len(chunks))
	copy(scored, chunks)
	sort.SliceStable(scored, func(i, j int) bool {
		si := fuzzy.Match(probe, scored[i].Text)
		sj := fuzzy.Match(probe, scored[j].Text)
		return si > sj
	})
	if len(scored) > n {
		scored = scored[:n]
	}
	return scored
}

func buildExtractionPrompt(kind pipeline.Kind, chunks []external.Chunk) string {
	var b []byte
	b = append(b, fmt.Sprintf("Extract the canonical fields of this %s document as JSON. "+
		"Return every numeric value as a string to preserve precision. "+
		"Provide an RFC8259 compliant JSON response adhering to this JSON Schema: %s\n\nSource text:\n",
		kind, extractionSchema)...)
	for _, c := range chunks {
		b = append(b, c.Text...)
		b = append(b, '\n')
	}
	return string(b)
}

// bindDocument converts a parsed schema into a pipeline.Document, binding
// a citation to every extracted scalar and parsing
// every numeric through the Decimal Kernel.
func bindDocument(src *pipeline.Document, parsed schema, chunks []external.Chunk) (pipeline.Document, []string, error) {
	var warnings []string

	parseField := func(raw, label string) (decimal.D, error) {
		v, err := decimal.Parse(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: %w", label, err)
		}
		return v, nil
	}

	subtotal, err := parseField(parsed.Subtotal, "subtotal")
	if err != nil {
		return pipeline.Document{}, nil, err
	}
	tax, err := parseField(parsed.Tax, "tax")
	if err != nil {
		return pipeline.Document{}, nil, err
	}
	grandTotal, err := parseField(parsed.GrandTotal, "grandTotal")
	if err != nil {
		return pipeline.Document{}, nil, err
	}

	bindOne := func(literal string) pipeline.Citation {
		c, ok := citation.Bind(literal, chunks)
		if !ok {
			warnings = append(warnings, "unresolved citation for "+literal)
		}
		return c
	}

	out := pipeline.Document{
		DocumentID:     src.DocumentID,
		Kind:           src.Kind,
		Currency:       parsed.Currency,
		VendorName:     parsed.VendorName,
		DocumentNumber: parsed.DocumentNumber,
		DocumentDate:   parsed.DocumentDate,
		Totals: pipeline.Totals{
			Subtotal:         subtotal,
			SubtotalCitation: bindOne(parsed.Subtotal),
			Tax:              tax,
			TaxCitation:      bindOne(parsed.Tax),
			GrandTotal:       grandTotal,
			GrandCitation:    bindOne(parsed.GrandTotal),
		},
	}

	for _, li := range parsed.LineItems {
		qty, err := parseField(li.Quantity, "lineItem.quantity")
		if err != nil {
			return pipeline.Document{}, nil, err
		}
		price, err := parseField(li.UnitPrice, "lineItem.unitPrice")
		if err != nil {
			return pipeline.Document{}, nil, err
		}
		total, err := parseField(li.Total, "lineItem.total")
		if err != nil {
			return pipeline.Document{}, nil, err
		}
		out.LineItems = append(out.LineItems, pipeline.LineItem{
			Description:  li.Description,
			Quantity:     qty,
			UnitPrice:    price,
			ClaimedTotal: total,
			PartNumber:   li.PartNumber,
			Citation:     bindOne(li.Description),
		})
	}

	return out, warnings, nil
}
