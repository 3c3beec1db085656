package checkout

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/safar/go-storefront/internal/payment"
	"github.com/shopspring/decimal"
)

// AuditSchema tags the transaction detail document so readers can tell
// layouts apart.
const AuditSchema = "storefront.payment-audit/v1"

// AuditRecord is the structured document stored in the transaction's detail
// column. Provider payloads are kept verbatim next to the normalized fields.
type AuditRecord struct {
	Schema  string        `json:"schema"`
	Commit  *CommitEntry  `json:"commit,omitempty"`
	Refunds []RefundEntry `json:"refunds,omitempty"`
}

type CommitEntry struct {
	RecordedAt   time.Time             `json:"recorded_at"`
	Confirmation *payment.Confirmation `json:"confirmation"`
	Provider     json.RawMessage       `json:"provider,omitempty"`
}

type RefundEntry struct {
	RecordedAt time.Time             `json:"recorded_at"`
	Amount     decimal.Decimal       `json:"amount"`
	Result     *payment.RefundResult `json:"result"`
	Provider   json.RawMessage       `json:"provider,omitempty"`
}

func loadAudit(detail []byte) (*AuditRecord, error) {
	rec := &AuditRecord{Schema: AuditSchema}
	if len(detail) == 0 {
		return rec, nil
	}
	if err := json.Unmarshal(detail, rec); err != nil {
		return nil, fmt.Errorf("decode audit record: %w", err)
	}
	if rec.Schema != AuditSchema {
		return nil, fmt.Errorf("decode audit record: unknown schema %q", rec.Schema)
	}
	return rec, nil
}

// refunded sums the approved refunds, preferring the amount the provider
// reports as nullified over the amount requested.
func (r *AuditRecord) refunded() decimal.Decimal {
	total := decimal.Zero
	for _, e := range r.Refunds {
		if e.Result == nil || !refundApproved(e.Result) {
			continue
		}
		if e.Result.NullifiedAmount.Valid {
			total = total.Add(e.Result.NullifiedAmount.Decimal)
			continue
		}
		total = total.Add(e.Amount)
	}
	return total
}

func (r *AuditRecord) encode() ([]byte, error) {
	doc, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode audit record: %w", err)
	}
	return doc, nil
}

func validJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return json.RawMessage(raw)
}
