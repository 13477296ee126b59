package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tamper-evident-ledger/internal/platform/hashing"
)

// ComputeEntryHash returns the SHA-256 hex digest over the pipe-joined canonical fields
// subledger|description|reference|businessDay|idempotencyKey|reversedEntryId|metadata|lines.
// Metadata and lines are rendered with sorted keys and amounts in normalized decimal form,
// so the hash depends only on content and never on id, entry number or timestamps.
func ComputeEntryHash(e *Entry) (string, error) {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataText, err := hashing.StableString(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize metadata: %w", err)
	}

	lines := make([]interface{}, len(e.Lines))
	for i, line := range e.Lines {
		lines[i] = canonicalLine(line.AccountID, string(line.DebitCredit), line.Amount, line.CurrencyCode)
	}
	linesText, err := hashing.StableString(lines)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize lines: %w", err)
	}

	reversed := ""
	if e.ReversedEntryID != nil {
		reversed = e.ReversedEntryID.String()
	}

	canonical := strings.Join([]string{
		string(e.Subledger),
		e.Description,
		e.Reference,
		e.BusinessDay,
		e.IdempotencyKey,
		reversed,
		metadataText,
		linesText,
	}, "|")
	return hashing.SHA256Hex([]byte(canonical)), nil
}

func canonicalLine(accountID, side string, amount decimal.Decimal, currency string) map[string]interface{} {
	return map[string]interface{}{
		"accountId":    accountID,
		"debitCredit":  side,
		"amount":       amount.String(),
		"currencyCode": currency,
	}
}

// PostingFingerprint digests the business content of a posting request. Two requests with
// the same idempotency key must carry the same fingerprint to count as a replay.
// Correlation and request ids are excluded since a client retry may regenerate them.
func PostingFingerprint(req *PostingRequest, amounts []decimal.Decimal) (string, error) {
	lines := make([]interface{}, len(req.Lines))
	for i, line := range req.Lines {
		lines[i] = canonicalLine(line.AccountID, string(line.DebitCredit), amounts[i], line.CurrencyCode)
	}
	return fingerprint("post", map[string]interface{}{
		"subledger":   string(req.Subledger),
		"description": req.Description,
		"reference":   req.Reference,
		"businessDay": req.BusinessDay,
		"metadata":    req.Metadata,
		"lines":       lines,
	})
}

// ReversalFingerprint digests a reversal request for the original entry.
func ReversalFingerprint(originalID string, req *ReverseRequest) (string, error) {
	return fingerprint("reverse", map[string]interface{}{
		"entryId":     originalID,
		"description": req.Description,
		"reference":   req.Reference,
		"businessDay": req.BusinessDay,
	})
}

func fingerprint(kind string, fields map[string]interface{}) (string, error) {
	text, err := hashing.StableString(fields)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize request: %w", err)
	}
	return hashing.SHA256Hex([]byte(kind + "|" + text)), nil
}
