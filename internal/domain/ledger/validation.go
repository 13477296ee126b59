package ledger

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tamper-evident-ledger/internal/domain/apperror"
)

const (
	MinLines          = 2
	BusinessDayLayout = "2006-01-02"

	// AmountPrecision and AmountScale mirror journal_lines.amount NUMERIC(30, 8).
	// Amounts outside them would be rounded by storage after being hashed and balanced.
	AmountPrecision = 30
	AmountScale     = 8
)

var (
	currencyCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)

	// maxAmount is the first value with more integer digits than the column holds
	maxAmount = decimal.New(1, AmountPrecision-AmountScale)
)

// ValidatePostingRequest checks a request before any transaction is opened and returns
// the first violation as a VALIDATION_ERROR. The parsed amounts are returned in line order.
//
// Order: line count, line shape and positive amounts that fit the stored precision, single
// currency, per-currency balance, description and reference, then the envelope fields.
func ValidatePostingRequest(req *PostingRequest) ([]decimal.Decimal, error) {
	if req == nil {
		return nil, apperror.Validation("posting request is required")
	}
	if len(req.Lines) < MinLines {
		return nil, apperror.Validation("A journal entry must have at least 2 lines")
	}

	amounts := make([]decimal.Decimal, len(req.Lines))
	for i, line := range req.Lines {
		amount, err := decimal.NewFromString(strings.TrimSpace(line.Amount))
		if err != nil || !amount.IsPositive() {
			return nil, apperror.Newf(apperror.CodeValidation, "Invalid amount on line %d: %q", i+1, line.Amount)
		}
		if !amount.Equal(amount.Truncate(AmountScale)) {
			return nil, apperror.Newf(apperror.CodeValidation,
				"Invalid amount on line %d: %q has more than %d decimal places", i+1, line.Amount, AmountScale)
		}
		if amount.GreaterThanOrEqual(maxAmount) {
			return nil, apperror.Newf(apperror.CodeValidation,
				"Invalid amount on line %d: %q has more than %d integer digits", i+1, line.Amount, AmountPrecision-AmountScale)
		}
		if strings.TrimSpace(line.AccountID) == "" {
			return nil, apperror.Newf(apperror.CodeValidation, "Line %d is missing an account", i+1)
		}
		if !line.DebitCredit.Valid() {
			return nil, apperror.Newf(apperror.CodeValidation, "Line %d has invalid side %q", i+1, line.DebitCredit)
		}
		if !currencyCodePattern.MatchString(line.CurrencyCode) {
			return nil, apperror.Newf(apperror.CodeValidation, "Line %d has invalid currency code %q", i+1, line.CurrencyCode)
		}
		amounts[i] = amount
	}

	if err := validateCurrencies(req.Lines); err != nil {
		return nil, err
	}
	if err := validateBalance(req.Lines, amounts); err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.Description) == "" {
		return nil, apperror.Validation("description is required")
	}
	if strings.TrimSpace(req.Reference) == "" {
		return nil, apperror.Validation("reference is required")
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, apperror.Validation("idempotency key is required")
	}
	if !req.Subledger.Valid() {
		return nil, apperror.Newf(apperror.CodeValidation, "invalid subledger %q", req.Subledger)
	}
	if err := ValidateBusinessDay(req.BusinessDay); err != nil {
		return nil, err
	}
	return amounts, nil
}

func validateCurrencies(lines []PostingLine) error {
	first := lines[0].CurrencyCode
	for _, line := range lines[1:] {
		if line.CurrencyCode != first {
			return apperror.Validation("All lines must use the same currency")
		}
	}
	return nil
}

// validateBalance compares debit and credit totals per currency with exact decimal equality.
func validateBalance(lines []PostingLine, amounts []decimal.Decimal) error {
	type totals struct{ debits, credits decimal.Decimal }
	byCurrency := make(map[string]*totals)
	var order []string

	for i, line := range lines {
		t, ok := byCurrency[line.CurrencyCode]
		if !ok {
			t = &totals{debits: decimal.Zero, credits: decimal.Zero}
			byCurrency[line.CurrencyCode] = t
			order = append(order, line.CurrencyCode)
		}
		if line.DebitCredit.IsDebit() {
			t.debits = t.debits.Add(amounts[i])
		} else {
			t.credits = t.credits.Add(amounts[i])
		}
	}

	for _, currency := range order {
		t := byCurrency[currency]
		if !t.debits.Equal(t.credits) {
			return apperror.New(apperror.CodeValidation, fmt.Sprintf(
				"Debits (%s) must equal credits (%s) for currency %s", t.debits.String(), t.credits.String(), currency)).
				WithDetail("currency", currency)
		}
	}
	return nil
}

// ValidateReverseRequest checks the caller supplied fields of a reversal. A blank reference
// is cleared so the reversal falls back to the derived one.
func ValidateReverseRequest(req *ReverseRequest) error {
	if req == nil {
		return apperror.Validation("reverse request is required")
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return apperror.Validation("idempotency key is required")
	}
	if strings.TrimSpace(req.Description) == "" {
		return apperror.Validation("description is required")
	}
	req.Reference = strings.TrimSpace(req.Reference)
	return ValidateBusinessDay(req.BusinessDay)
}

// ValidateBusinessDay requires a calendar date in YYYY-MM-DD form.
func ValidateBusinessDay(day string) error {
	if _, err := time.Parse(BusinessDayLayout, day); err != nil {
		return apperror.Newf(apperror.CodeValidation, "business day must be YYYY-MM-DD, got %q", day)
	}
	return nil
}
