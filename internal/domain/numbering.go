package domain

import (
	"fmt"
	"strings"
	"time"
)

// SequenceWidth is the zero-padded width of the numeric suffix on order and
// transaction numbers.
const SequenceWidth = 7

const (
	saleNumberPrefix    = "SAL"
	expenseNumberPrefix = "EXP"
)

// OrderNumberScope builds the allocation scope for order numbers, e.g.
// "RW2501-" for Rwanda, January 2025. Sequences are monotonically increasing
// within one scope; a new month opens a fresh scope.
func OrderNumberScope(country string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%02d%02d-", normaliseCountry(country), t.Year()%100, int(t.Month()))
}

// TransactionNumberScope builds the allocation scope for ledger entry numbers,
// e.g. "SAL-RW2501-" or "EXP-RW2501-".
func TransactionNumberScope(txType TransactionType, country string, t time.Time) string {
	prefix := saleNumberPrefix
	if txType == TransactionTypeExpense {
		prefix = expenseNumberPrefix
	}
	return prefix + "-" + OrderNumberScope(country, t)
}

// FormatSequence renders an allocated sequence value under its scope, e.g.
// FormatSequence("RW2501-", 1) == "RW2501-0000001".
func FormatSequence(scope string, seq int64) string {
	return fmt.Sprintf("%s%0*d", scope, SequenceWidth, seq)
}

func normaliseCountry(country string) string {
	return strings.ToUpper(strings.TrimSpace(country))
}
