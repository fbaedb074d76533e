package domain

import (
	"testing"
	"time"
)

func TestOrderNumberScope(t *testing.T) {
	jan := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	if scope := OrderNumberScope("rw", jan); scope != "RW2501-" {
		t.Fatalf("OrderNumberScope = %q, want RW2501-", scope)
	}
	dec := time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC)
	if scope := OrderNumberScope("KE", dec); scope != "KE2612-" {
		t.Fatalf("OrderNumberScope = %q, want KE2612-", scope)
	}
}

func TestTransactionNumberScope(t *testing.T) {
	jan := time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)
	if scope := TransactionNumberScope(TransactionTypeSale, "RW", jan); scope != "SAL-RW2501-" {
		t.Fatalf("sale scope = %q", scope)
	}
	if scope := TransactionNumberScope(TransactionTypeExpense, "RW", jan); scope != "EXP-RW2501-" {
		t.Fatalf("expense scope = %q", scope)
	}
}

func TestFormatSequence(t *testing.T) {
	if got := FormatSequence("RW2501-", 1); got != "RW2501-0000001" {
		t.Fatalf("FormatSequence(1) = %q", got)
	}
	if got := FormatSequence("RW2501-", 2); got != "RW2501-0000002" {
		t.Fatalf("FormatSequence(2) = %q", got)
	}
	if got := FormatSequence("SAL-RW2501-", 9999999); got != "SAL-RW2501-9999999" {
		t.Fatalf("FormatSequence(9999999) = %q", got)
	}
}
