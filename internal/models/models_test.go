package models

import "testing"

func TestOrderStatusFor(t *testing.T) {
	tests := map[string]string{
		TransactionStatusInitiated: OrderStatusPending,
		TransactionStatusPending:   OrderStatusPending,
		TransactionStatusCompleted: OrderStatusCompleted,
		TransactionStatusFailed:    OrderStatusFailed,
		TransactionStatusCancelled: OrderStatusCancelled,
	}

	for txStatus, want := range tests {
		if got := OrderStatusFor(txStatus); got != want {
			t.Errorf("OrderStatusFor(%q) = %q, want %q", txStatus, got, want)
		}
	}
}

func TestTransactionIsTerminal(t *testing.T) {
	for _, status := range []string{TransactionStatusInitiated, TransactionStatusPending} {
		if (&Transaction{Status: status}).IsTerminal() {
			t.Errorf("%s should not be terminal", status)
		}
	}
	for _, status := range []string{TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled} {
		if !(&Transaction{Status: status}).IsTerminal() {
			t.Errorf("%s should be terminal", status)
		}
	}
}
