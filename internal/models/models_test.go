package models

import "testing"

// ========================================
// Payment status machine
// ========================================

func TestPaymentStatusTerminal(t *testing.T) {
	if PaymentStatusPending.Terminal() {
		t.Error("pending must not be terminal")
	}
	for _, s := range []PaymentStatus{
		PaymentStatusCompleted, PaymentStatusFailed,
		PaymentStatusExpired, PaymentStatusCancelled,
	} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if PaymentStatus("bogus").Terminal() {
		t.Error("unknown status must not report terminal")
	}
}

func TestCanTransition(t *testing.T) {
	terminals := []PaymentStatus{
		PaymentStatusCompleted, PaymentStatusFailed,
		PaymentStatusExpired, PaymentStatusCancelled,
	}

	for _, to := range terminals {
		if !CanTransition(PaymentStatusPending, to) {
			t.Errorf("pending -> %s should be allowed", to)
		}
	}

	// Terminal states are sinks.
	for _, from := range terminals {
		for _, to := range append(terminals, PaymentStatusPending) {
			if CanTransition(from, to) {
				t.Errorf("%s -> %s should be forbidden", from, to)
			}
		}
	}

	if CanTransition(PaymentStatusPending, PaymentStatusPending) {
		t.Error("pending -> pending should be forbidden")
	}
	if CanTransition(PaymentStatus("bogus"), PaymentStatusFailed) {
		t.Error("unknown source status should be forbidden")
	}
}

func TestAmountMajorUnits(t *testing.T) {
	p := &PaymentRecord{AmountMinor: 12999}
	if got := p.Amount(); got != 129.99 {
		t.Errorf("Amount() = %v, want 129.99", got)
	}
}

// ========================================
// Search tables
// ========================================

func TestIsRoutableTable(t *testing.T) {
	for _, name := range RoutableTables() {
		if !IsRoutableTable(name) {
			t.Errorf("IsRoutableTable(%q) = false, want true", name)
		}
	}
	if IsRoutableTable(TableOriginalText) {
		t.Error("original_text must not be routable")
	}
	if IsRoutableTable("claims") {
		t.Error("unknown table must not be routable")
	}
}

func TestRoutableTablesCount(t *testing.T) {
	if len(RoutableTables()) != 3 {
		t.Errorf("RoutableTables() count = %d, want 3", len(RoutableTables()))
	}
}
