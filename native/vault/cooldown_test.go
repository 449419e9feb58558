package vault

import (
	"errors"
	"math"
	"testing"
)

func TestSettleReleasesAtMaturity(t *testing.T) {
	queue := &CooldownQueue{}
	if err := queue.Enqueue(3_700, 250); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	available, err := queue.Settle(3_699)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if available != 0 || len(queue.Entries) != 1 {
		t.Fatalf("expected entry still pending, available=%d entries=%d", available, len(queue.Entries))
	}
	available, err = queue.Settle(3_700)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if available != 250 || len(queue.Entries) != 0 {
		t.Fatalf("expected entry released, available=%d entries=%d", available, len(queue.Entries))
	}
}

func TestSettleStopsAtImmatureHead(t *testing.T) {
	queue := &CooldownQueue{}
	_ = queue.Enqueue(500, 10)
	_ = queue.Enqueue(100, 20)

	available, err := queue.Settle(200)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if available != 0 {
		t.Fatalf("expected matured tail to stay blocked behind head, got %d", available)
	}
	available, err = queue.Settle(500)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if available != 30 {
		t.Fatalf("expected both entries released, got %d", available)
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	queue := &CooldownQueue{}
	_ = queue.Enqueue(10, 5)
	_ = queue.Enqueue(20, 7)
	_ = queue.Enqueue(30, 11)

	first, err := queue.Settle(25)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	second, err := queue.Settle(25)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if first != 12 || second != first {
		t.Fatalf("expected 12 twice, got %d then %d", first, second)
	}
	if len(queue.Entries) != 1 {
		t.Fatalf("expected one pending entry, got %d", len(queue.Entries))
	}
}

func TestSettleOverflowLeavesQueueUntouched(t *testing.T) {
	queue := &CooldownQueue{Available: math.MaxUint64}
	_ = queue.Enqueue(1, 1)
	if _, err := queue.Settle(1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	if queue.Available != math.MaxUint64 || len(queue.Entries) != 1 {
		t.Fatalf("queue mutated on failure: %+v", queue)
	}
}

func TestWithdrawRequiresAvailableAssets(t *testing.T) {
	queue := &CooldownQueue{Available: 100}
	if err := queue.Withdraw(101); !errors.Is(err, ErrAssetsUnavailable) {
		t.Fatalf("expected ErrAssetsUnavailable, got %v", err)
	}
	if queue.Available != 100 {
		t.Fatalf("expected available unchanged, got %d", queue.Available)
	}
	if err := queue.Withdraw(40); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if queue.Available != 60 {
		t.Fatalf("expected 60 remaining, got %d", queue.Available)
	}
	if err := queue.Withdraw(0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestRefreshCooldownsOnlyShortens(t *testing.T) {
	queue := &CooldownQueue{}
	_ = queue.Enqueue(1_000, 1)
	_ = queue.Enqueue(200, 2)

	changed, err := queue.RefreshCooldowns(100, 300)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if changed != 1 {
		t.Fatalf("expected one entry shortened, got %d", changed)
	}
	if queue.Entries[0].Maturity != 400 || queue.Entries[1].Maturity != 200 {
		t.Fatalf("unexpected maturities %+v", queue.Entries)
	}
}

func TestPendingAndClone(t *testing.T) {
	queue := &CooldownQueue{Available: 3}
	_ = queue.Enqueue(10, 4)
	_ = queue.Enqueue(20, 5)

	pending, err := queue.Pending()
	if err != nil || pending != 9 {
		t.Fatalf("expected 9 pending, got %d (%v)", pending, err)
	}
	clone := queue.Clone()
	clone.Entries[0].Maturity = 99
	if queue.Entries[0].Maturity != 10 {
		t.Fatalf("clone shares backing array with original")
	}
	if next, ok := queue.NextMaturity(); !ok || next != 10 {
		t.Fatalf("expected next maturity 10, got %d (%v)", next, ok)
	}
	if err := queue.Enqueue(30, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected zero amount rejected, got %v", err)
	}
}
