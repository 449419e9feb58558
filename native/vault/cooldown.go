package vault

// CooldownEntry is a pending withdrawal that becomes available at Maturity.
type CooldownEntry struct {
	Maturity uint64
	Amount   uint64
}

// CooldownQueue holds a user's matured balance and the FIFO of withdrawals
// still cooling down. Entries are only ever removed from the head.
type CooldownQueue struct {
	Available uint64
	Entries   []CooldownEntry
}

// Clone returns a deep copy of the queue.
func (q *CooldownQueue) Clone() *CooldownQueue {
	if q == nil {
		return &CooldownQueue{}
	}
	clone := &CooldownQueue{Available: q.Available}
	if len(q.Entries) > 0 {
		clone.Entries = append([]CooldownEntry(nil), q.Entries...)
	}
	return clone
}

// Enqueue appends a pending withdrawal to the tail.
func (q *CooldownQueue) Enqueue(maturity, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	q.Entries = append(q.Entries, CooldownEntry{Maturity: maturity, Amount: amount})
	return nil
}

// Settle moves matured head entries into Available and returns the new
// available balance. It stops at the first immature head even if later
// entries have matured; the work per call is bounded by the matured prefix.
func (q *CooldownQueue) Settle(now uint64) (uint64, error) {
	available := q.Available
	n := 0
	for n < len(q.Entries) && q.Entries[n].Maturity <= now {
		next, err := addU64(available, q.Entries[n].Amount)
		if err != nil {
			return q.Available, err
		}
		available = next
		n++
	}
	if n == 0 {
		return available, nil
	}
	q.Available = available
	if n == len(q.Entries) {
		q.Entries = nil
	} else {
		q.Entries = q.Entries[n:]
	}
	return available, nil
}

// Withdraw debits amount from the matured balance. Settle must run first.
func (q *CooldownQueue) Withdraw(amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if amount > q.Available {
		return ErrAssetsUnavailable
	}
	q.Available -= amount
	return nil
}

// RefreshCooldowns pulls every pending maturity forward to now+cooldown when
// that is earlier. Existing commitments are never extended.
func (q *CooldownQueue) RefreshCooldowns(now, cooldown uint64) (int, error) {
	maturity, err := addU64(now, cooldown)
	if err != nil {
		return 0, err
	}
	changed := 0
	for i := range q.Entries {
		if maturity < q.Entries[i].Maturity {
			q.Entries[i].Maturity = maturity
			changed++
		}
	}
	return changed, nil
}

// Pending returns the sum of amounts still cooling down.
func (q *CooldownQueue) Pending() (uint64, error) {
	var total uint64
	for _, entry := range q.Entries {
		next, err := addU64(total, entry.Amount)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}

// NextMaturity returns the maturity of the head entry, or false when the
// queue is empty.
func (q *CooldownQueue) NextMaturity() (uint64, bool) {
	if len(q.Entries) == 0 {
		return 0, false
	}
	return q.Entries[0].Maturity, true
}
