package core

// Snapshot captures the persisted state of a transaction before a mutation is
// applied. It must be taken from the stored row, not from client input, and
// carries exactly what the reconciliation rules need.
type Snapshot struct {
	Signed    Money
	Completed bool
}

// SnapshotOf captures the reconciliation-relevant state of a stored
// transaction.
func SnapshotOf(t Transaction) Snapshot {
	return Snapshot{Signed: t.SignedAmount(), Completed: t.IsCompleted}
}

// CreateDelta returns the balance change caused by creating t. Only completed
// transactions count toward the balance.
func CreateDelta(t Transaction) Money {
	if !t.IsCompleted {
		return Money{}
	}
	return t.SignedAmount()
}

// UpdateDelta returns the balance change caused by updating a transaction
// from the state in old to the state in updated.
//
// The four completion transitions:
//
//	incomplete -> completed: +new signed amount
//	completed -> incomplete: -old signed amount
//	completed -> completed:  new signed amount - old signed amount
//	incomplete -> incomplete: no change
//
// A nil old snapshot means the prior state was not captured; ok is false and
// the caller must fall back to a full recompute of the balance.
func UpdateDelta(old *Snapshot, updated Transaction) (delta Money, ok bool) {
	if old == nil {
		return Money{}, false
	}
	newSigned := updated.SignedAmount()
	switch {
	case !old.Completed && updated.IsCompleted:
		return newSigned, true
	case old.Completed && !updated.IsCompleted:
		return old.Signed.Neg(), true
	case old.Completed && updated.IsCompleted:
		return newSigned.Sub(old.Signed), true
	default:
		return Money{}, true
	}
}

// DeleteDelta returns the balance change caused by deleting t, using the
// stored values at the time of deletion.
func DeleteDelta(t Transaction) Money {
	if !t.IsCompleted {
		return Money{}
	}
	return t.SignedAmount().Neg()
}

// RecomputeBalance is the convergence fallback: the balance a user must have
// given the full set of their transactions. Used when no incremental snapshot
// is available, and by the recompute-only strategy.
func RecomputeBalance(transactions []Transaction) Money {
	var sum Money
	for _, t := range transactions {
		if t.IsCompleted {
			sum = sum.Add(t.SignedAmount())
		}
	}
	return sum
}
