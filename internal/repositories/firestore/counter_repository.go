package firestore

import (
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const countersCollection = "counters"

// counterDocument holds the last allocated value for one numbering scope. The
// document ID is the scope itself, e.g. "RW2501-" or "SAL-RW2501-".
type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// counterAllocation is a pending sequence allocation. It is produced during
// the read phase of a transaction and committed during the write phase, so
// composite workflows can interleave other reads in between.
type counterAllocation struct {
	ref    *firestore.DocumentRef
	next   int64
	exists bool
}

// readCounterTx reads the scope counter and computes the next sequence value.
// Must be called before any write on the transaction.
func readCounterTx(tx *firestore.Transaction, ref *firestore.DocumentRef) (counterAllocation, error) {
	snapshot, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return counterAllocation{ref: ref, next: 1}, nil
		}
		return counterAllocation{}, err
	}

	var doc counterDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return counterAllocation{}, fmt.Errorf("decode counter %s: %w", ref.ID, err)
	}
	return counterAllocation{ref: ref, next: doc.CurrentValue + 1, exists: true}, nil
}

// commitTx persists the allocation. Contention on the same scope aborts the
// enclosing transaction, which the client retries; aborted allocations are
// simply recomputed, so values consumed by failed attempts are never reused
// out of order.
func (a counterAllocation) commitTx(tx *firestore.Transaction, now time.Time) error {
	doc := counterDocument{CurrentValue: a.next, UpdatedAt: now.UTC()}
	if a.exists {
		return tx.Set(a.ref, doc)
	}
	return tx.Create(a.ref, doc)
}
