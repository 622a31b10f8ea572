package txn_test

import (
	"testing"

	"repcrec/internal/txn"
)

func TestAbortIsIdempotent(t *testing.T) {
	tx := txn.New("T1", 0)
	tx.AddRead("x1")
	tx.AddWrite("x2", 22)

	tx.Abort(5)
	if tx.Status != txn.Aborted {
		t.Fatalf("status = %v, want Aborted", tx.Status)
	}
	if len(tx.ReadSet) != 0 || len(tx.WriteSet) != 0 {
		t.Fatalf("abort did not clear buffered state")
	}

	tx.Abort(9) // second abort: no-op
	if *tx.EndTime != 5 {
		t.Fatalf("end time changed on repeat abort: got %d, want 5", *tx.EndTime)
	}
}

func TestCommitAfterAbortIsNoOp(t *testing.T) {
	tx := txn.New("T1", 0)
	tx.Abort(3)
	tx.Commit(7)
	if tx.Status != txn.Aborted {
		t.Fatalf("commit resurrected an aborted transaction: status = %v", tx.Status)
	}
}

func TestConflictPredicates(t *testing.T) {
	t1 := txn.New("T1", 0)
	t1.AddRead("x1")
	t1.AddWrite("x2", 1)

	t2 := txn.New("T2", 1)
	t2.AddWrite("x1", 2)
	t2.AddRead("x2")

	if !t1.RWConflict(t2) {
		t.Error("expected rw conflict: t1 read x1 which t2 wrote")
	}
	if !t1.WRConflict(t2) {
		t.Error("expected wr conflict: t1 wrote x2 which t2 read")
	}

	t3 := txn.New("T3", 2)
	t3.AddWrite("x2", 3)
	if !t1.WWConflict(t3) {
		t.Error("expected ww conflict: both t1 and t3 write x2")
	}
	if t1.WWConflict(t2) {
		t.Error("t1 and t2 share no written variable")
	}
}
