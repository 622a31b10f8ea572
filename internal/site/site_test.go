package site_test

import (
	"log/slog"
	"testing"

	"repcrec/internal/site"
)

func newSite(id int) *site.Site {
	return site.New(id, slog.New(slog.DiscardHandler))
}

func TestInitialValuesSeeded(t *testing.T) {
	s := newSite(2) // holds every even variable plus x1..x19 odd home-site matches? no: site 2 is home for odd i where 1+(i%10)==2 => i%10==1 => x1, x11
	v, ok := s.LastCommittedValue("x4", 0)
	if !ok || v != 40 {
		t.Fatalf("x4 = %d, %v; want 40, true", v, ok)
	}
	v, ok = s.LastCommittedValue("x1", 0)
	if !ok || v != 10 {
		t.Fatalf("x1 = %d, %v; want 10, true", v, ok)
	}
}

func TestNonReplicatedVariableNotOnOtherSites(t *testing.T) {
	s := newSite(3)
	if s.Holds("x1") {
		t.Fatal("site 3 should not hold x1 (home site is 2)")
	}
}

func TestRecoverMasksReplicatedVariableUntilNextCommit(t *testing.T) {
	s := newSite(5)
	s.Fail(1)
	s.Recover(2)

	if s.Readable("x4", 2) {
		t.Fatal("recovered replica should be unreadable at recovery time")
	}
	if s.Readable("x4", 100) {
		t.Fatal("recovered replica should stay unreadable until a real commit")
	}

	s.Write("x4", 44, 3)
	v, ok := s.LastCommittedValue("x4", 3)
	if !ok || v != 44 {
		t.Fatalf("post-recovery commit not visible: %d, %v", v, ok)
	}
}

func TestRecoverDoesNotMaskNonReplicatedVariable(t *testing.T) {
	s := newSite(2) // home site of x1
	s.Fail(1)
	s.Recover(2)
	if !s.Readable("x1", 2) {
		t.Fatal("non-replicated variable should be immediately readable after recovery")
	}
}

func TestWasUpContinuously(t *testing.T) {
	s := newSite(1)
	s.Fail(5)
	s.Recover(10)

	if !s.WasUpContinuously(0, 5) {
		t.Error("interval ending exactly at failure should count as continuous")
	}
	if s.WasUpContinuously(4, 6) {
		t.Error("interval overlapping the downtime should not be continuous")
	}
	if !s.WasUpContinuously(10, 20) {
		t.Error("interval starting exactly at recovery should count as continuous")
	}
}

func TestWasUpContinuouslyOpenDowntime(t *testing.T) {
	s := newSite(1)
	s.Fail(5)
	if s.WasUpContinuously(0, 100) {
		t.Error("currently-down site has an open-ended downtime interval")
	}
	if !s.WasUpContinuously(0, 5) {
		t.Error("interval strictly before the failure should still be continuous")
	}
}

func TestDumpFallsBackToInitialValueWhenUnreadable(t *testing.T) {
	s := newSite(1)
	s.Fail(1)
	s.Recover(2)

	found := false
	for _, vv := range s.Dump(2) {
		if vv.Name == "x4" {
			found = true
			if vv.Value != 40 {
				t.Errorf("x4 dump = %d, want fallback to initial value 40", vv.Value)
			}
		}
	}
	if !found {
		t.Fatal("x4 missing from dump")
	}
}
