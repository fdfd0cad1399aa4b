package memtable

import (
	"testing"

	"github.com/howenyap/kv/internal/dbformat"
)

func TestLookupThreeValued(t *testing.T) {
	m := New()

	if status, _ := m.Lookup("a"); status != Absent {
		t.Fatalf("Lookup(a) on empty memtable = %v, want Absent", status)
	}

	m.Put("a", 7)
	if status, value := m.Lookup("a"); status != Found || value != 7 {
		t.Fatalf("Lookup(a) after Put = %v, %d, want Found, 7", status, value)
	}

	m.Delete("a")
	if status, _ := m.Lookup("a"); status != Tombstoned {
		t.Fatalf("Lookup(a) after Delete = %v, want Tombstoned", status)
	}

	if status, _ := m.Lookup("never-seen"); status != Absent {
		t.Fatalf("Lookup(never-seen) = %v, want Absent", status)
	}
}

func TestPutOverwritesDelete(t *testing.T) {
	m := New()
	m.Delete("a")
	m.Put("a", 3)
	if status, value := m.Lookup("a"); status != Found || value != 3 {
		t.Fatalf("Lookup(a) after Delete then Put = %v, %d, want Found, 3", status, value)
	}
}

func TestSizeCountsDistinctKeys(t *testing.T) {
	m := New()
	m.Put("a", 1)
	m.Put("b", 2)
	m.Put("a", 3)
	if m.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", m.Size())
	}
}

func TestDrainSortedOrdersAndEmpties(t *testing.T) {
	m := New()
	m.Put("c", 3)
	m.Put("a", 1)
	m.Delete("b")

	out := m.DrainSorted()
	if len(out) != 3 {
		t.Fatalf("DrainSorted() returned %d entries, want 3", len(out))
	}
	wantKeys := []string{"a", "b", "c"}
	for i, k := range wantKeys {
		if out[i].Key != k {
			t.Errorf("DrainSorted()[%d].Key = %q, want %q", i, out[i].Key, k)
		}
	}

	if m.Size() != 0 {
		t.Fatalf("Size() after DrainSorted() = %d, want 0", m.Size())
	}
	if status, _ := m.Lookup("a"); status != Absent {
		t.Fatal("memtable should be empty after DrainSorted()")
	}
}

func TestInstallFromReplay(t *testing.T) {
	m := New()
	m.Install(dbformat.NewPut("a", 5))
	if status, value := m.Lookup("a"); status != Found || value != 5 {
		t.Fatalf("Lookup(a) after Install = %v, %d, want Found, 5", status, value)
	}
}
