package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/biomass"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/cohort"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/organ"
)

func TestSnapshotRoundTrip(t *testing.T) {
	live := biomass.Biomass{StructuralWt: 4, StorageWt: 1, StructuralN: 0.1, StorageN: 0.05}
	snap := SnapshotV1{
		Header: Header{Version: Version, RunID: "run-1", Day: 42, Digest: "abc"},
		Tuning: []byte(`{"days":120}`),
		Leaf: organ.LeafState{
			Leaves: []cohort.Leaf{{Age: 3, Area: 0.05, Live: live}},
			Live:   live,
		},
		Organs: []organ.PoolState{{Name: "stem", Live: live, SenescenceRate: 0.01}},
	}
	path := filepath.Join(t.TempDir(), "snaps", Name(42))
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(snap, got); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h != snap.Header {
		t.Fatalf("header: got %+v want %+v", h, snap.Header)
	}
}

func TestReadSnapshotRejectsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), Name(1))
	if err := WriteSnapshot(path, SnapshotV1{Header: Header{Version: 99}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestName(t *testing.T) {
	if got := Name(7); got != "day-000007.snap.zst" {
		t.Fatalf("name: %s", got)
	}
}
