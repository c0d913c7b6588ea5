package aris

import (
	"testing"

	"impulse/internal/wire"
)

func TestRegistry_UpsertLastWriteWins(t *testing.T) {
	r := NewRegistry()
	uuid := "00000007-1000-4000-8000-000000000001"

	if !r.Upsert(wire.AgentMessage{UUID: uuid, RobotName: "Old", CapabilityIndex: 30}) {
		t.Error("first upsert not reported as new")
	}
	if r.Upsert(wire.AgentMessage{UUID: uuid, RobotName: "New", CapabilityIndex: 80}) {
		t.Error("second upsert reported as new")
	}

	got, ok := r.Get(uuid)
	if !ok {
		t.Fatal("peer missing after upsert")
	}
	if got.RobotName != "New" || got.CapabilityIndex != 80 {
		t.Errorf("stale record survived: %+v", got)
	}
	if r.Len() != 1 {
		t.Errorf("registry holds %d entries, want 1", r.Len())
	}
}

func TestRegistry_SnapshotOrderedAndDetached(t *testing.T) {
	r := NewRegistry()
	r.Upsert(wire.AgentMessage{UUID: "bbbb", RobotName: "B"})
	r.Upsert(wire.AgentMessage{UUID: "aaaa", RobotName: "A"})

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot holds %d entries, want 2", len(snap))
	}
	if snap[0].UUID != "aaaa" || snap[1].UUID != "bbbb" {
		t.Errorf("snapshot not ordered by uuid: %s, %s", snap[0].UUID, snap[1].UUID)
	}

	snap[0].RobotName = "mutated"
	if got, _ := r.Get("aaaa"); got.RobotName != "A" {
		t.Error("mutating a snapshot leaked into the registry")
	}
}

func TestRegistry_GetMissing(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("nope"); ok {
		t.Error("missing uuid reported present")
	}
}
