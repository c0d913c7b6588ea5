package peerstore

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"impulse/internal/wire"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "peers.db")
	s, err := New(dbPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleAgent(uuid, name string, capability int32) wire.AgentMessage {
	return wire.AgentMessage{
		Timestamp:       1708444800000,
		PublicKey:       "ed25519_public_key_placeholder",
		UUID:            uuid,
		CapabilityIndex: capability,
		Medium:          wire.MediumWiFi5GHz,
		Protocol:        wire.ProtocolZenoh,
		IPv6Addresses:   []string{"fd00:dead:beef::1"},
		RobotID:         7,
		RobotName:       name,
	}
}

func TestStore_UpsertAndAll(t *testing.T) {
	s := testStore(t)

	agent := sampleAgent("11111111-1000-4000-8000-000000000001", "Tractor-Alpha", 95)
	if err := s.Upsert(agent); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	records, err := s.All()
	if err != nil {
		t.Fatalf("all failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	r := records[0]
	if r.Agent.UUID != agent.UUID {
		t.Errorf("UUID: got %s, want %s", r.Agent.UUID, agent.UUID)
	}
	if r.Agent.RobotName != "Tractor-Alpha" {
		t.Errorf("RobotName: got %s", r.Agent.RobotName)
	}
	if r.PacketCount != 1 {
		t.Errorf("PacketCount: got %d, want 1", r.PacketCount)
	}
	if r.FirstSeen.IsZero() || r.LastSeen.IsZero() {
		t.Error("seen timestamps not set")
	}
}

func TestStore_UpsertLastWriteWins(t *testing.T) {
	s := testStore(t)
	uuid := "11111111-1000-4000-8000-000000000001"

	if err := s.Upsert(sampleAgent(uuid, "Old-Name", 30)); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if err := s.Upsert(sampleAgent(uuid, "New-Name", 80)); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	record, found, err := s.Get(uuid)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !found {
		t.Fatal("record not found")
	}
	if record.Agent.RobotName != "New-Name" {
		t.Errorf("RobotName: got %s, want New-Name", record.Agent.RobotName)
	}
	if record.Agent.CapabilityIndex != 80 {
		t.Errorf("CapabilityIndex: got %d, want 80", record.Agent.CapabilityIndex)
	}
	if record.PacketCount != 2 {
		t.Errorf("PacketCount: got %d, want 2", record.PacketCount)
	}
	if !record.FirstSeen.Before(record.LastSeen) && !record.FirstSeen.Equal(record.LastSeen) {
		t.Error("FirstSeen is after LastSeen")
	}

	records, err := s.All()
	if err != nil {
		t.Fatalf("all failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after double upsert, got %d", len(records))
	}
}

func TestStore_UpsertRejectsMissingUUID(t *testing.T) {
	s := testStore(t)
	if err := s.Upsert(wire.AgentMessage{RobotName: "anon"}); err == nil {
		t.Error("record without UUID accepted")
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := testStore(t)
	_, found, err := s.Get("00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if found {
		t.Error("missing record reported as found")
	}
}
