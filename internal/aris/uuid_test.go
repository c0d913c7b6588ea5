package aris

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-1000-4000-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestGenerateUUID_Format(t *testing.T) {
	uuid := GenerateUUID(0x2A)
	if !uuidPattern.MatchString(uuid) {
		t.Fatalf("uuid %q does not match the expected layout", uuid)
	}
	if !strings.HasPrefix(uuid, fmt.Sprintf("%08x-", 0x2A)) {
		t.Errorf("uuid %q does not embed the robot id", uuid)
	}
	if len(uuid) != 36 {
		t.Errorf("uuid length %d, want 36", len(uuid))
	}
}

func TestGenerateUUID_DistinctAcrossCalls(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		uuid := GenerateUUID(1)
		if seen[uuid] {
			t.Fatalf("duplicate uuid %q", uuid)
		}
		seen[uuid] = true
		// The microsecond tail is the main uniqueness source; space the
		// calls out so each lands in a distinct microsecond.
		time.Sleep(time.Millisecond)
	}
}

func TestDeriveRobotID(t *testing.T) {
	a := DeriveRobotID("Tractor-Alpha")
	if a == 0 {
		t.Error("derived id is zero")
	}
	if a != DeriveRobotID("Tractor-Alpha") {
		t.Error("derivation is not deterministic")
	}
	if a == DeriveRobotID("Tractor-Beta") {
		t.Error("distinct names collided")
	}
}
