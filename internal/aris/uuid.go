package aris

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/crypto/blake2b"
)

// GenerateUUID synthesizes a robot's network-wide identity string. The first
// group is the robot ID, the version and variant groups are fixed, the fourth
// group is process-random, and the tail is the current microsecond timestamp
// truncated to 48 bits. Uniqueness is probabilistic: two robots started with
// the same ID in the same microsecond would collide, which is accepted rather
// than defended against.
func GenerateUUID(robotID uint32) string {
	random := rand.IntN(16)*4096 + rand.IntN(16)*256 + rand.IntN(16)*16 + rand.IntN(16)
	micros := uint64(time.Now().UnixMicro()) & 0xFFFFFFFFFFFF
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x", robotID, 0x1000, 0x4000, random, micros)
}

// DeriveRobotID hashes a robot name into a stable 32-bit ID for deployments
// that configure names but not numeric IDs.
func DeriveRobotID(name string) uint32 {
	sum := blake2b.Sum256([]byte(name))
	return binary.BigEndian.Uint32(sum[:4])
}
