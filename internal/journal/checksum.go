package journal

// ============================================================================
// Checksum Calculation
// Responsibility: compute and verify a CRC32 checksum over an event's
// identifying fields, detecting truncated or corrupted journal lines.
// ============================================================================

import (
	"fmt"
	"hash/crc32"
)

// calculateChecksum checksums the fields that identify an event,
// excluding Timestamp (irrelevant to identity) and Checksum itself.
func calculateChecksum(e Event) uint32 {
	data := fmt.Sprintf("%s|%s|%s|%d|%d", e.Type, e.Job, e.Handler, e.Attempt, e.Seq)
	return crc32.ChecksumIEEE([]byte(data))
}

// verifyChecksum reports whether e's stored checksum matches its
// recomputed one.
func verifyChecksum(e Event) bool {
	return e.Checksum == calculateChecksum(e)
}
