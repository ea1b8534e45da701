package wire

import "higgsd/internal/format"

// Envelope types and the current codec version, carried in the 4-byte
// format.Header that prefixes every snapshot uploaded to blob storage.
// This lets a future decoder reject a payload written by an incompatible
// version before attempting to parse it, the same discipline
// internal/format already applies to on-disk chunk metadata.
const (
	TypeRegionSnapshot = 'r'
	RegionSnapshotVersion = 1

	// FlagCompressed marks a snapshot payload as zstd-compressed.
	FlagCompressed byte = 1 << 0
)

// EnvelopeHeader returns the header prefixed to an encoded region before
// it is written to blob storage.
func EnvelopeHeader(compressed bool) format.Header {
	var flags byte
	if compressed {
		flags = FlagCompressed
	}
	return format.Header{Type: TypeRegionSnapshot, Version: RegionSnapshotVersion, Flags: flags}
}
