package device

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/opd-ai/rgbdstream/wire"
)

// GUIDFromSerial derives a stable device GUID from a hardware serial number.
// Equal serials always give equal GUIDs.
func GUIDFromSerial(serial string) string {
	sum := blake2b.Sum256([]byte(serial))
	return hex.EncodeToString(sum[:wire.GUIDLength/2])
}

// NewGUID returns a random device GUID.
func NewGUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
