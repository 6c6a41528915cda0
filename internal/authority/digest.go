package authority

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is the hex BLAKE3 hash of a serialized owner array. Tick records and
// final snapshots carry it so replays can verify state without the full grid.
func Digest(n int, cells []uint8) string {
	h := blake3.New()
	_, _ = h.Write([]byte{byte(n)})
	_, _ = h.Write(cells)
	return hex.EncodeToString(h.Sum(nil))
}
