// Package xid mints the business identifiers used across the shop's records:
// ledger rows (TXN), sales (SALE), transfers (TR), goods receipts (PN), work
// orders (WO) and the catalog entities.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns "PREFIX-<unixnano>-<8 random hex bytes>". The timestamp keeps
// IDs roughly sortable by creation time; the random tail keeps IDs minted in
// the same nanosecond distinct. If the random source fails the tail is
// dropped rather than failing the caller.
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
