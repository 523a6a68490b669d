package chain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// stateDigest hashes the height and every committed key/value pair in key
// order. Caller holds c.mu.
func (c *Chain) stateDigest(height uint64) string {
	h := sha256.New()
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], height)
	h.Write(tmp[:])
	h.Write([]byte(c.cfg.ChainID))

	_ = c.store.Iterate(nil, func(k, v []byte) error {
		binary.LittleEndian.PutUint64(tmp[:], uint64(len(k)))
		h.Write(tmp[:])
		h.Write(k)
		binary.LittleEndian.PutUint64(tmp[:], uint64(len(v)))
		h.Write(tmp[:])
		h.Write(v)
		return nil
	})
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Chain) StateDigest() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateDigest(c.height.Load())
}
