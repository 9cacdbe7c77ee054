package farm

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
)

// stateDigest is a canonical hash of everything that feeds simulation
// behavior: two farms with equal digests step identically.
func (f *Farm) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, uint64(f.cfg.Seed))
	h.Write([]byte(f.weather))
	digestWriteF64(h, &tmp, f.growthRate)
	h.Write([]byte{boolByte(f.protectionActive)})

	for _, c := range f.sortedPlotCoords() {
		p := f.plots[c]
		digestWriteI64(h, &tmp, int64(c.X))
		digestWriteI64(h, &tmp, int64(c.Y))
		h.Write([]byte{byte(p.State)})
		h.Write([]byte(p.Crop))
		digestWriteF64(h, &tmp, p.GrowthSeconds)
		digestWriteU64(h, &tmp, uint64(p.Stage))
		h.Write([]byte{
			boolByte(p.Watered),
			boolByte(p.Nourished),
			boolByte(p.Infected),
			boolByte(p.Protected),
		})
		digestWriteF64(h, &tmp, p.NourishMult)
	}

	for _, fr := range f.sortedFarmers() {
		h.Write([]byte(fr.ID))
		h.Write([]byte(fr.Name))
		writeItemMap(h, &tmp, fr.Inventory)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Digest exposes the current canonical state hash for tests and the admin
// surface.
func (f *Farm) Digest() string { return f.stateDigest(f.tick.Load()) }

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func writeItemMap(h hashWriter, tmp *[8]byte, m map[string]int) {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v == 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		digestWriteI64(h, tmp, int64(m[k]))
	}
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
