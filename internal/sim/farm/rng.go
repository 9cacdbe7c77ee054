package farm

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
)

// seededPCG derives the farm's PRNG source from the configured seed. The PCG
// state is exported into snapshots so resumed farms continue the same stream.
func seededPCG(seed int64) *rand.PCG {
	// Non-cryptographic PRNG is intentional for deterministic simulation behavior.
	// #nosec G404
	return rand.NewPCG(seedWord(seed, "a"), seedWord(seed, "b"))
}

func seedWord(seed int64, salt string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fmt.Sprintf("%d:%s", seed, salt)))
	return h.Sum64()
}
