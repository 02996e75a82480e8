// Package placement implements the FlipHash minimal-disruption
// consistent-hash placement algorithm.
//
// FlipHash maps a key string and a positive bucket count n to an index
// in [0, n) such that growing n to n+1 reassigns only a small fraction
// of keys, and every reassigned key moves to the new slot n. The
// algorithm is pure and deterministic: it holds no state and performs
// no I/O.
package placement

import (
	"encoding/binary"
	"math/bits"

	"github.com/cespare/xxhash/v2"
)

// seed packs two 16-bit values into the 32-bit hash seed used by H, per
// seed(a, b) = (a & 0xFFFF) | ((b & 0xFFFF) << 16).
func seed(a, b uint32) uint32 {
	return (a & 0xFFFF) | ((b & 0xFFFF) << 16)
}

// H is the seeded 64-bit hash family FlipHash is built on. xxhash does
// not expose a seed parameter directly, so the seed is folded into the
// digest as an 8-byte prefix ahead of the key bytes; this gives every
// distinct seed an independent hash of the key, which is the only
// property FlipHash requires of H.
func H(s uint32, key string) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[:4], s)
	d := xxhash.New()
	_, _ = d.Write(buf[:])
	_, _ = d.Write([]byte(key))
	return d.Sum64()
}

// FlipHashPow2 assigns key to a range of size 2^r.
func FlipHashPow2(key string, r uint) uint64 {
	if r == 0 {
		return 0
	}
	mask := uint64(1)<<r - 1
	a := H(seed(0, 0), key) & mask

	var b uint
	if a > 1 {
		b = uint(bits.Len64(a)) - 1
	}

	var c uint64
	if b > 0 {
		c = H(seed(uint32(b), 0), key) & (uint64(1)<<b - 1)
	}

	// c flips only the bits below a's highest set bit, so the result
	// stays in [2^b, 2^(b+1)) and therefore below 2^r.
	return a ^ c
}

// FlipHashGeneral assigns key to [0, n) for arbitrary n >= 1. Calling it
// with n == 0 is a programming error; callers must never pass zero
// (see §7 of the design: the dispatcher short-circuits on an empty
// pool snapshot before placement is ever invoked).
func FlipHashGeneral(key string, n uint64) uint64 {
	if n == 1 {
		return 0
	}

	r := ceilLog2(n)
	d := FlipHashPow2(key, r)
	if d < n {
		return d
	}

	mask := uint64(1)<<r - 1
	half := uint64(1) << (r - 1)
	for i := uint32(0); i < 64; i++ {
		e := H(seed(uint32(r-1), i), key) & mask
		if e < half {
			return FlipHashPow2(key, r-1)
		}
		if e < n {
			return e
		}
	}

	return FlipHashPow2(key, r-1)
}

// ceilLog2 returns the smallest r such that 2^r >= n, for n >= 1.
func ceilLog2(n uint64) uint {
	if n <= 1 {
		return 0
	}
	return uint(bits.Len64(n - 1))
}
