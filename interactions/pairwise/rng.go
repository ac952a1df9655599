package pairwise

import "math"

// pairNoise produces a zero-mean unit-variance random number that is
// identical for a pair no matter which side evaluates it: the hash is
// seeded by the ordered particle ids and the step, so the two ranks
// sharing a halo pair agree bit-for-bit.
func pairNoise(id1, id2 int32, step int64) float64 {
	lo, hi := id1, id2
	if lo > hi {
		lo, hi = hi, lo
	}
	x := uint64(uint32(lo)) | uint64(uint32(hi))<<32
	x ^= uint64(step) * 0x9e3779b97f4a7c15
	x = splitmix64(x)
	// uniform in [-sqrt(3), sqrt(3)) has unit variance
	u := float64(x>>11) / float64(1<<53)
	return (2*u - 1) * math.Sqrt(3)
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
