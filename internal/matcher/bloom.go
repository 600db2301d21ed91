package matcher

import (
	"hash/fnv"
	"math"
)

// BloomFilter provides fast negative lookups: if a keyword is absent, no
// further check is needed. internal/fusion uses it as a pre-filter in front
// of its exact indicative-vocabulary lookup; the keyword matcher's
// Aho-Corasick scan does not use it.
type BloomFilter struct {
	bits []uint64
	k    int
	m    int
}

// NewBloomFilter creates a filter sized for expectedElements at fpRate false
// positive rate (e.g. 0.01 = 1%).
func NewBloomFilter(expectedElements int, fpRate float64) *BloomFilter {
	if expectedElements <= 0 {
		expectedElements = 1
	}
	m := optimalM(expectedElements, fpRate)
	k := optimalK(m, expectedElements)
	bits := make([]uint64, (m+63)/64)
	return &BloomFilter{bits: bits, k: k, m: m}
}

func optimalM(n int, p float64) int {
	return int(math.Ceil(-float64(n) * math.Log(p) / (math.Log(2) * math.Log(2))))
}

func optimalK(m, n int) int {
	k := int(math.Ceil(float64(m) / float64(n) * math.Log(2)))
	if k < 1 {
		k = 1
	}
	if k > 10 {
		k = 10
	}
	return k
}

// Add inserts a keyword's bytes into the filter.
func (bf *BloomFilter) Add(data []byte) {
	for i := 0; i < bf.k; i++ {
		idx := bf.hash(data, i)
		bf.bits[idx/64] |= 1 << (idx % 64)
	}
}

// MayContain reports whether data possibly matches a previously Added
// keyword (false positives possible, no false negatives).
func (bf *BloomFilter) MayContain(data []byte) bool {
	for i := 0; i < bf.k; i++ {
		idx := bf.hash(data, i)
		if (bf.bits[idx/64] & (1 << (idx % 64))) == 0 {
			return false
		}
	}
	return true
}

func (bf *BloomFilter) hash(data []byte, seed int) int {
	h := fnv.New64a()
	h.Write(data)
	if seed > 0 {
		h.Write([]byte{byte(seed)})
	}
	return int(h.Sum64() % uint64(bf.m))
}
