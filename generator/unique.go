package generator

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"shopload/loaderr"
)

// KeySet tracks accepted keys.
type KeySet[K comparable] interface {
	Has(k K) bool
	Add(k K)
	Len() int
}

// MapSet is a KeySet backed by a map.
type MapSet[K comparable] map[K]struct{}

func (s MapSet[K]) Has(k K) bool {
	_, ok := s[k]
	return ok
}

func (s MapSet[K]) Add(k K)  { s[k] = struct{}{} }
func (s MapSet[K]) Len() int { return len(s) }

// Pair is a (user, product) style key over two positive 32-bit ids.
type Pair struct {
	A, B uint32
}

// PairSet is a KeySet of Pairs packed into a 64-bit roaring bitmap.
type PairSet struct {
	bm *roaring64.Bitmap
}

func NewPairSet() *PairSet {
	return &PairSet{bm: roaring64.New()}
}

func (p Pair) pack() uint64 { return uint64(p.A)<<32 | uint64(p.B) }

func (s *PairSet) Has(p Pair) bool { return s.bm.Contains(p.pack()) }
func (s *PairSet) Add(p Pair)      { s.bm.Add(p.pack()) }
func (s *PairSet) Len() int        { return int(s.bm.GetCardinality()) }

// DefaultMaxAttempts is the attempt budget used when none is given.
func DefaultMaxAttempts(n int) int { return 2 * n }

// Result is the outcome of SampleUnique.
type Result[R any] struct {
	Records   []R
	Requested int
	Attempts  int
}

// Shortfall is how many records are missing from the target.
func (r Result[R]) Shortfall() int { return r.Requested - len(r.Records) }

// Exhausted reports whether the attempt budget ran out before the target.
func (r Result[R]) Exhausted() bool { return r.Shortfall() > 0 }

// Err returns a GenerationExhausted error naming what when the result is short.
func (r Result[R]) Err(what string) error {
	if !r.Exhausted() {
		return nil
	}
	return loaderr.GenerationExhausted(what, len(r.Records), r.Requested, r.Attempts)
}

// SampleUnique draws candidates until n distinct keys are accepted or
// maxAttempts draws have been made. Duplicates are redrawn. Accepted records
// keep draw order. maxAttempts <= 0 means DefaultMaxAttempts(n).
func SampleUnique[K comparable, R any](n, maxAttempts int, seen KeySet[K], draw func() (K, R)) Result[R] {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts(n)
	}
	res := Result[R]{Requested: n, Records: make([]R, 0, min(n, 1<<16))}
	for len(res.Records) < n && res.Attempts < maxAttempts {
		res.Attempts++
		k, rec := draw()
		if seen.Has(k) {
			continue
		}
		seen.Add(k)
		res.Records = append(res.Records, rec)
	}
	return res
}

// CheckDomain returns a GenerationExhausted error when fewer than n distinct
// keys exist, which makes exhaustion certain.
func CheckDomain(what string, n int, cardinality uint64) error {
	if n < 0 || uint64(n) <= cardinality {
		return nil
	}
	return &loaderr.Error{
		Kind: loaderr.KindGenerationExhausted,
		Op:   what,
		Err:  fmt.Errorf("requested %d unique keys but the domain has only %d", n, cardinality),
	}
}
