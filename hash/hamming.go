package hash

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Report holds the per class representative codes and the table of pairwise
// Hamming distances between them. It is a pure function of the evaluation
// inputs: re-running Evaluate on the same data yields an identical report.
type Report struct {
	Bits   int
	Labels []int32
	reps   map[int32][]float64
	dist   map[[2]int32]int
	counts map[int32]int
}

// Evaluate groups the binarized codes by label, computes the element-wise
// median code per class and the Hamming distance between every pair of class
// representatives. The class set is taken from the labels themselves; use
// EvaluateClasses when the expected classes are known up front.
func Evaluate(binarized *mat.Dense, labels []int32) (*Report, error) {
	return EvaluateClasses(binarized, labels, nil)
}

// EvaluateClasses is Evaluate with an explicit class set. A class with no
// samples yields an undefined median and fails with ErrEmptyClass, never a
// default vector. Every entry of binarized must be exactly 0 or 1.
//
// Medians over an even sized binary group can land exactly on 0.5: ties
// round half up, so a position is set when at least half the group sets it.
func EvaluateClasses(binarized *mat.Dense, labels []int32, classes []int32) (*Report, error) {
	n, nbits := binarized.Dims()
	if len(labels) != n {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d labels for %d codes", len(labels), n)
	}
	if n == 0 {
		return nil, errors.Wrap(ErrEmptyClass, "no samples")
	}
	groups := make(map[int32][]int)
	for _, class := range classes {
		groups[class] = nil
	}
	for i, label := range labels {
		groups[label] = append(groups[label], i)
	}
	r := &Report{
		Bits:   nbits,
		reps:   make(map[int32][]float64),
		dist:   make(map[[2]int32]int),
		counts: make(map[int32]int),
	}
	for label, rows := range groups {
		if len(rows) == 0 {
			return nil, errors.Wrapf(ErrEmptyClass, "label %d", label)
		}
		rep, err := medianCode(binarized, rows)
		if err != nil {
			return nil, errors.Wrapf(err, "label %d", label)
		}
		r.reps[label] = rep
		r.counts[label] = len(rows)
		r.Labels = append(r.Labels, label)
	}
	sort.Slice(r.Labels, func(i, j int) bool { return r.Labels[i] < r.Labels[j] })
	for i, a := range r.Labels {
		for _, b := range r.Labels[i+1:] {
			r.dist[pairKey(a, b)] = hammingDist(r.reps[a], r.reps[b])
		}
	}
	return r, nil
}

// Representative returns the median code for a class.
func (r *Report) Representative(label int32) ([]float64, bool) {
	rep, ok := r.reps[label]
	return rep, ok
}

// Distance returns the Hamming distance between the representatives of two
// distinct classes.
func (r *Report) Distance(a, b int32) (int, bool) {
	if a == b {
		return 0, false
	}
	d, ok := r.dist[pairKey(a, b)]
	return d, ok
}

// Closest returns the pair of classes whose representatives are nearest.
func (r *Report) Closest() (a, b int32, dist int) {
	return r.extreme(func(d, best int) bool { return d < best })
}

// Farthest returns the pair of classes whose representatives are most apart.
func (r *Report) Farthest() (a, b int32, dist int) {
	return r.extreme(func(d, best int) bool { return d > best })
}

func (r *Report) extreme(better func(d, best int) bool) (int32, int32, int) {
	first := true
	var ba, bb int32
	var best int
	for i, a := range r.Labels {
		for _, b := range r.Labels[i+1:] {
			d := r.dist[pairKey(a, b)]
			if first || better(d, best) {
				ba, bb, best = a, b, d
				first = false
			}
		}
	}
	return ba, bb, best
}

// String renders the human readable summary: per class codes followed by the
// distance table and the closest and farthest pairs.
func (r *Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "== Hash codes (%d bits) ==\n", r.Bits)
	for _, label := range r.Labels {
		fmt.Fprintf(&sb, "%2d: %s  (%d samples)\n", label, codeString(r.reps[label]), r.counts[label])
	}
	sb.WriteString("== Hamming distances ==\n")
	for i, a := range r.Labels {
		for _, b := range r.Labels[i+1:] {
			fmt.Fprintf(&sb, "(%d,%d)=%-3d ", a, b, r.dist[pairKey(a, b)])
		}
		if i < len(r.Labels)-1 {
			sb.WriteByte('\n')
		}
	}
	if len(r.Labels) > 1 {
		a, b, d := r.Closest()
		fmt.Fprintf(&sb, "\nclosest pair: (%d,%d), distance=%d", a, b, d)
		a, b, d = r.Farthest()
		fmt.Fprintf(&sb, "\nfarthest pair: (%d,%d), distance=%d", a, b, d)
	}
	return sb.String()
}

// medianCode is the element-wise median over the given rows. Inputs are
// checked to be strictly 0 or 1, so the median at each position reduces to
// comparing the count of ones against half the group size.
func medianCode(binarized *mat.Dense, rows []int) ([]float64, error) {
	_, nbits := binarized.Dims()
	ones := make([]int, nbits)
	for _, row := range rows {
		for k := 0; k < nbits; k++ {
			switch v := binarized.At(row, k); v {
			case 0:
			case 1:
				ones[k]++
			default:
				return nil, errors.Wrapf(ErrNonBinaryInput, "value %g at row %d bit %d", v, row, k)
			}
		}
	}
	rep := make([]float64, nbits)
	for k, count := range ones {
		// 2*count >= len(rows) is median >= 0.5, rounded half up
		if 2*count >= len(rows) {
			rep[k] = 1
		}
	}
	return rep, nil
}

func hammingDist(a, b []float64) int {
	d := 0
	for i := range a {
		if a[i] != b[i] {
			d++
		}
	}
	return d
}

func pairKey(a, b int32) [2]int32 {
	if a > b {
		a, b = b, a
	}
	return [2]int32{a, b}
}

func codeString(code []float64) string {
	var sb strings.Builder
	for _, v := range code {
		if v == 1 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
