package hash

import (
	"reflect"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func TestEvaluateSingletons(t *testing.T) {
	codes := mat.NewDense(2, 3, []float64{
		1, 1, 0,
		0, 1, 0,
	})
	r, err := Evaluate(codes, []int32{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	repA, _ := r.Representative(0)
	if !reflect.DeepEqual(repA, []float64{1, 1, 0}) {
		t.Error("rep 0 got", repA)
	}
	repB, _ := r.Representative(1)
	if !reflect.DeepEqual(repB, []float64{0, 1, 0}) {
		t.Error("rep 1 got", repB)
	}
	if d, ok := r.Distance(0, 1); !ok || d != 1 {
		t.Error("got distance", d, ok, "expect 1")
	}
}

func TestEvaluateMedian(t *testing.T) {
	// class 0: odd group, strict majority; class 1: even group with a 0.5
	// tie at bit 0, which rounds up
	codes := mat.NewDense(5, 2, []float64{
		1, 0,
		1, 0,
		0, 1,
		0, 1,
		1, 1,
	})
	labels := []int32{0, 0, 0, 1, 1}
	r, err := Evaluate(codes, labels)
	if err != nil {
		t.Fatal(err)
	}
	rep0, _ := r.Representative(0)
	if !reflect.DeepEqual(rep0, []float64{1, 0}) {
		t.Error("rep 0 got", rep0, "expect [1 0]")
	}
	rep1, _ := r.Representative(1)
	if !reflect.DeepEqual(rep1, []float64{1, 1}) {
		t.Error("rep 1 got", rep1, "expect [1 1] with the tie rounded up")
	}
}

func TestEvaluateSymmetryAndRange(t *testing.T) {
	codes := mat.NewDense(6, 4, []float64{
		1, 0, 1, 0,
		1, 0, 1, 1,
		0, 1, 0, 0,
		0, 1, 1, 0,
		1, 1, 1, 1,
		0, 0, 0, 0,
	})
	labels := []int32{0, 0, 1, 1, 2, 2}
	r, err := Evaluate(codes, labels)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range r.Labels {
		for _, b := range r.Labels {
			if a == b {
				if _, ok := r.Distance(a, a); ok {
					t.Error("distance to self should not be defined")
				}
				continue
			}
			dab, ok1 := r.Distance(a, b)
			dba, ok2 := r.Distance(b, a)
			if !ok1 || !ok2 || dab != dba {
				t.Error("asymmetric distance", a, b, dab, dba)
			}
			if dab < 0 || dab > r.Bits {
				t.Error("distance", dab, "out of range [0,", r.Bits, "]")
			}
		}
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	codes := mat.NewDense(4, 3, []float64{
		1, 0, 1,
		1, 1, 1,
		0, 0, 1,
		0, 1, 0,
	})
	labels := []int32{2, 2, 5, 5}
	r1, err := Evaluate(codes, labels)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := Evaluate(codes, labels)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(r1.reps, r2.reps) || !reflect.DeepEqual(r1.dist, r2.dist) {
		t.Error("evaluation is not deterministic")
	}
}

func TestEvaluateClosestFarthest(t *testing.T) {
	codes := mat.NewDense(3, 4, []float64{
		0, 0, 0, 0,
		0, 0, 0, 1,
		1, 1, 1, 1,
	})
	r, err := Evaluate(codes, []int32{0, 1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if a, b, d := r.Closest(); a != 0 || b != 1 || d != 1 {
		t.Error("closest got", a, b, d)
	}
	if a, b, d := r.Farthest(); a != 0 || b != 2 || d != 4 {
		t.Error("farthest got", a, b, d)
	}
	s := r.String()
	if !strings.Contains(s, "closest pair: (0,1), distance=1") {
		t.Error("report missing closest pair:\n" + s)
	}
	if !strings.Contains(s, "farthest pair: (0,2), distance=4") {
		t.Error("report missing farthest pair:\n" + s)
	}
}

func TestEvaluateErrors(t *testing.T) {
	codes := mat.NewDense(2, 2, []float64{0, 1, 1, 0})
	if _, err := Evaluate(codes, []int32{0}); !errors.Is(err, ErrShapeMismatch) {
		t.Error("got", err, "expect ErrShapeMismatch")
	}
	if _, err := Evaluate(mat.NewDense(1, 2, []float64{0.5, 1}), []int32{0}); !errors.Is(err, ErrNonBinaryInput) {
		t.Error("got", err, "expect ErrNonBinaryInput")
	}
	if _, err := Evaluate(mat.NewDense(1, 2, []float64{0, -1}), []int32{0}); !errors.Is(err, ErrNonBinaryInput) {
		t.Error("got", err, "expect ErrNonBinaryInput")
	}
}

func TestEvaluateEmptyClass(t *testing.T) {
	codes := mat.NewDense(2, 2, []float64{0, 1, 1, 0})
	// class 2 is expected but has no samples
	_, err := EvaluateClasses(codes, []int32{0, 1}, []int32{0, 1, 2})
	if !errors.Is(err, ErrEmptyClass) {
		t.Error("got", err, "expect ErrEmptyClass")
	}
}
