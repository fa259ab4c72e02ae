package nnet

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestDatasetBatches(t *testing.T) {
	labels := []int32{0, 1, 2, 3, 4}
	inputs := []float64{0, 0, 1, 1, 2, 2, 3, 3, 4, 4}
	d, err := NewDataset(NewData(5, []int{2}, labels, inputs), 2, 0, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if d.Batches != 3 || d.BatchSize != 2 {
		t.Fatal("got", d.Batches, "batches of", d.BatchSize)
	}
	x, y := d.GetBatch(0)
	if !reflect.DeepEqual(y, []int32{0, 1}) {
		t.Error("batch 0 labels got", y)
	}
	if got := x.RawRowView(1); !reflect.DeepEqual(got, []float64{1, 1}) {
		t.Error("batch 0 row 1 got", got)
	}
	// final batch is short
	x, y = d.GetBatch(2)
	if !reflect.DeepEqual(y, []int32{4}) {
		t.Error("batch 2 labels got", y)
	}
	if r, _ := x.Dims(); r != 1 {
		t.Error("batch 2 rows got", r)
	}
}

func TestDatasetShuffle(t *testing.T) {
	n := 20
	labels := make([]int32, n)
	inputs := make([]float64, n)
	for i := range labels {
		labels[i] = int32(i)
		inputs[i] = float64(i)
	}
	d, err := NewDataset(NewData(n, []int{1}, labels, inputs), 5, 0, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatal(err)
	}
	d.Shuffle()
	seen := map[int32]bool{}
	for batch := 0; batch < d.Batches; batch++ {
		x, y := d.GetBatch(batch)
		for i, label := range y {
			if seen[label] {
				t.Error("label", label, "repeated after shuffle")
			}
			seen[label] = true
			if x.At(i, 0) != float64(label) {
				t.Error("input and label out of sync:", x.At(i, 0), label)
			}
		}
	}
	if len(seen) != n {
		t.Error("got", len(seen), "samples expect", n)
	}
}

func TestEmptyDataset(t *testing.T) {
	empty := NewData(2, []int{3}, nil, nil)
	if _, err := NewDataset(empty, 10, 0, rand.New(rand.NewSource(1))); err == nil {
		t.Error("expect error for dataset with no samples")
	}
}

func TestDataFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	saved := DataDir
	DataDir = dir
	defer func() { DataDir = saved }()

	data := NewData(2, []int{3}, []int32{0, 1}, []float64{1, 2, 3, 4, 5, 6})
	if err := SaveDataFile(data, "check_train"); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadData("check")
	if err != nil {
		t.Fatal(err)
	}
	got, ok := loaded["train"]
	if !ok {
		t.Fatal("train set missing")
	}
	if got.Len() != 2 || !reflect.DeepEqual(got.Shape(), []int{3}) {
		t.Error("got len", got.Len(), "shape", got.Shape())
	}
	buf := make([]float64, 3)
	got.Input([]int{1}, buf)
	if !reflect.DeepEqual(buf, []float64{4, 5, 6}) {
		t.Error("input got", buf)
	}
}
