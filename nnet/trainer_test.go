package nnet

import (
	"math/rand"
	"testing"

	"github.com/pwilczewski/deepsupervisedhash/hash"
)

// two gaussian clusters which a linear code can separate
func clusterData(rng *rand.Rand, n int) Data {
	labels := make([]int32, n)
	inputs := make([]float64, n*4)
	for i := 0; i < n; i++ {
		centre := -1.0
		if i%2 == 1 {
			labels[i] = 1
			centre = 1.0
		}
		for j := 0; j < 4; j++ {
			inputs[i*4+j] = centre + 0.1*rng.NormFloat64()
		}
	}
	return NewData(2, []int{4}, labels, inputs)
}

func hashConfig() Config {
	return Config{
		Eta:           0.02,
		Margin:        8,
		HashBits:      4,
		NormalWeights: true,
		FlattenInput:  true,
		Shuffle:       true,
		TrainBatch:    10,
		TestBatch:     10,
		MaxEpoch:      10,
		LogEvery:      5,
		RandSeed:      42,
	}.AddLayers(
		Linear{Nout: 4},
		HashOut{},
	)
}

func TestTrainEpoch(t *testing.T) {
	conf := hashConfig()
	rng := NewRng(conf.RandSeed)
	dset, err := NewDataset(clusterData(rng, 40), conf.TrainBatch, 0, rng)
	if err != nil {
		t.Fatal(err)
	}
	net, err := New(conf, dset.BatchSize, dset.Shape())
	if err != nil {
		t.Fatal(err)
	}
	net.InitWeights(rng)
	first, err := TrainEpoch(net, dset)
	if err != nil {
		t.Fatal(err)
	}
	loss := first
	for epoch := 2; epoch <= conf.MaxEpoch; epoch++ {
		if loss, err = TrainEpoch(net, dset); err != nil {
			t.Fatal(err)
		}
	}
	t.Logf("loss %.4f -> %.4f", first, loss)
	if loss >= first {
		t.Errorf("loss did not decrease: first %.4f last %.4f", first, loss)
	}
}

func TestTrainAndEvaluate(t *testing.T) {
	conf := hashConfig()
	rng := NewRng(conf.RandSeed)
	train := clusterData(rng, 40)
	test := clusterData(rng, 20)
	dset, err := NewDataset(train, conf.TrainBatch, 0, rng)
	if err != nil {
		t.Fatal(err)
	}
	net, err := New(conf, dset.BatchSize, dset.Shape())
	if err != nil {
		t.Fatal(err)
	}
	net.InitWeights(rng)
	tester, err := NewTestLogger(conf, map[string]Data{"train": train, "test": test}, rng)
	if err != nil {
		t.Fatal(err)
	}
	if err := Train(net, dset, tester); err != nil {
		t.Fatal(err)
	}

	testSet, err := NewDataset(test, conf.TestBatch, 0, rng)
	if err != nil {
		t.Fatal(err)
	}
	codes, labels, err := net.Encode(testSet)
	if err != nil {
		t.Fatal(err)
	}
	if r, c := codes.Dims(); r != 20 || c != 4 {
		t.Fatalf("codes are %dx%d expect 20x4", r, c)
	}
	report, err := hash.EvaluateClasses(Binarize(codes), labels, ClassLabels(test))
	if err != nil {
		t.Fatal(err)
	}
	d, ok := report.Distance(0, 1)
	if !ok {
		t.Fatal("no distance between the two classes")
	}
	if d < 0 || d > 4 {
		t.Error("distance", d, "outside [0,4]")
	}
	t.Log("\n" + report.String())
}

func TestInvalidMarginConfig(t *testing.T) {
	conf := hashConfig()
	conf.Margin = -1
	if _, err := New(conf, 10, []int{4}); err == nil {
		t.Error("expect error for negative margin")
	}
}

func TestStatsHeaders(t *testing.T) {
	data := map[string]Data{"train": nil, "test": nil, "valid": nil}
	h := StatsHeaders(data)
	expect := []string{"loss", "train loss", "test loss", "valid loss", "valid avg"}
	if len(h) != len(expect) {
		t.Fatal("got", h)
	}
	for i := range h {
		if h[i] != expect[i] {
			t.Error("got", h, "expect", expect)
		}
	}
}
