package nnet

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/pwilczewski/deepsupervisedhash/stats"
	"gonum.org/v1/gonum/mat"
)

const emaEpochs = 10

// Training statistics for one epoch
type Stats struct {
	Epoch     int
	Values    []float64
	BestSince int
	Elapsed   time.Duration
}

func StatsHeaders(d map[string]Data) []string {
	h := []string{"loss"}
	for _, key := range DataTypes {
		if _, ok := d[key]; ok {
			h = append(h, key+" loss")
			if key == "valid" {
				h = append(h, "valid avg")
			}
		}
	}
	return h
}

func (s Stats) Format() []string {
	str := make([]string, len(s.Values))
	for i, v := range s.Values {
		str[i] = fmt.Sprintf("%8.4f", v)
	}
	return str
}

// Tester interface to evaluate the performance after each epoch, Test method returns true if training should stop.
type Tester interface {
	Test(net *Network, epoch int, loss float64, start time.Time) (bool, error)
}

// Tester which evaluates the loss for each of the data sets and updates the stats.
type TestBase struct {
	Net       *Network
	Data      map[string]*Dataset
	Stats     []Stats
	Headers   []string
	Samples   int
	EpochTime stats.Average
}

// Create a new base class which implements the Tester interface.
func NewTestBase() *TestBase {
	return &TestBase{Stats: []Stats{}}
}

// Initialise the test datasets and the evaluation network.
func (t *TestBase) Init(conf Config, data map[string]Data, rng *rand.Rand) (*TestBase, error) {
	t.Data = make(map[string]*Dataset)
	t.Headers = StatsHeaders(data)
	t.Samples = minSamples(conf.MaxSamples, data["train"].Len())
	if conf.DebugLevel >= 1 {
		fmt.Printf("init tester: samples=%d batch size=%d\n", t.Samples, conf.TestBatch)
	}
	for key, d := range data {
		if conf.DebugLevel >= 1 {
			fmt.Println("dataset =>", key)
		}
		dset, err := NewDataset(d, conf.TestBatch, t.Samples, rng)
		if err != nil {
			return nil, err
		}
		t.Data[key] = dset
	}
	var err error
	t.Net, err = New(conf, t.Data["train"].BatchSize, data["train"].Shape())
	return t, err
}

// Reset stats prior to new run
func (t *TestBase) Reset() {
	t.Stats = t.Stats[:0]
	t.EpochTime = stats.Average{}
}

// Test performance of the network, called from the Train function on completion of each epoch.
func (t *TestBase) Test(net *Network, epoch int, loss float64, start time.Time) (bool, error) {
	net.CopyTo(t.Net)
	if net.DebugLevel >= 1 {
		fmt.Printf("== TEST EPOCH %d ==\n", epoch)
	}
	s := Stats{Epoch: epoch, Values: []float64{loss}, BestSince: -1}
	for _, key := range DataTypes {
		if dset, ok := t.Data[key]; ok {
			if dset.Samples < dset.Len() {
				dset.Shuffle()
			}
			lossVal, err := t.Net.Loss(dset)
			if err != nil {
				return false, err
			}
			s.Values = append(s.Values, lossVal)
			if key == "valid" {
				// smoothed validation loss drives early stopping
				avgIdx := len(s.Values)
				avgVal := 0.0
				if epoch > 1 {
					avgVal = t.Stats[epoch-2].Values[avgIdx]
				}
				avgVal = stats.EMA(avgVal).Add(lossVal, emaEpochs)
				s.Values = append(s.Values, avgVal)
				for ep := epoch - 1; ep >= 1; ep-- {
					prevLoss := t.Stats[ep-1].Values[avgIdx]
					if prevLoss > avgVal {
						s.BestSince = epoch - ep - 1
						break
					}
				}
			}
		}
	}
	s.Elapsed = time.Since(start)
	prev := time.Duration(0)
	if len(t.Stats) > 0 {
		prev = t.Stats[len(t.Stats)-1].Elapsed
	}
	t.EpochTime.Add((s.Elapsed - prev).Seconds())
	t.Stats = append(t.Stats, s)
	done := epoch >= net.MaxEpoch || loss <= net.MinLoss ||
		(net.StopAfter > 0 && s.BestSince >= net.StopAfter)
	return done, nil
}

type testLogger struct {
	*TestBase
}

// Create a new tester which logs stats to stdout.
func NewTestLogger(conf Config, data map[string]Data, rng *rand.Rand) (Tester, error) {
	base, err := NewTestBase().Init(conf, data, rng)
	return testLogger{TestBase: base}, err
}

func (t testLogger) Test(net *Network, epoch int, loss float64, start time.Time) (bool, error) {
	done, err := t.TestBase.Test(net, epoch, loss, start)
	if err != nil {
		return false, err
	}
	s := t.Stats[len(t.Stats)-1]
	if done || net.LogEvery == 0 || epoch%net.LogEvery == 0 {
		msg := fmt.Sprintf("epoch %3d:", epoch)
		for i, val := range s.Format() {
			msg += fmt.Sprintf("  %s =%s", t.Headers[i], val)
		}
		if s.BestSince >= 0 {
			msg += fmt.Sprintf(" [%d]", s.BestSince)
		}
		fmt.Println(msg)
	}
	if done {
		fmt.Printf("run time: %s  mean epoch: %.2fs\n", s.Elapsed.Round(10*time.Millisecond), t.EpochTime.Mean)
	}
	return done, nil
}

// Train the network on the given training set by updating the weights
func Train(net *Network, dset *Dataset, test Tester) error {
	done := false
	start := time.Now()
	for epoch := 1; epoch <= net.MaxEpoch && !done; epoch++ {
		loss, err := TrainEpoch(net, dset)
		if err != nil {
			return err
		}
		if done, err = test.Test(net, epoch, loss, start); err != nil {
			return err
		}
	}
	return nil
}

// Perform one training epoch on dataset, returns the mean loss prior to updating the weights.
func TrainEpoch(net *Network, dset *Dataset) (float64, error) {
	if net.Shuffle {
		dset.Shuffle()
	}
	out := net.OutLayer()
	weightDecay := net.Eta * net.Lambda / float64(dset.Samples)
	var grad *mat.Dense
	total := 0.0
	for batch := 0; batch < dset.Batches; batch++ {
		if net.DebugLevel >= 2 || (net.DebugLevel == 1 && batch == 0) {
			fmt.Printf("== train batch %d ==\n", batch)
		}
		x, y := dset.GetBatch(batch)
		yPred := net.Fprop(x)
		losses, err := out.Loss(y, yPred)
		if err != nil {
			return 0, err
		}
		for _, l := range losses {
			total += l
		}
		// get gradient at the output
		nb, bits := yPred.Dims()
		grad = ensureDense(grad, nb, bits)
		if err = out.LossGrad(y, yPred, grad); err != nil {
			return 0, err
		}
		if net.DebugLevel >= 2 {
			fmt.Printf("loss: %v\ninput grad:\n%v\n", losses, mat.Formatted(grad))
		}
		// back propagate gradient
		g := grad
		for i := len(net.Layers) - 1; i >= 0; i-- {
			g = net.Layers[i].Bprop(g)
		}
		// update weights
		for _, layer := range net.Layers {
			if l, ok := layer.(ParamLayer); ok {
				l.UpdateParams(net.Eta, weightDecay)
			}
		}
	}
	return total / float64(dset.Samples), nil
}

func minSamples(a, b int) int {
	if a == 0 {
		return b
	}
	if a < b {
		return a
	}
	return b
}
