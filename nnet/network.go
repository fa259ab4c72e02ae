// Package nnet contains routines for constructing, training and testing
// neural networks which map input samples to hash codes.
package nnet

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pwilczewski/deepsupervisedhash/hash"
	"gonum.org/v1/gonum/mat"
)

// Network type represents a multilayer neural network model.
type Network struct {
	Config
	Layers  []Layer
	inShape []int
}

// New function creates a new network from the config layers. The batch size
// fixes the buffer allocation, smaller final batches are handled. An invalid
// margin on the output layer is rejected here rather than mid-training.
func New(conf Config, batchSize int, inShape []int) (*Network, error) {
	n := &Network{Config: conf}
	if conf.FlattenInput {
		n.inShape = []int{prod(inShape)}
	} else {
		n.inShape = append([]int{}, inShape...)
	}
	shape := n.inShape
	for _, l := range conf.Layers {
		layer := l.Unmarshal()
		layer.Init(shape, batchSize)
		n.Layers = append(n.Layers, layer)
		shape = layer.OutShape(shape)
	}
	if len(n.Layers) == 0 {
		return nil, errors.New("nnet: no layers configured")
	}
	out, ok := n.Layers[len(n.Layers)-1].(OutputLayer)
	if !ok {
		return nil, errors.Errorf("nnet: last layer %s is not an output layer", n.Layers[len(n.Layers)-1].ToString())
	}
	if hl, isHash := out.(*hashOut); isHash {
		if conf.Margin > 0 {
			hl.loss.Margin = conf.Margin
		}
		if _, err := hash.NewPairwiseLoss(hl.loss.Margin); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Initialise network weights using a linear or normal distribution.
// Weights for each layer are scaled by 1/sqrt(nin)
func (n *Network) InitWeights(rng *rand.Rand) {
	shape := n.inShape
	for _, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			nin := prod(shape)
			scale := 1 / math.Sqrt(float64(nin))
			l.InitParams(scale, n.NormalWeights, rng)
		}
		shape = layer.OutShape(shape)
	}
}

// Copy weights and bias arrays to destination net
func (n *Network) CopyTo(net *Network) {
	for i, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			W, B := l.Params()
			net.Layers[i].(ParamLayer).SetParams(W, B)
		}
	}
}

// Accessor for output layer
func (n *Network) OutLayer() OutputLayer {
	return n.Layers[len(n.Layers)-1].(OutputLayer)
}

// Feed forward the input to get the predicted hash codes
func (n *Network) Fprop(input *mat.Dense) *mat.Dense {
	pred := input
	for i, layer := range n.Layers {
		if n.DebugLevel >= 2 && pred != nil {
			fmt.Printf("layer %d input\n%v\n", i, mat.Formatted(pred))
		}
		pred = layer.Fprop(pred)
	}
	return pred
}

// Calculate the mean per-sample loss over the given data set.
func (n *Network) Loss(dset *Dataset) (float64, error) {
	out := n.OutLayer()
	total := 0.0
	for batch := 0; batch < dset.Batches; batch++ {
		x, y := dset.GetBatch(batch)
		yPred := n.Fprop(x)
		losses, err := out.Loss(y, yPred)
		if err != nil {
			return 0, err
		}
		for _, l := range losses {
			total += l
		}
		if n.DebugLevel >= 2 || (n.DebugLevel >= 1 && batch == 0) {
			fmt.Printf("batch %d losses = %v\n", batch, losses)
		}
	}
	return total / float64(dset.Samples), nil
}

// Encode runs the network over the whole data set and returns the real
// valued hash codes with the matching labels, in dataset order.
func (n *Network) Encode(dset *Dataset) (*mat.Dense, []int32, error) {
	var codes *mat.Dense
	labels := make([]int32, 0, dset.Samples)
	row := 0
	for batch := 0; batch < dset.Batches; batch++ {
		x, y := dset.GetBatch(batch)
		yPred := n.Fprop(x)
		nb, bits := yPred.Dims()
		if codes == nil {
			codes = mat.NewDense(dset.Samples, bits, nil)
		}
		for i := 0; i < nb; i++ {
			copy(codes.RawRowView(row), yPred.RawRowView(i))
			row++
		}
		labels = append(labels, y...)
	}
	if codes == nil {
		return nil, nil, errors.Wrap(hash.ErrShapeMismatch, "empty dataset")
	}
	return codes, labels, nil
}

// Binarize thresholds real valued codes at zero into a {0,1} matrix ready
// for hash.Evaluate.
func Binarize(codes *mat.Dense) *mat.Dense {
	r, c := codes.Dims()
	bin := mat.NewDense(r, c, nil)
	bin.Apply(func(i, j int, v float64) float64 {
		if v > 0 {
			return 1
		}
		return 0
	}, codes)
	return bin
}

// Print network description
func (n *Network) String() string {
	s := make([]string, len(n.Layers))
	shape := n.inShape
	for i, layer := range n.Layers {
		s[i] = fmt.Sprintf("%2d: %-25s %v", i, layer.ToString(), shape)
		shape = layer.OutShape(shape)
	}
	return fmt.Sprintf("%s\n== Layers ==\n%s", n.Config, strings.Join(s, "\n"))
}

// NewRng returns a seeded random source. A seed <= 0 picks one from the
// clock so runs differ; the seed used is always logged.
func NewRng(seed int64) *rand.Rand {
	if seed <= 0 {
		seed = time.Now().UTC().UnixNano()
	}
	fmt.Println("random seed =", seed)
	return rand.New(rand.NewSource(seed))
}

// Exit in case of error
func CheckErr(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
