package nnet

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"github.com/pwilczewski/deepsupervisedhash/hash"
	"gonum.org/v1/gonum/mat"
)

// Layer interface type represents one layer of the neural net. Batches are
// dense matrices with one sample per row; shape describes a single sample,
// images as [depth, height, width].
type Layer interface {
	Init(inShape []int, batchSize int) Layer
	OutShape(inShape []int) []int
	Fprop(in *mat.Dense) *mat.Dense
	Bprop(grad *mat.Dense) *mat.Dense
	ToString() string
}

// ParamLayer is a layer with weight and bias parameters
type ParamLayer interface {
	Layer
	InitParams(scale float64, normal bool, rng *rand.Rand)
	Params() (W, B *mat.Dense)
	SetParams(W, B *mat.Dense)
	UpdateParams(learningRate, weightDecay float64)
}

// OutputLayer is the final layer in the stack: it scores a batch of
// predictions against the labels and seeds the backward pass.
type OutputLayer interface {
	Layer
	Loss(labels []int32, yPred *mat.Dense) ([]float64, error)
	LossGrad(labels []int32, yPred, grad *mat.Dense) error
}

// Layer configuration details
type LayerConfig struct {
	Type string
	Data json.RawMessage
}

type ConfigLayer interface {
	Marshal() LayerConfig
}

// Unmarshal JSON data and construct new layer
func (l LayerConfig) Unmarshal() Layer {
	switch l.Type {
	case "conv":
		cfg := new(Conv)
		return cfg.unmarshal(l.Data)
	case "maxPool":
		cfg := new(MaxPool)
		return cfg.unmarshal(l.Data)
	case "linear":
		cfg := new(Linear)
		return cfg.unmarshal(l.Data)
	case "activation":
		cfg := new(Activation)
		return cfg.unmarshal(l.Data)
	case "hashOut":
		cfg := new(HashOut)
		return cfg.unmarshal(l.Data)
	case "flatten":
		return &flatten{}
	default:
		panic("invalid layer type: " + l.Type)
	}
}

func (l LayerConfig) String() string {
	return l.Unmarshal().ToString()
}

// Convolutional layer, implements ParamLayer interface.
type Conv struct {
	Nfeats, Size, Stride, Pad int
}

func (c Conv) Marshal() LayerConfig {
	if c.Stride == 0 {
		c.Stride = 1
	}
	return LayerConfig{Type: "conv", Data: marshal(c)}
}

func (c Conv) ToString() string {
	return fmt.Sprintf("conv %+v", c)
}

func (c *Conv) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &conv{Conv: *c}
}

// Max pooling layer, should follow conv layer.
type MaxPool struct {
	Size, Stride int
}

func (c MaxPool) Marshal() LayerConfig {
	if c.Stride == 0 {
		c.Stride = c.Size
	}
	return LayerConfig{Type: "maxPool", Data: marshal(c)}
}

func (c MaxPool) ToString() string {
	return fmt.Sprintf("maxPool %+v", c)
}

func (c *MaxPool) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &maxPool{MaxPool: *c}
}

// Linear fully connected layer, implements ParamLayer interface.
type Linear struct {
	Nout int
}

func (c Linear) Marshal() LayerConfig {
	return LayerConfig{Type: "linear", Data: marshal(c)}
}

func (c Linear) ToString() string {
	return fmt.Sprintf("linear %+v", c)
}

func (c *Linear) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &linear{Linear: *c}
}

// Sigmoid, tanh or relu activation layer.
type Activation struct {
	Atype string
}

func (c Activation) Marshal() LayerConfig {
	return LayerConfig{Type: "activation", Data: marshal(c)}
}

func (c Activation) ToString() string {
	return fmt.Sprintf("activation %+v", c)
}

func (c *Activation) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	layer := &activation{Activation: *c}
	switch c.Atype {
	case "sigmoid":
		layer.activ = func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
		layer.deriv = func(x float64) float64 { s := 1 / (1 + math.Exp(-x)); return s * (1 - s) }
	case "tanh":
		layer.activ = math.Tanh
		layer.deriv = func(x float64) float64 { t := math.Tanh(x); return 1 - t*t }
	case "relu":
		layer.activ = func(x float64) float64 { return math.Max(x, 0) }
		layer.deriv = func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		}
	default:
		panic(fmt.Sprintf("activation type %s invalid", c.Atype))
	}
	return layer
}

// HashOut output layer: the identity over the hash code with the pairwise
// supervised loss attached.
type HashOut struct {
	Margin float64
}

func (c HashOut) Marshal() LayerConfig {
	return LayerConfig{Type: "hashOut", Data: marshal(c)}
}

func (c HashOut) ToString() string {
	return fmt.Sprintf("hashOut %+v", c)
}

func (c *HashOut) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &hashOut{HashOut: *c, loss: hash.PairwiseLoss{Margin: c.Margin}}
}

// Flatten layer reshapes image input to a feature vector.
type Flatten struct{}

func (c Flatten) Marshal() LayerConfig {
	return LayerConfig{Type: "flatten"}
}

// linear layer implementation
type linear struct {
	Linear
	paramBase
	src  *mat.Dense
	dst  *mat.Dense
	dsrc *mat.Dense
}

func (l *linear) OutShape(inShape []int) []int {
	return []int{l.Nout}
}

func (l *linear) Init(inShape []int, batchSize int) Layer {
	if len(inShape) != 1 {
		panic("Linear: expect flattened input")
	}
	nIn := inShape[0]
	l.paramBase = newParams([]int{nIn, l.Nout}, l.Nout, batchSize)
	l.dst = mat.NewDense(batchSize, l.Nout, nil)
	l.dsrc = mat.NewDense(batchSize, nIn, nil)
	return l
}

func (l *linear) Fprop(in *mat.Dense) *mat.Dense {
	l.src = in
	n, _ := in.Dims()
	l.dst = ensureDense(l.dst, n, l.Nout)
	l.dst.Mul(in, l.w)
	for i := 0; i < n; i++ {
		for j := 0; j < l.Nout; j++ {
			l.dst.Set(i, j, l.dst.At(i, j)+l.b.At(0, j))
		}
	}
	return l.dst
}

func (l *linear) Bprop(grad *mat.Dense) *mat.Dense {
	n, nin := rows(grad), rows(l.w)
	l.dw.Mul(l.src.T(), grad)
	for j := 0; j < l.Nout; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += grad.At(i, j)
		}
		l.db.Set(0, j, sum)
	}
	l.dsrc = ensureDense(l.dsrc, n, nin)
	l.dsrc.Mul(grad, l.w.T())
	return l.dsrc
}

// convolutional layer implementation using im2col and matrix multiply
type conv struct {
	Conv
	paramBase
	inShape []int
	outSize [2]int
	src     *mat.Dense
	dst     *mat.Dense
	dsrc    *mat.Dense
	cols    []*mat.Dense
}

func (l *conv) OutShape(inShape []int) []int {
	h := outDim(inShape[1], l.Size, l.stride(), l.Pad)
	w := outDim(inShape[2], l.Size, l.stride(), l.Pad)
	return []int{l.Nfeats, h, w}
}

func (l *conv) stride() int {
	if l.Stride == 0 {
		return 1
	}
	return l.Stride
}

func (l *conv) Init(inShape []int, batchSize int) Layer {
	if len(inShape) != 3 {
		panic("Conv: expect 3 dimensional input")
	}
	l.inShape = inShape
	out := l.OutShape(inShape)
	l.outSize = [2]int{out[1], out[2]}
	ksize := inShape[0] * l.Size * l.Size
	l.paramBase = newParams([]int{l.Nfeats, ksize}, l.Nfeats, batchSize)
	l.dst = mat.NewDense(batchSize, prod(out), nil)
	l.dsrc = mat.NewDense(batchSize, prod(inShape), nil)
	l.cols = make([]*mat.Dense, batchSize)
	for i := range l.cols {
		l.cols[i] = mat.NewDense(ksize, out[1]*out[2], nil)
	}
	return l
}

func (l *conv) Fprop(in *mat.Dense) *mat.Dense {
	l.src = in
	n, _ := in.Dims()
	oh, ow := l.outSize[0], l.outSize[1]
	l.dst = ensureDense(l.dst, n, l.Nfeats*oh*ow)
	var out mat.Dense
	for i := 0; i < n; i++ {
		im2col(in.RawRowView(i), l.inShape, l.Size, l.stride(), l.Pad, l.cols[i])
		out.Mul(l.w, l.cols[i])
		dst := l.dst.RawRowView(i)
		for f := 0; f < l.Nfeats; f++ {
			bias := l.b.At(0, f)
			for p := 0; p < oh*ow; p++ {
				dst[f*oh*ow+p] = out.At(f, p) + bias
			}
		}
	}
	return l.dst
}

func (l *conv) Bprop(grad *mat.Dense) *mat.Dense {
	n, _ := grad.Dims()
	oh, ow := l.outSize[0], l.outSize[1]
	l.dsrc = ensureDense(l.dsrc, n, prod(l.inShape))
	l.dw.Zero()
	l.db.Zero()
	l.dsrc.Zero()
	var dwPart, dcol mat.Dense
	for i := 0; i < n; i++ {
		dout := mat.NewDense(l.Nfeats, oh*ow, grad.RawRowView(i))
		dwPart.Mul(dout, l.cols[i].T())
		l.dw.Add(l.dw, &dwPart)
		for f := 0; f < l.Nfeats; f++ {
			sum := l.db.At(0, f)
			for p := 0; p < oh*ow; p++ {
				sum += dout.At(f, p)
			}
			l.db.Set(0, f, sum)
		}
		dcol.Mul(l.w.T(), dout)
		col2im(&dcol, l.inShape, l.Size, l.stride(), l.Pad, l.dsrc.RawRowView(i))
	}
	return l.dsrc
}

// max pooling layer implementation
type maxPool struct {
	MaxPool
	inShape []int
	outSize [2]int
	argmax  [][]int
	dst     *mat.Dense
	dsrc    *mat.Dense
}

func (l *maxPool) stride() int {
	if l.Stride == 0 {
		return l.Size
	}
	return l.Stride
}

func (l *maxPool) OutShape(inShape []int) []int {
	return []int{inShape[0], outDim(inShape[1], l.Size, l.stride(), 0), outDim(inShape[2], l.Size, l.stride(), 0)}
}

func (l *maxPool) Init(inShape []int, batchSize int) Layer {
	if len(inShape) != 3 {
		panic("MaxPool: expect 3 dimensional input")
	}
	l.inShape = inShape
	out := l.OutShape(inShape)
	l.outSize = [2]int{out[1], out[2]}
	l.dst = mat.NewDense(batchSize, prod(out), nil)
	l.dsrc = mat.NewDense(batchSize, prod(inShape), nil)
	l.argmax = make([][]int, batchSize)
	for i := range l.argmax {
		l.argmax[i] = make([]int, prod(out))
	}
	return l
}

func (l *maxPool) Fprop(in *mat.Dense) *mat.Dense {
	n, _ := in.Dims()
	l.dst = ensureDense(l.dst, n, l.inShape[0]*l.outSize[0]*l.outSize[1])
	d, h, w := l.inShape[0], l.inShape[1], l.inShape[2]
	oh, ow := l.outSize[0], l.outSize[1]
	stride := l.stride()
	for i := 0; i < n; i++ {
		src := in.RawRowView(i)
		dst := l.dst.RawRowView(i)
		arg := l.argmax[i]
		for c := 0; c < d; c++ {
			for oy := 0; oy < oh; oy++ {
				for ox := 0; ox < ow; ox++ {
					best, bestIx := math.Inf(-1), -1
					for ky := 0; ky < l.Size; ky++ {
						for kx := 0; kx < l.Size; kx++ {
							iy, ix := oy*stride+ky, ox*stride+kx
							if iy >= h || ix >= w {
								continue
							}
							ix2 := (c*h+iy)*w + ix
							if v := src[ix2]; v > best {
								best, bestIx = v, ix2
							}
						}
					}
					opos := (c*oh+oy)*ow + ox
					dst[opos] = best
					arg[opos] = bestIx
				}
			}
		}
	}
	return l.dst
}

func (l *maxPool) Bprop(grad *mat.Dense) *mat.Dense {
	n, _ := grad.Dims()
	l.dsrc = ensureDense(l.dsrc, n, prod(l.inShape))
	l.dsrc.Zero()
	for i := 0; i < n; i++ {
		g := grad.RawRowView(i)
		dsrc := l.dsrc.RawRowView(i)
		for opos, ipos := range l.argmax[i] {
			dsrc[ipos] += g[opos]
		}
	}
	return l.dsrc
}

// activation layers
type activation struct {
	Activation
	activ func(x float64) float64
	deriv func(x float64) float64
	src   *mat.Dense
	dst   *mat.Dense
	dsrc  *mat.Dense
}

func (l *activation) OutShape(inShape []int) []int { return inShape }

func (l *activation) Init(inShape []int, batchSize int) Layer {
	l.dst = mat.NewDense(batchSize, prod(inShape), nil)
	l.dsrc = mat.NewDense(batchSize, prod(inShape), nil)
	return l
}

func (l *activation) Fprop(in *mat.Dense) *mat.Dense {
	l.src = in
	n, cols := in.Dims()
	l.dst = ensureDense(l.dst, n, cols)
	l.dst.Apply(func(i, j int, v float64) float64 { return l.activ(v) }, in)
	return l.dst
}

func (l *activation) Bprop(grad *mat.Dense) *mat.Dense {
	n, cols := grad.Dims()
	l.dsrc = ensureDense(l.dsrc, n, cols)
	l.dsrc.Apply(func(i, j int, v float64) float64 { return v * l.deriv(l.src.At(i, j)) }, grad)
	return l.dsrc
}

// hash code output layer
type hashOut struct {
	HashOut
	loss hash.PairwiseLoss
	dst  *mat.Dense
}

func (l *hashOut) ToString() string { return fmt.Sprintf("hashOut %+v", l.HashOut) }

func (l *hashOut) OutShape(inShape []int) []int { return inShape }

func (l *hashOut) Init(inShape []int, batchSize int) Layer {
	if len(inShape) != 1 {
		panic("HashOut: expect flattened input")
	}
	return l
}

func (l *hashOut) Fprop(in *mat.Dense) *mat.Dense {
	l.dst = in
	return in
}

func (l *hashOut) Bprop(grad *mat.Dense) *mat.Dense {
	return grad
}

func (l *hashOut) Loss(labels []int32, yPred *mat.Dense) ([]float64, error) {
	return l.loss.Loss(labels, yPred)
}

func (l *hashOut) LossGrad(labels []int32, yPred, grad *mat.Dense) error {
	return l.loss.Grad(labels, yPred, grad)
}

type flatten struct{}

func (l *flatten) ToString() string { return "flatten" }

func (l *flatten) OutShape(inShape []int) []int {
	return []int{prod(inShape)}
}

func (l *flatten) Init(inShape []int, batchSize int) Layer {
	return l
}

// row major sample data is unchanged by flattening, only the shape differs
func (l *flatten) Fprop(in *mat.Dense) *mat.Dense {
	return in
}

func (l *flatten) Bprop(grad *mat.Dense) *mat.Dense {
	return grad
}

// weight and bias parameters with their gradients
type paramBase struct {
	w, b   *mat.Dense
	dw, db *mat.Dense
	nBatch float64
}

func newParams(wShape []int, nBias, nBatch int) paramBase {
	return paramBase{
		w:      mat.NewDense(wShape[0], wShape[1], nil),
		b:      mat.NewDense(1, nBias, nil),
		dw:     mat.NewDense(wShape[0], wShape[1], nil),
		db:     mat.NewDense(1, nBias, nil),
		nBatch: float64(nBatch),
	}
}

func (p paramBase) Params() (W, B *mat.Dense) {
	return p.w, p.b
}

func (p paramBase) SetParams(W, B *mat.Dense) {
	p.w.Copy(W)
	p.b.Copy(B)
}

func (p paramBase) InitParams(scale float64, normal bool, rng *rand.Rand) {
	data := p.w.RawMatrix().Data
	for i := range data {
		if normal {
			data[i] = rng.NormFloat64() * scale
		} else {
			data[i] = rng.Float64() * scale
		}
	}
	p.b.Zero()
}

func (p paramBase) UpdateParams(learningRate, weightDecay float64) {
	if weightDecay != 0 {
		var decay mat.Dense
		decay.Scale(weightDecay*p.nBatch, p.w)
		p.dw.Add(p.dw, &decay)
	}
	var stepW, stepB mat.Dense
	stepW.Scale(-learningRate/p.nBatch, p.dw)
	p.w.Add(p.w, &stepW)
	stepB.Scale(-learningRate/p.nBatch, p.db)
	p.b.Add(p.b, &stepB)
}

// im2col expands one sample into a matrix with a column per output position
// and a row per kernel element, zero padded at the borders.
func im2col(src []float64, inShape []int, size, stride, pad int, col *mat.Dense) {
	d, h, w := inShape[0], inShape[1], inShape[2]
	oh := outDim(h, size, stride, pad)
	ow := outDim(w, size, stride, pad)
	for c := 0; c < d; c++ {
		for ky := 0; ky < size; ky++ {
			for kx := 0; kx < size; kx++ {
				row := (c*size+ky)*size + kx
				for oy := 0; oy < oh; oy++ {
					for ox := 0; ox < ow; ox++ {
						iy, ix := oy*stride+ky-pad, ox*stride+kx-pad
						v := 0.0
						if iy >= 0 && iy < h && ix >= 0 && ix < w {
							v = src[(c*h+iy)*w+ix]
						}
						col.Set(row, oy*ow+ox, v)
					}
				}
			}
		}
	}
}

// col2im scatters column gradients back to the padded image positions,
// accumulating where kernel windows overlap.
func col2im(col *mat.Dense, inShape []int, size, stride, pad int, dst []float64) {
	d, h, w := inShape[0], inShape[1], inShape[2]
	oh := outDim(h, size, stride, pad)
	ow := outDim(w, size, stride, pad)
	for c := 0; c < d; c++ {
		for ky := 0; ky < size; ky++ {
			for kx := 0; kx < size; kx++ {
				row := (c*size+ky)*size + kx
				for oy := 0; oy < oh; oy++ {
					for ox := 0; ox < ow; ox++ {
						iy, ix := oy*stride+ky-pad, ox*stride+kx-pad
						if iy >= 0 && iy < h && ix >= 0 && ix < w {
							dst[(c*h+iy)*w+ix] += col.At(row, oy*ow+ox)
						}
					}
				}
			}
		}
	}
}

func outDim(in, size, stride, pad int) int {
	return (in+2*pad-size)/stride + 1
}

func rows(m *mat.Dense) int {
	r, _ := m.Dims()
	return r
}

// ensureDense reuses m when the shape matches, else allocates a new matrix.
// The last batch of an epoch can be smaller than the rest.
func ensureDense(m *mat.Dense, r, c int) *mat.Dense {
	if m != nil {
		if mr, mc := m.Dims(); mr == r && mc == c {
			return m
		}
	}
	return mat.NewDense(r, c, nil)
}

func prod(dims []int) int {
	p := 1
	for _, d := range dims {
		p *= d
	}
	return p
}

func marshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func unmarshal(data json.RawMessage, v interface{}) {
	err := json.Unmarshal(data, v)
	if err != nil {
		panic(err)
	}
}
