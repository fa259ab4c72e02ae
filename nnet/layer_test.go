package nnet

import (
	"math"
	"math/rand"
	"reflect"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestLinear(t *testing.T) {
	l := (&Linear{Nout: 2}).unmarshal(marshal(Linear{Nout: 2})).(*linear)
	l.Init([]int{3}, 1)
	l.SetParams(
		mat.NewDense(3, 2, []float64{1, 0, 0, 1, 1, 1}),
		mat.NewDense(1, 2, []float64{0.5, -0.5}),
	)
	in := mat.NewDense(1, 3, []float64{1, 2, 3})
	out := l.Fprop(in)
	expect := []float64{4.5, 4.5}
	if !reflect.DeepEqual(out.RawRowView(0), expect) {
		t.Error("fprop got", out.RawRowView(0), "expect", expect)
	}
	dsrc := l.Bprop(mat.NewDense(1, 2, []float64{1, 1}))
	if got := dsrc.RawRowView(0); !reflect.DeepEqual(got, []float64{1, 1, 2}) {
		t.Error("bprop got", got, "expect [1 1 2]")
	}
	if got := l.dw.RawMatrix().Data; !reflect.DeepEqual(got, []float64{1, 1, 2, 2, 3, 3}) {
		t.Error("dw got", got)
	}
	if got := l.db.RawMatrix().Data; !reflect.DeepEqual(got, []float64{1, 1}) {
		t.Error("db got", got)
	}
}

func TestConv(t *testing.T) {
	l := (&Conv{Nfeats: 1, Size: 2}).unmarshal(marshal(Conv{Nfeats: 1, Size: 2, Stride: 1})).(*conv)
	if got := l.OutShape([]int{1, 3, 3}); !reflect.DeepEqual(got, []int{1, 2, 2}) {
		t.Fatal("out shape got", got)
	}
	l.Init([]int{1, 3, 3}, 1)
	l.SetParams(
		mat.NewDense(1, 4, []float64{1, 1, 1, 1}),
		mat.NewDense(1, 1, []float64{0}),
	)
	in := mat.NewDense(1, 9, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	out := l.Fprop(in)
	expect := []float64{12, 16, 24, 28}
	if !reflect.DeepEqual(out.RawRowView(0), expect) {
		t.Error("fprop got", out.RawRowView(0), "expect", expect)
	}
}

func TestConvPadding(t *testing.T) {
	c := Conv{Nfeats: 4, Size: 5, Pad: 2}
	if got := c.Marshal().Unmarshal().OutShape([]int{1, 28, 28}); !reflect.DeepEqual(got, []int{4, 28, 28}) {
		t.Error("got", got, "expect [4 28 28]")
	}
}

func TestMaxPool(t *testing.T) {
	l := (&MaxPool{Size: 2}).unmarshal(marshal(MaxPool{Size: 2, Stride: 2})).(*maxPool)
	l.Init([]int{1, 4, 4}, 1)
	data := make([]float64, 16)
	for i := range data {
		data[i] = float64(i)
	}
	out := l.Fprop(mat.NewDense(1, 16, data))
	expect := []float64{5, 7, 13, 15}
	if !reflect.DeepEqual(out.RawRowView(0), expect) {
		t.Error("fprop got", out.RawRowView(0), "expect", expect)
	}
	dsrc := l.Bprop(mat.NewDense(1, 4, []float64{1, 2, 3, 4}))
	got := dsrc.RawRowView(0)
	for i, v := range got {
		switch i {
		case 5:
			if v != 1 {
				t.Error("dsrc[5] got", v)
			}
		case 7:
			if v != 2 {
				t.Error("dsrc[7] got", v)
			}
		case 13:
			if v != 3 {
				t.Error("dsrc[13] got", v)
			}
		case 15:
			if v != 4 {
				t.Error("dsrc[15] got", v)
			}
		default:
			if v != 0 {
				t.Error("dsrc", i, "got", v, "expect 0")
			}
		}
	}
}

func TestActivation(t *testing.T) {
	l := (&Activation{Atype: "relu"}).unmarshal(marshal(Activation{Atype: "relu"})).(*activation)
	l.Init([]int{4}, 1)
	out := l.Fprop(mat.NewDense(1, 4, []float64{-1, 0, 0.5, 2}))
	if got := out.RawRowView(0); !reflect.DeepEqual(got, []float64{0, 0, 0.5, 2}) {
		t.Error("relu got", got)
	}
	dsrc := l.Bprop(mat.NewDense(1, 4, []float64{1, 1, 1, 1}))
	if got := dsrc.RawRowView(0); !reflect.DeepEqual(got, []float64{0, 0, 1, 1}) {
		t.Error("relu deriv got", got)
	}
}

// Backprop through a full stack checked against central differences of the
// summed pairwise loss with respect to every weight.
func TestNetworkGradient(t *testing.T) {
	conf := Config{
		Eta:           0.1,
		Margin:        4,
		FlattenInput:  true,
		NormalWeights: true,
	}.AddLayers(
		Linear{Nout: 3},
		Activation{Atype: "tanh"},
		Linear{Nout: 2},
		HashOut{Margin: 4},
	)
	net, err := New(conf, 4, []int{4})
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(3))
	net.InitWeights(rng)
	data := make([]float64, 4*4)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	x := mat.NewDense(4, 4, data)
	labels := []int32{0, 0, 1, 1}
	out := net.OutLayer()

	yPred := net.Fprop(x)
	nb, bits := yPred.Dims()
	grad := mat.NewDense(nb, bits, nil)
	if err := out.LossGrad(labels, yPred, grad); err != nil {
		t.Fatal(err)
	}
	g := grad
	for i := len(net.Layers) - 1; i >= 0; i-- {
		g = net.Layers[i].Bprop(g)
	}

	const eps = 1e-5
	for li, layer := range net.Layers {
		pl, ok := layer.(ParamLayer)
		if !ok {
			continue
		}
		w, _ := pl.Params()
		wData := w.RawMatrix().Data
		var dwMat *mat.Dense
		switch l := layer.(type) {
		case *linear:
			dwMat = l.dw
		case *conv:
			dwMat = l.dw
		default:
			t.Fatalf("layer %d: unexpected param layer type", li)
		}
		dwData := dwMat.RawMatrix().Data
		for k := range wData {
			orig := wData[k]
			wData[k] = orig + eps
			up := netLoss(t, net, out, labels, x)
			wData[k] = orig - eps
			down := netLoss(t, net, out, labels, x)
			wData[k] = orig
			numeric := (up - down) / (2 * eps)
			if diff := math.Abs(numeric - dwData[k]); diff > 1e-4 {
				t.Errorf("layer %d dw[%d] got %.6f expect %.6f", li, k, dwData[k], numeric)
			}
		}
	}
}

func netLoss(t *testing.T, net *Network, out OutputLayer, labels []int32, x *mat.Dense) float64 {
	t.Helper()
	losses, err := out.Loss(labels, net.Fprop(x))
	if err != nil {
		t.Fatal(err)
	}
	sum := 0.0
	for _, v := range losses {
		sum += v
	}
	return sum
}

func TestConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	saved := DataDir
	DataDir = dir
	defer func() { DataDir = saved }()

	conf := Config{
		DataSet:    "mnist",
		Eta:        0.3,
		Margin:     34,
		HashBits:   17,
		TrainBatch: 100,
		MaxEpoch:   8,
		RandSeed:   1,
		Shuffle:    true,
	}.AddLayers(
		Conv{Nfeats: 16, Size: 5, Pad: 2},
		Activation{Atype: "relu"},
		MaxPool{Size: 2},
		Flatten{},
		Linear{Nout: 17},
		HashOut{Margin: 34},
	)
	if err := conf.Save("test.net"); err != nil {
		t.Fatal(err)
	}
	got, err := LoadConfig("test.net")
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != conf.String() {
		t.Errorf("config changed by round trip:\ngot:\n%s\nexpect:\n%s", got.String(), conf.String())
	}
	got, err = got.SetString("Eta", "0.05")
	if err != nil {
		t.Fatal(err)
	}
	if got.Eta != 0.05 {
		t.Error("SetString Eta got", got.Eta)
	}
	if _, err = got.SetBool("Shuffle", false); err != nil {
		t.Error(err)
	}
}
