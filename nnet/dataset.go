package nnet

import (
	"encoding/gob"
	"fmt"
	"math/rand"
	"os"
	"path"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	DataDir   = defaultDataDir()
	DataTypes = []string{"train", "test", "valid"}
)

func defaultDataDir() string {
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		return dir
	}
	return "data"
}

func init() {
	gob.Register(data{})
}

// Data interface type represents the raw data for a training or test set
type Data interface {
	Len() int
	Classes() []string
	Shape() []int
	Label(index []int, label []int32)
	Input(index []int, buf []float64)
}

// Dataset type encapsulates a set of training, test or validation data and
// divides it into batches with one sample per matrix row.
type Dataset struct {
	Data
	Samples   int
	BatchSize int
	Batches   int
	x         *mat.Dense
	y         []int32
	indexes   []int
	rng       *rand.Rand
}

// Create a new Dataset struct, allocate batch buffers and set the batch size
// and maxSamples. The rng drives shuffling and must be supplied explicitly.
func NewDataset(data Data, batchSize, maxSamples int, rng *rand.Rand) (*Dataset, error) {
	if data.Len() == 0 {
		return nil, errors.New("nnet: empty dataset")
	}
	d := &Dataset{Data: data, Samples: data.Len(), rng: rng}
	if maxSamples > 0 && d.Samples > maxSamples {
		d.Samples = maxSamples
	}
	if batchSize == 0 || batchSize > d.Samples {
		d.BatchSize = d.Samples
	} else {
		d.BatchSize = batchSize
	}
	d.Batches = d.Samples / d.BatchSize
	if d.Samples%d.BatchSize != 0 {
		d.Batches++
	}
	nfeat := prod(data.Shape())
	d.x = mat.NewDense(d.BatchSize, nfeat, nil)
	d.y = make([]int32, d.BatchSize)
	d.indexes = make([]int, d.Samples)
	for i := range d.indexes {
		d.indexes[i] = i
	}
	return d, nil
}

// Get one batch of data, the last batch of an epoch may be short.
func (d *Dataset) GetBatch(batch int) (x *mat.Dense, y []int32) {
	start := batch * d.BatchSize
	end := start + d.BatchSize
	if end > d.Samples {
		end = d.Samples
	}
	index := d.indexes[start:end]
	x = d.x
	if len(index) != d.BatchSize {
		nfeat := prod(d.Shape())
		x = mat.NewDense(len(index), nfeat, nil)
	}
	d.Input(index, x.RawMatrix().Data)
	d.Label(index, d.y[:len(index)])
	return x, d.y[:len(index)]
}

// Shuffle the data set
func (d *Dataset) Shuffle() {
	d.indexes = d.rng.Perm(d.Samples)
}

// ClassLabels returns the numeric label for each class in the data set.
func ClassLabels(d Data) []int32 {
	labels := make([]int32, len(d.Classes()))
	for i := range labels {
		labels[i] = int32(i)
	}
	return labels
}

// Load data from disk given the dataset name.
func LoadData(model string) (d map[string]Data, err error) {
	var data Data
	d = make(map[string]Data)
	for _, key := range DataTypes {
		name := model + "_" + key
		if FileExists(name + ".dat") {
			if data, err = LoadDataFile(name); err != nil {
				return
			}
			d[key] = data
		}
	}
	return d, nil
}

// Decode data from file in gob format under DataDir
func LoadDataFile(name string) (Data, error) {
	filePath := path.Join(DataDir, name+".dat")
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fmt.Printf("loading data from %s.dat:\t", name)
	var d Data
	if err = gob.NewDecoder(f).Decode(&d); err != nil {
		return nil, err
	}
	fmt.Println(append(d.Shape(), d.Len()))
	return d, nil
}

// Encode in gob format and save to file under DataDir
func SaveDataFile(d Data, name string) error {
	filePath := path.Join(DataDir, name+".dat")
	f, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer f.Close()
	fmt.Println("saving data to", name+".dat")
	return gob.NewEncoder(f).Encode(&d)
}

// Check if file exists under DataDir
func FileExists(name string) bool {
	filePath := path.Join(DataDir, name)
	_, err := os.Stat(filePath)
	return err == nil
}

type data struct {
	Class  []string
	Dims   []int
	Labels []int32
	Inputs []float64
}

// NewData function creates a new data set which implements the Data interface
func NewData(nclasses int, shape []int, labels []int32, inputs []float64) Data {
	classes := make([]string, nclasses)
	for i := range classes {
		classes[i] = strconv.Itoa(i)
	}
	return data{Class: classes, Dims: shape, Labels: labels, Inputs: inputs}
}

func (d data) Len() int { return len(d.Labels) }

func (d data) Classes() []string { return d.Class }

func (d data) Shape() []int { return d.Dims }

func (d data) Label(index []int, label []int32) {
	for i, ix := range index {
		label[i] = d.Labels[ix]
	}
}

func (d data) Input(index []int, buf []float64) {
	nfeat := prod(d.Dims)
	for i, ix := range index {
		copy(buf[i*nfeat:], d.Inputs[ix*nfeat:(ix+1)*nfeat])
	}
}
