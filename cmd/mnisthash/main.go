// Write the default network config for the mnist hash code model.
package main

import (
	"fmt"

	"github.com/pwilczewski/deepsupervisedhash/nnet"
)

const hashBits = 17

func main() {
	conf := nnet.Config{
		DataSet:       "mnist",
		Eta:           0.05,
		Margin:        2 * hashBits,
		HashBits:      hashBits,
		NormalWeights: true,
		Shuffle:       true,
		TrainBatch:    100,
		TestBatch:     250,
		MaxEpoch:      15,
		LogEvery:      1,
		RandSeed:      1,
	}.AddLayers(
		nnet.Conv{Nfeats: 16, Size: 5, Pad: 2},
		nnet.Activation{Atype: "relu"},
		nnet.MaxPool{Size: 2},
		nnet.Conv{Nfeats: 32, Size: 5, Pad: 2},
		nnet.Activation{Atype: "relu"},
		nnet.MaxPool{Size: 2},
		nnet.Flatten{},
		nnet.Linear{Nout: 500},
		nnet.Activation{Atype: "relu"},
		nnet.Linear{Nout: hashBits},
		nnet.HashOut{Margin: 2 * hashBits},
	)
	fmt.Println(conf)
	err := conf.SaveDefault("mnist_hash")
	nnet.CheckErr(err)
}
