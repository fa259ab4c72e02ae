// Train a hash code network and report the Hamming distances between the
// per class median codes on the test set.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pwilczewski/deepsupervisedhash/hash"
	"github.com/pwilczewski/deepsupervisedhash/nnet"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: train [opts] <model>")
		os.Exit(1)
	}
	model := os.Args[len(os.Args)-1]
	fmt.Println("load model:", model)
	conf, err := nnet.LoadConfig(model + ".net")
	nnet.CheckErr(err)

	// override config settings from command line
	flag.Float64Var(&conf.Eta, "eta", conf.Eta, "learning rate")
	flag.Float64Var(&conf.Lambda, "lambda", conf.Lambda, "weight decay parameter")
	flag.Float64Var(&conf.Margin, "margin", conf.Margin, "pairwise loss margin")
	flag.Int64Var(&conf.RandSeed, "seed", conf.RandSeed, "random number seed")
	flag.IntVar(&conf.MaxEpoch, "epochs", conf.MaxEpoch, "max epochs")
	flag.IntVar(&conf.MaxSamples, "samples", conf.MaxSamples, "max samples")
	flag.IntVar(&conf.TrainBatch, "batch", conf.TrainBatch, "train batch size")
	flag.IntVar(&conf.TestBatch, "testbatch", conf.TestBatch, "test batch size")
	flag.IntVar(&conf.DebugLevel, "debug", conf.DebugLevel, "debug logging level")
	flag.CommandLine.Parse(os.Args[1 : len(os.Args)-1])

	rng := nnet.NewRng(conf.RandSeed)

	// load training and test data
	data, err := nnet.LoadData(conf.DataSet)
	nnet.CheckErr(err)
	trainData, err := nnet.NewDataset(data["train"], conf.TrainBatch, conf.MaxSamples, rng)
	nnet.CheckErr(err)

	// initialise weights
	trainNet, err := nnet.New(conf, trainData.BatchSize, trainData.Shape())
	nnet.CheckErr(err)
	fmt.Println(trainNet)
	trainNet.InitWeights(rng)

	// train the network
	tester, err := nnet.NewTestLogger(conf, data, rng)
	nnet.CheckErr(err)
	err = nnet.Train(trainNet, trainData, tester)
	nnet.CheckErr(err)

	// binarize the test set codes and compare the class medians
	testData, ok := data["test"]
	if !ok {
		fmt.Println("no test set - skipping hash evaluation")
		return
	}
	dset, err := nnet.NewDataset(testData, conf.TestBatch, 0, rng)
	nnet.CheckErr(err)
	codes, labels, err := trainNet.Encode(dset)
	nnet.CheckErr(err)
	report, err := hash.EvaluateClasses(nnet.Binarize(codes), labels, nnet.ClassLabels(testData))
	nnet.CheckErr(err)
	fmt.Println(report)
}
