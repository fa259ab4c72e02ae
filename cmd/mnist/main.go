// Convert the MNIST idx format files into gob datasets with pixel values
// scaled to [0,1]. Expects the four standard files under DataDir/mnist.
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pwilczewski/deepsupervisedhash/nnet"
)

const (
	nclasses = 10
	split    = 50000
)

type labelHeader struct{ Magic, Num uint32 }

type imageHeader struct{ Magic, Num, Height, Width uint32 }

func main() {
	// mnist dataset is 60000 train + 10000 test images
	labels, images, shape, err := loadData("train-images-idx3-ubyte", "train-labels-idx1-ubyte")
	nnet.CheckErr(err)
	testLabels, testImages, _, err := loadData("t10k-images-idx3-ubyte", "t10k-labels-idx1-ubyte")
	nnet.CheckErr(err)

	nfeat := shape[0] * shape[1] * shape[2]
	train := nnet.NewData(nclasses, shape, labels[:split], images[:split*nfeat])
	valid := nnet.NewData(nclasses, shape, labels[split:], images[split*nfeat:])
	test := nnet.NewData(nclasses, shape, testLabels, testImages)

	nnet.CheckErr(nnet.SaveDataFile(train, "mnist_train"))
	nnet.CheckErr(nnet.SaveDataFile(valid, "mnist_valid"))
	nnet.CheckErr(nnet.SaveDataFile(test, "mnist_test"))
}

func loadData(imageFile, labelFile string) (labels []int32, images []float64, shape []int, err error) {
	if labels, err = readLabels(labelFile); err != nil {
		return
	}
	if images, shape, err = readImages(imageFile); err != nil {
		return
	}
	if n := shape[0] * shape[1] * shape[2] * len(labels); n != len(images) {
		err = fmt.Errorf("%s: %d labels for %d pixels", imageFile, len(labels), len(images))
	}
	return
}

func readImages(name string) (images []float64, shape []int, err error) {
	var f *os.File
	pathName := path.Join(nnet.DataDir, "mnist", name)
	if f, err = os.Open(pathName); err != nil {
		return
	}
	defer f.Close()
	var head imageHeader
	if err = binary.Read(f, binary.BigEndian, &head); err != nil {
		return
	}
	n, h, w := int(head.Num), int(head.Height), int(head.Width)
	fmt.Printf("read %d %dx%d images from %s\n", n, h, w, name)
	shape = []int{1, h, w}
	images = make([]float64, n*h*w)
	pixels := make([]uint8, h*w)
	for i := 0; i < n; i++ {
		if _, err = io.ReadFull(f, pixels); err != nil {
			return
		}
		for j, pix := range pixels {
			images[i*h*w+j] = float64(pix) / 255
		}
	}
	return
}

func readLabels(name string) (labels []int32, err error) {
	var f *os.File
	pathName := path.Join(nnet.DataDir, "mnist", name)
	if f, err = os.Open(pathName); err != nil {
		return
	}
	defer f.Close()
	var head labelHeader
	if err = binary.Read(f, binary.BigEndian, &head); err != nil {
		return
	}
	fmt.Printf("read %d labels from %s\n", head.Num, name)
	bytes := make([]byte, head.Num)
	if _, err = io.ReadFull(f, bytes); err != nil {
		return
	}
	labels = make([]int32, head.Num)
	for i, label := range bytes {
		labels[i] = int32(label)
	}
	return
}
