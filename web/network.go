// Package web implements a browser monitor for training runs: live loss
// stats, loss curve plots and the hash code evaluation report.
package web

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pwilczewski/deepsupervisedhash/hash"
	"github.com/pwilczewski/deepsupervisedhash/nnet"
)

// Network wraps the training state shared between the http handlers and the
// background training goroutine. Handlers must hold the lock.
type Network struct {
	sync.Mutex
	Model   string
	Conf    nnet.Config
	Data    map[string]nnet.Data
	Epoch   int
	base    *nnet.TestBase
	net     *nnet.Network
	train   *nnet.Dataset
	rng     *rand.Rand
	running bool
	conn    *websocket.Conn
	report  *hash.Report
}

// Load the named model config and its datasets ready for training.
func NewNetwork(model string) (*Network, error) {
	n := &Network{Model: model}
	var err error
	if n.Conf, err = nnet.LoadConfig(model + ".net"); err != nil {
		return nil, err
	}
	if n.Data, err = nnet.LoadData(n.Conf.DataSet); err != nil {
		return nil, err
	}
	return n, n.init()
}

func (n *Network) init() error {
	n.rng = nnet.NewRng(n.Conf.RandSeed)
	var err error
	if n.train, err = nnet.NewDataset(n.Data["train"], n.Conf.TrainBatch, n.Conf.MaxSamples, n.rng); err != nil {
		return err
	}
	if n.net, err = nnet.New(n.Conf, n.train.BatchSize, n.train.Shape()); err != nil {
		return err
	}
	if n.base == nil {
		if n.base, err = nnet.NewTestBase().Init(n.Conf, n.Data, n.rng); err != nil {
			return err
		}
	}
	return nil
}

// Replace the config after an edit. The datasets stay loaded but the
// networks and stats are rebuilt from scratch on the next restart.
// Caller must hold the lock.
func (n *Network) setConfig(conf nnet.Config) {
	n.Conf = conf
	n.base = nil
	n.Epoch = 0
	n.report = nil
}

// Train starts a run in the background. With restart set the weights are
// reinitialised and the stats cleared, else training resumes where it
// stopped. Caller must hold the lock.
func (n *Network) Train(restart bool) error {
	log.Printf("train %s: restart=%v epochs=%d", n.Model, restart, n.Conf.MaxEpoch)
	if restart || n.base == nil {
		if err := n.init(); err != nil {
			return err
		}
		n.net.InitWeights(n.rng)
		n.base.Reset()
		n.Epoch = 0
	}
	// any cached report is stale once new epochs run
	n.report = nil
	n.running = true
	go n.trainLoop(n.Epoch)
	return nil
}

func (n *Network) trainLoop(fromEpoch int) {
	start := time.Now()
	for epoch := fromEpoch + 1; ; epoch++ {
		loss, err := nnet.TrainEpoch(n.net, n.train)
		if err != nil {
			n.fail(err)
			return
		}
		n.Lock()
		done, err := n.base.Test(n.net, epoch, loss, start)
		if err != nil {
			n.Unlock()
			n.fail(err)
			return
		}
		n.Epoch = epoch
		stopped := !n.running
		if done || stopped {
			n.running = false
		}
		n.notify(epoch, done || stopped)
		n.Unlock()
		if done || stopped {
			log.Printf("train %s: done at epoch %d", n.Model, epoch)
			return
		}
	}
}

func (n *Network) fail(err error) {
	log.Println("training error:", err)
	n.Lock()
	n.running = false
	n.notify(n.Epoch, true)
	n.Unlock()
}

// push an update to the browser so it refreshes the stats frame
func (n *Network) notify(epoch int, done bool) {
	if n.conn == nil {
		return
	}
	msg := fmt.Sprintf(`{"epoch": %d, "done": %v}`, epoch, done)
	if err := n.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		log.Println("websocket write:", err)
		n.conn = nil
	}
}

// Report evaluates the per class median hash codes over the test set.
// Weights are taken from the tester copy which is only updated under the
// lock, the live training network is never read here. The report is cached
// once the run has stopped.
func (n *Network) Report() (*hash.Report, error) {
	if n.report != nil && !n.running {
		return n.report, nil
	}
	if n.base == nil || len(n.base.Stats) == 0 {
		return nil, fmt.Errorf("no trained weights for %s", n.Model)
	}
	testData, ok := n.Data["test"]
	if !ok {
		return nil, fmt.Errorf("no test dataset for %s", n.Conf.DataSet)
	}
	dset, err := nnet.NewDataset(testData, n.Conf.TestBatch, 0, n.rng)
	if err != nil {
		return nil, err
	}
	eval, err := nnet.New(n.Conf, dset.BatchSize, dset.Shape())
	if err != nil {
		return nil, err
	}
	n.base.Net.CopyTo(eval)
	codes, labels, err := eval.Encode(dset)
	if err != nil {
		return nil, err
	}
	report, err := hash.EvaluateClasses(nnet.Binarize(codes), labels, nnet.ClassLabels(testData))
	if err != nil {
		return nil, err
	}
	if !n.running {
		n.report = report
	}
	return report, nil
}

// Stats accessor for the templates
func (n *Network) Stats() []nnet.Stats {
	if n.base == nil {
		return nil
	}
	return n.base.Stats
}

// Headers for the stats table
func (n *Network) Headers() []string {
	if n.base == nil {
		return nil
	}
	return n.base.Headers
}
