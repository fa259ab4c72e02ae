// Package hash implements the pairwise supervised hashing loss and the
// Hamming distance evaluation of the learned codes.
package hash

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// PairwiseLoss is the contrastive loss over all ordered pairs in a batch.
// Same label pairs are pulled together by their squared euclidean distance,
// different label pairs are pushed apart up to Margin with a hinge.
// The diagonal i==j counts as a similar pair: its distance is zero so it
// contributes nothing, but it must stay in the sum to keep the scale of the
// loss and its gradient consistent.
type PairwiseLoss struct {
	Margin float64
}

// NewPairwiseLoss validates the margin. A non-positive margin is rejected
// rather than clamped.
func NewPairwiseLoss(margin float64) (PairwiseLoss, error) {
	if margin <= 0 {
		return PairwiseLoss{}, errors.Wrapf(ErrInvalidMargin, "got %g", margin)
	}
	return PairwiseLoss{Margin: margin}, nil
}

// Loss returns the per sample loss vector for a batch of predicted codes.
// preds has one row per sample, labels must have one entry per row.
// loss[i] = 0.5 * sum over j of S[i][j]*D[i][j] + (1-S[i][j])*max(Margin-D[i][j], 0)
// where S[i][j] = 1 iff labels[i] == labels[j] and D is squared euclidean
// distance. No reduction over the batch is applied here.
func (l PairwiseLoss) Loss(labels []int32, preds *mat.Dense) ([]float64, error) {
	if l.Margin <= 0 {
		return nil, errors.Wrapf(ErrInvalidMargin, "got %g", l.Margin)
	}
	n, _, err := checkBatch(labels, preds)
	if err != nil {
		return nil, err
	}
	dist := sqDistances(preds)
	loss := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			d := dist.At(i, j)
			if labels[i] == labels[j] {
				sum += d
			} else if d < l.Margin {
				sum += l.Margin - d
			}
		}
		loss[i] = 0.5 * sum
	}
	return loss, nil
}

// Grad computes the gradient of the summed loss with respect to each
// predicted code and stores it in grad, which must have the same shape as
// preds. For row i:
//
//	dL/dx[i] = sum over j of 2 * w[i][j] * (x[i] - x[j])
//
// with w[i][j] = 1 for same label pairs and -1 for different label pairs
// still inside the margin (0 once the hinge is clipped).
func (l PairwiseLoss) Grad(labels []int32, preds, grad *mat.Dense) error {
	if l.Margin <= 0 {
		return errors.Wrapf(ErrInvalidMargin, "got %g", l.Margin)
	}
	n, nbits, err := checkBatch(labels, preds)
	if err != nil {
		return err
	}
	if gr, gc := grad.Dims(); gr != n || gc != nbits {
		return errors.Wrapf(ErrShapeMismatch, "grad is %dx%d, preds are %dx%d", gr, gc, n, nbits)
	}
	dist := sqDistances(preds)
	for i := 0; i < n; i++ {
		for k := 0; k < nbits; k++ {
			grad.Set(i, k, 0)
		}
		for j := 0; j < n; j++ {
			var w float64
			if labels[i] == labels[j] {
				w = 2
			} else if dist.At(i, j) < l.Margin {
				w = -2
			} else {
				continue
			}
			for k := 0; k < nbits; k++ {
				grad.Set(i, k, grad.At(i, k)+w*(preds.At(i, k)-preds.At(j, k)))
			}
		}
	}
	return nil
}

// sqDistances returns the symmetric matrix of squared euclidean distances
// between all rows of x. The diagonal is exactly zero.
func sqDistances(x *mat.Dense) *mat.Dense {
	n, cols := x.Dims()
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum := 0.0
			for k := 0; k < cols; k++ {
				diff := x.At(i, k) - x.At(j, k)
				sum += diff * diff
			}
			d.Set(i, j, sum)
			d.Set(j, i, sum)
		}
	}
	return d
}

// checkBatch validates the labels against the prediction matrix.
func checkBatch(labels []int32, preds *mat.Dense) (n, nbits int, err error) {
	n, nbits = preds.Dims()
	if len(labels) != n {
		return 0, 0, errors.Wrapf(ErrShapeMismatch, "%d labels for %d predictions", len(labels), n)
	}
	if n == 0 || nbits == 0 {
		return 0, 0, errors.Wrap(ErrShapeMismatch, "empty batch")
	}
	return n, nbits, nil
}
