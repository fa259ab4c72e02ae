package web

import (
	"fmt"
	"net/http"

	"github.com/pwilczewski/deepsupervisedhash/hash"
)

type HashPage struct {
	*Templates
	net *Network
	rep *hash.Report
	err error
}

// Base data for the hash code evaluation report page
func NewHashPage(t *Templates, net *Network) *HashPage {
	p := &HashPage{net: net}
	p.Templates = t.Select("/hash")
	return p
}

// Handler function renders the report over the test set with the current weights
func (p *HashPage) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		if p.net.Epoch == 0 {
			p.rep, p.err = nil, fmt.Errorf("no trained model - start a run first")
		} else {
			p.rep, p.err = p.net.Report()
		}
		p.Exec(w, "hash", p)
	}
}

func (p *HashPage) Error() string {
	if p.err != nil {
		return p.err.Error()
	}
	return ""
}

func (p *HashPage) Bits() int {
	if p.rep == nil {
		return 0
	}
	return p.rep.Bits
}

type codeRow struct {
	Label int32
	Code  string
}

// Codes lists the per class representative hash strings
func (p *HashPage) Codes() []codeRow {
	if p.rep == nil {
		return nil
	}
	rows := make([]codeRow, 0, len(p.rep.Labels))
	for _, label := range p.rep.Labels {
		rep, _ := p.rep.Representative(label)
		rows = append(rows, codeRow{Label: label, Code: formatCode(rep)})
	}
	return rows
}

type distRow struct {
	Label int32
	Cells []string
}

// Distances is the upper triangle of the Hamming distance table
func (p *HashPage) Distances() []distRow {
	if p.rep == nil {
		return nil
	}
	labels := p.rep.Labels
	rows := make([]distRow, 0, len(labels))
	for i, a := range labels {
		row := distRow{Label: a}
		for j, b := range labels {
			switch {
			case j <= i:
				row.Cells = append(row.Cells, "")
			default:
				d, _ := p.rep.Distance(a, b)
				row.Cells = append(row.Cells, fmt.Sprint(d))
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func (p *HashPage) ColumnLabels() []int32 {
	if p.rep == nil {
		return nil
	}
	return p.rep.Labels
}

func (p *HashPage) Summary() string {
	if p.rep == nil || len(p.rep.Labels) < 2 {
		return ""
	}
	ca, cb, cd := p.rep.Closest()
	fa, fb, fd := p.rep.Farthest()
	return fmt.Sprintf("closest pair: (%d,%d), distance=%d - farthest pair: (%d,%d), distance=%d",
		ca, cb, cd, fa, fb, fd)
}

func formatCode(code []float64) string {
	buf := make([]byte, len(code))
	for i, v := range code {
		if v == 1 {
			buf[i] = '1'
		} else {
			buf[i] = '0'
		}
	}
	return string(buf)
}
