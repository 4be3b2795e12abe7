// Package plan holds the fixed, ordered list of frequencies scanned in every pass.
package plan

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/tinfoilhat/hatscore/pkg/models"
)

// ErrEmptyPlan is returned when a plan has no frequencies
var ErrEmptyPlan = errors.New("frequency plan is empty")

// Plan is an immutable ordered list of frequency points
type Plan struct {
	points []models.FrequencyPoint
	index  map[int64]int
}

// New validates points and builds a Plan. Order is preserved; frequencies must be
// positive and unique.
func New(points []models.FrequencyPoint) (*Plan, error) {
	if len(points) == 0 {
		return nil, ErrEmptyPlan
	}

	p := &Plan{
		points: make([]models.FrequencyPoint, len(points)),
		index:  make(map[int64]int, len(points)),
	}

	for i, pt := range points {
		if pt.FrequencyHz <= 0 {
			return nil, fmt.Errorf("frequency plan entry %d: frequency must be positive, got %d", i, pt.FrequencyHz)
		}
		if prev, ok := p.index[pt.FrequencyHz]; ok {
			return nil, fmt.Errorf("frequency plan entry %d: duplicate frequency %s (first at entry %d)", i, FormatHz(pt.FrequencyHz), prev)
		}
		p.index[pt.FrequencyHz] = i
		p.points[i] = pt
	}

	return p, nil
}

// MustNew is New that panics on error. Intended for static plans.
func MustNew(points []models.FrequencyPoint) *Plan {
	p, err := New(points)
	if err != nil {
		panic(err)
	}
	return p
}

// Points returns a copy of the plan in scan order
func (p *Plan) Points() []models.FrequencyPoint {
	out := make([]models.FrequencyPoint, len(p.points))
	copy(out, p.points)
	return out
}

// Len returns the number of frequencies in the plan
func (p *Plan) Len() int {
	return len(p.points)
}

// Frequencies returns the plan frequencies in Hz, in scan order
func (p *Plan) Frequencies() []int64 {
	out := make([]int64, len(p.points))
	for i, pt := range p.points {
		out[i] = pt.FrequencyHz
	}
	return out
}

// Lookup returns the plan entry for the given frequency
func (p *Plan) Lookup(frequencyHz int64) (models.FrequencyPoint, bool) {
	i, ok := p.index[frequencyHz]
	if !ok {
		return models.FrequencyPoint{}, false
	}
	return p.points[i], true
}

// Contains reports whether frequencyHz is part of the plan
func (p *Plan) Contains(frequencyHz int64) bool {
	_, ok := p.index[frequencyHz]
	return ok
}

// FormatHz renders a frequency with SI units, e.g. "2.412 GHz"
func FormatHz(hz int64) string {
	return humanize.SIWithDigits(float64(hz), 3, "Hz")
}
