// Package attenuation pairs baseline and hat readings and scores the shielding.
package attenuation

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/tinfoilhat/hatscore/internal/plan"
	"github.com/tinfoilhat/hatscore/pkg/models"
)

// ErrNoValidMeasurements is returned when no plan frequency has both readings.
// A zero average is a legitimate score, so missing data is never reported as 0.
var ErrNoValidMeasurements = errors.New("no valid measurements")

// UnlabeledBand groups plan entries without a band label
const UnlabeledBand = "Unlabeled"

// FrequencyResult is the pairing outcome for one plan frequency
type FrequencyResult struct {
	Point       models.FrequencyPoint `json:"point"`
	Baseline    *float64              `json:"baseline_dbm"`
	Hat         *float64              `json:"hat_dbm"`
	Attenuation *float64              `json:"attenuation_db"`
	Valid       bool                  `json:"valid"`
}

// BandSummary is the mean attenuation over the valid entries of one band label
type BandSummary struct {
	Band            string  `json:"band"`
	MeanAttenuation float64 `json:"mean_attenuation_db"`
	Count           int     `json:"count"`
}

// RangeSummary is the mean attenuation over a standard RF range
type RangeSummary struct {
	Name            string  `json:"name"`
	MinMHz          float64 `json:"min_mhz"`
	MaxMHz          float64 `json:"max_mhz"`
	MeanAttenuation float64 `json:"mean_attenuation_db"`
	Count           int     `json:"count"`
}

// Result is the full score of a baseline/hat pair of passes
type Result struct {
	PerFrequency       []FrequencyResult `json:"per_frequency"`
	AverageAttenuation float64           `json:"average_attenuation_db"`
	MaxAttenuation     float64           `json:"max_attenuation_db"`
	MinAttenuation     float64           `json:"min_attenuation_db"`
	BestFrequency      int64             `json:"best_frequency_hz"`
	WorstFrequency     int64             `json:"worst_frequency_hz"`
	BandSummary        []BandSummary     `json:"band_summary"`
	RangeSummary       []RangeSummary    `json:"range_summary"`
	ValidCount         int               `json:"valid_count"`
	// InvalidFrequencies lists plan frequencies missing a usable reading in either pass
	InvalidFrequencies []int64 `json:"invalid_frequencies"`
	// NegativeFrequencies lists valid frequencies where the hat let more signal through
	NegativeFrequencies []int64 `json:"negative_frequencies"`
}

type rfRange struct {
	name           string
	minMHz, maxMHz float64
	inclusiveMax   bool
}

// standard ranges; the last one is closed at the top of the competition plan
var rfRanges = []rfRange{
	{"HF", 2, 30, false},
	{"VHF", 30, 300, false},
	{"UHF", 300, 3000, false},
	{"SHF", 3000, 5900, true},
}

func (r rfRange) contains(mhz float64) bool {
	if mhz < r.minMHz {
		return false
	}
	if r.inclusiveMax {
		return mhz <= r.maxMHz
	}
	return mhz < r.maxMHz
}

// Compute scores the hat against the baseline for every frequency of p.
// Readings are paired by exact frequency; readings for frequencies outside
// the plan are ignored. Attenuation is baseline minus hat and is not clamped.
func Compute(p *plan.Plan, baseline, hat []models.PowerReading) (*Result, error) {
	baseByHz := index(baseline)
	hatByHz := index(hat)

	points := p.Points()
	res := &Result{
		PerFrequency:        make([]FrequencyResult, 0, len(points)),
		InvalidFrequencies:  []int64{},
		NegativeFrequencies: []int64{},
	}

	var valid []float64
	bandValues := make(map[string][]float64)
	var bandOrder []string
	rangeValues := make([][]float64, len(rfRanges))

	for _, pt := range points {
		fr := FrequencyResult{Point: pt}
		b, hasB := baseByHz[pt.FrequencyHz]
		h, hasH := hatByHz[pt.FrequencyHz]
		if hasB {
			fr.Baseline = ptr(b)
		}
		if hasH {
			fr.Hat = ptr(h)
		}

		band := pt.BandLabel
		if band == "" {
			band = UnlabeledBand
		}
		if _, seen := bandValues[band]; !seen {
			bandValues[band] = nil
			bandOrder = append(bandOrder, band)
		}

		if !hasB || !hasH || !finite(b) || !finite(h) {
			res.InvalidFrequencies = append(res.InvalidFrequencies, pt.FrequencyHz)
			res.PerFrequency = append(res.PerFrequency, fr)
			continue
		}

		att := b - h
		fr.Attenuation = ptr(att)
		fr.Valid = true
		res.PerFrequency = append(res.PerFrequency, fr)

		valid = append(valid, att)
		bandValues[band] = append(bandValues[band], att)
		for i, r := range rfRanges {
			if r.contains(pt.MHz()) {
				rangeValues[i] = append(rangeValues[i], att)
			}
		}
		if att < 0 {
			res.NegativeFrequencies = append(res.NegativeFrequencies, pt.FrequencyHz)
		}

		if res.ValidCount == 0 || better(att, pt.FrequencyHz, res.MaxAttenuation, res.BestFrequency) {
			res.MaxAttenuation, res.BestFrequency = att, pt.FrequencyHz
		}
		if res.ValidCount == 0 || worse(att, pt.FrequencyHz, res.MinAttenuation, res.WorstFrequency) {
			res.MinAttenuation, res.WorstFrequency = att, pt.FrequencyHz
		}
		res.ValidCount++
	}

	if res.ValidCount == 0 {
		return nil, ErrNoValidMeasurements
	}

	res.AverageAttenuation = stat.Mean(valid, nil)

	for _, band := range bandOrder {
		vals := bandValues[band]
		if len(vals) == 0 {
			continue
		}
		res.BandSummary = append(res.BandSummary, BandSummary{
			Band:            band,
			MeanAttenuation: stat.Mean(vals, nil),
			Count:           len(vals),
		})
	}

	for i, r := range rfRanges {
		if len(rangeValues[i]) == 0 {
			continue
		}
		res.RangeSummary = append(res.RangeSummary, RangeSummary{
			Name:            r.name,
			MinMHz:          r.minMHz,
			MaxMHz:          r.maxMHz,
			MeanAttenuation: stat.Mean(rangeValues[i], nil),
			Count:           len(rangeValues[i]),
		})
	}

	return res, nil
}

// better reports whether (att, hz) beats the current best; ties go to the lower frequency
func better(att float64, hz int64, bestAtt float64, bestHz int64) bool {
	return att > bestAtt || (att == bestAtt && hz < bestHz)
}

func worse(att float64, hz int64, worstAtt float64, worstHz int64) bool {
	return att < worstAtt || (att == worstAtt && hz < worstHz)
}

func index(readings []models.PowerReading) map[int64]float64 {
	m := make(map[int64]float64, len(readings))
	for _, r := range readings {
		m[r.FrequencyHz] = r.PowerDBm
	}
	return m
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func ptr(v float64) *float64 {
	return &v
}

// DataPoints converts the per-frequency results into storage rows. Invalid
// rows keep no levels.
func (r *Result) DataPoints() []models.TestDataPoint {
	out := make([]models.TestDataPoint, 0, len(r.PerFrequency))
	for _, fr := range r.PerFrequency {
		dp := models.TestDataPoint{FrequencyHz: fr.Point.FrequencyHz, Valid: fr.Valid}
		if fr.Valid {
			dp.BaselineLevel = fr.Baseline
			dp.HatLevel = fr.Hat
			dp.Attenuation = fr.Attenuation
		}
		out = append(out, dp)
	}
	return out
}
