package sampler

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultCalibrationOffsetDB is the empirical correction from full-scale power to dBm
	DefaultCalibrationOffsetDB = -50.0

	// minIQPairs is the smallest capture that yields a usable power estimate
	minIQPairs = 4

	powerFloor = 1e-10
	int8Scale  = 127.0
)

// ErrShortCapture is returned when a capture holds too few IQ pairs to analyze
var ErrShortCapture = errors.New("capture too short to analyze")

// IQPowerDBm computes the mean power of interleaved signed 8-bit IQ samples
// and returns it in dBm after applying offsetDB. The result is rounded to
// hundredths of a dB.
func IQPowerDBm(raw []byte, offsetDB float64) (float64, error) {
	pairs := len(raw) / 2
	if pairs < minIQPairs {
		return 0, ErrShortCapture
	}

	mag := make([]float64, pairs)
	for k := 0; k < pairs; k++ {
		i := float64(int8(raw[2*k])) / int8Scale
		q := float64(int8(raw[2*k+1])) / int8Scale
		mag[k] = i*i + q*q
	}

	linear := stat.Mean(mag, nil)
	dbm := 10*math.Log10(linear+powerFloor) + offsetDB
	return math.Round(dbm*100) / 100, nil
}

// FrequencyCorrection is the per-frequency path loss adjustment, -0.1 dB per 100 MHz
func FrequencyCorrection(frequencyHz int64) float64 {
	mhz := float64(frequencyHz) / 1e6
	return -0.01 * (mhz / 10)
}

// Gains is an LNA/VGA gain pair in dB
type Gains struct {
	LNA int
	VGA int
}

// GainFor picks receiver gains for a frequency. Lower frequencies get less
// gain to keep strong broadcast signals from overloading the front end.
func GainFor(frequencyHz int64) Gains {
	mhz := float64(frequencyHz) / 1e6
	switch {
	case mhz < 100:
		return Gains{LNA: 8, VGA: 12}
	case mhz < 500:
		return Gains{LNA: 16, VGA: 16}
	case mhz < 1500:
		return Gains{LNA: 24, VGA: 20}
	case mhz < 3000:
		return Gains{LNA: 32, VGA: 24}
	case mhz < 4500:
		return Gains{LNA: 40, VGA: 26}
	default:
		return Gains{LNA: 40, VGA: 30}
	}
}
