package models

import (
	"fmt"
	"strings"
	"time"
)

// PassType identifies which of the two measurement passes a reading belongs to
type PassType string

const (
	PassBaseline PassType = "baseline"
	PassHat      PassType = "hat"
)

// Valid reports whether p is one of the known pass types
func (p PassType) Valid() bool {
	return p == PassBaseline || p == PassHat
}

// ParsePassType converts user input into a PassType
func ParsePassType(s string) (PassType, error) {
	p := PassType(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("invalid pass type %q: expected baseline or hat", s)
	}
	return p, nil
}

// HatType is the competition category a hat is entered in
type HatType string

const (
	HatClassic HatType = "classic"
	HatHybrid  HatType = "hybrid"
)

// Valid reports whether h is one of the known hat types
func (h HatType) Valid() bool {
	return h == HatClassic || h == HatHybrid
}

// ParseHatType converts user input into a HatType. Empty input means classic.
func ParseHatType(s string) (HatType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return HatClassic, nil
	}
	h := HatType(s)
	if !h.Valid() {
		return "", fmt.Errorf("invalid hat type %q: expected classic or hybrid", s)
	}
	return h, nil
}

// FrequencyPoint is one entry of the frequency plan
type FrequencyPoint struct {
	FrequencyHz int64  `json:"frequency_hz" yaml:"frequency_hz" doc:"Center frequency in Hz"`
	BandLabel   string `json:"band_label,omitempty" yaml:"band" doc:"Human readable band name"`
	Description string `json:"description,omitempty" yaml:"description" doc:"Band description"`
}

// MHz returns the frequency in megahertz
func (f FrequencyPoint) MHz() float64 {
	return float64(f.FrequencyHz) / 1e6
}

// PowerReading is the most recent power measured for a (pass, frequency) cell
type PowerReading struct {
	PassType    PassType  `json:"pass_type"`
	FrequencyHz int64     `json:"frequency_hz"`
	PowerDBm    float64   `json:"power_dbm"`
	CapturedAt  time.Time `json:"captured_at"`
}

// Contestant is a registered competitor
type Contestant struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	Email       string    `json:"email,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TestResult is the immutable record of one scored hat measurement.
// Only IsBestScore changes after the row is written.
type TestResult struct {
	ID                 int64     `json:"id"`
	ContestantID       int64     `json:"contestant_id"`
	TestDate           time.Time `json:"test_date"`
	AverageAttenuation float64   `json:"average_attenuation"`
	IsBestScore        bool      `json:"is_best_score"`
	HatType            HatType   `json:"hat_type"`
}

// TestDataPoint is the per-frequency detail row of a TestResult.
// Invalid rows keep nil levels for audit.
type TestDataPoint struct {
	TestResultID  int64    `json:"test_result_id"`
	FrequencyHz   int64    `json:"frequency_hz"`
	BaselineLevel *float64 `json:"baseline_level"`
	HatLevel      *float64 `json:"hat_level"`
	Attenuation   *float64 `json:"attenuation"`
	Valid         bool     `json:"valid"`
}

// LeaderboardEntry is one ranked row of the leaderboard
type LeaderboardEntry struct {
	Rank               int       `json:"rank"`
	ContestantID       int64     `json:"contestant_id"`
	Name               string    `json:"name"`
	TestResultID       int64     `json:"test_result_id"`
	AverageAttenuation float64   `json:"average_attenuation"`
	TestDate           time.Time `json:"test_date"`
	HatType            HatType   `json:"hat_type"`
}
