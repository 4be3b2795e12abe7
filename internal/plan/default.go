package plan

import (
	"fmt"
	"math"
	"sort"

	"github.com/tinfoilhat/hatscore/pkg/models"
)

// Defaults for the generated competition plan
const (
	DefaultNumFrequencies = 50
	DefaultMinMHz         = 2.0
	DefaultMaxMHz         = 5900.0

	// share of the plan taken from well-known bands; the rest is evenly spaced fill
	commonShare = 0.7

	// fill frequencies closer than this to an existing entry are dropped
	fillSpacingMHz = 5.0
)

type knownBand struct {
	MHz         float64
	Name        string
	Description string
}

// commonBands lists frequencies people actually care about shielding against
var commonBands = []knownBand{
	{88.5, "FM Radio", "FM Radio Broadcasting"},
	{98.1, "FM Radio", "FM Radio Broadcasting"},
	{107.9, "FM Radio", "FM Radio Broadcasting"},
	{850, "Cellular", "GSM/CDMA 850 Band"},
	{900, "Cellular", "GSM/EGSM Band"},
	{1800, "Cellular", "DCS Band"},
	{1900, "Cellular", "PCS Band"},
	{2100, "Cellular", "UMTS/3G Band"},
	{700, "LTE Band 12", "LTE 700 MHz"},
	{1700, "LTE Band 4", "AWS-1"},
	{2600, "LTE Band 7", "LTE 2600 MHz"},
	{3500, "5G Mid-Band", "C-Band 5G"},
	{4700, "5G High-Band", "mmWave 5G"},
	{2412, "WiFi 2.4GHz", "Channel 1"},
	{2437, "WiFi 2.4GHz", "Channel 6"},
	{2462, "WiFi 2.4GHz", "Channel 11"},
	{5180, "WiFi 5GHz", "Channel 36"},
	{5220, "WiFi 5GHz", "Channel 44"},
	{5320, "WiFi 5GHz", "Channel 64"},
	{5500, "WiFi 5GHz", "Channel 100"},
	{5700, "WiFi 5GHz", "Channel 140"},
	{2402, "Bluetooth", "Low Channels"},
	{2441, "Bluetooth", "Mid Channels"},
	{2480, "Bluetooth", "High Channels"},
	{1575.42, "GPS L1", "Civil GPS"},
	{1227.60, "GPS L2", "Military GPS"},
	{433, "ISM 433MHz", "Remote Controls/Sensors"},
	{915, "ISM 915MHz", "ISM Band"},
	{2450, "ISM 2.4GHz", "ISM Band"},
	{5800, "ISM 5.8GHz", "ISM Band"},
	{174, "VHF TV", "Television Broadcasting"},
	{470, "UHF TV", "Television Broadcasting"},
	{144, "2m Amateur", "Ham Radio"},
	{432, "70cm Amateur", "Ham Radio"},
	{1296, "23cm Amateur", "Ham Radio"},
	{137, "NOAA Weather", "Weather Satellites"},
	{1090, "ADS-B", "Aircraft Tracking"},
	{518, "Wireless Mic", "UHF Wireless Mics"},
	{865, "RFID UHF", "UHF RFID"},
	{2455, "RFID", "Microwave RFID"},
	{2400, "Medical", "Medical Telemetry"},
	{868, "Smart Home", "Z-Wave"},
	{908, "Smart Home", "ZigBee"},
}

// Default returns the standard 50-point competition plan between 2 MHz and 5.9 GHz
func Default() *Plan {
	p, err := Generate(DefaultNumFrequencies, DefaultMinMHz, DefaultMaxMHz)
	if err != nil {
		panic(err)
	}
	return p
}

// Generate builds a plan of up to n frequencies between minMHz and maxMHz. About
// 70% of the entries are picked, well distributed, from the table of common bands;
// the remaining slots are evenly spaced unlabeled frequencies. The result is sorted
// by frequency.
func Generate(n int, minMHz, maxMHz float64) (*Plan, error) {
	if n <= 0 {
		return nil, fmt.Errorf("number of frequencies must be positive, got %d", n)
	}
	if minMHz >= maxMHz {
		return nil, fmt.Errorf("minimum frequency %.3f MHz must be below maximum %.3f MHz", minMHz, maxMHz)
	}

	commonCount := int(float64(n) * commonShare)
	remaining := n - commonCount

	var inRange []knownBand
	for _, b := range commonBands {
		if b.MHz >= minMHz && b.MHz <= maxMHz {
			inRange = append(inRange, b)
		}
	}
	sort.Slice(inRange, func(i, j int) bool { return inRange[i].MHz < inRange[j].MHz })

	var selected []knownBand
	if len(inRange) > commonCount {
		step := float64(len(inRange)) / float64(commonCount)
		for i := 0; i < commonCount; i++ {
			idx := int(float64(i) * step)
			if idx < len(inRange) {
				selected = append(selected, inRange[idx])
			}
		}
	} else {
		selected = inRange
		remaining = n - len(selected)
	}

	if remaining > 0 {
		step := (maxMHz - minMHz) / float64(remaining+1)
		for i := 1; i <= remaining; i++ {
			mhz := minMHz + float64(i)*step
			if tooClose(selected, mhz) {
				continue
			}
			selected = append(selected, knownBand{MHz: mhz})
		}
	}

	sort.Slice(selected, func(i, j int) bool { return selected[i].MHz < selected[j].MHz })

	points := make([]models.FrequencyPoint, 0, len(selected))
	seen := make(map[int64]bool, len(selected))
	for _, b := range selected {
		hz := int64(math.Round(b.MHz * 1e6))
		if seen[hz] {
			continue
		}
		seen[hz] = true
		points = append(points, models.FrequencyPoint{
			FrequencyHz: hz,
			BandLabel:   b.Name,
			Description: b.Description,
		})
	}

	return New(points)
}

func tooClose(selected []knownBand, mhz float64) bool {
	for _, b := range selected {
		if math.Abs(b.MHz-mhz) < fillSpacingMHz {
			return true
		}
	}
	return false
}
