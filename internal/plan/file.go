package plan

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tinfoilhat/hatscore/pkg/models"
)

// File is the on-disk YAML layout of a frequency plan:
//
//	frequencies:
//	  - frequency_mhz: 88.5
//	    band: FM Radio
//	  - frequency_hz: 2412000000
//	    band: WiFi 2.4GHz
//	    description: Channel 1
type File struct {
	Frequencies []FileEntry `yaml:"frequencies"`
}

// FileEntry is one frequency of a plan file. Exactly one of FrequencyHz or
// FrequencyMHz must be set.
type FileEntry struct {
	FrequencyHz  int64   `yaml:"frequency_hz"`
	FrequencyMHz float64 `yaml:"frequency_mhz"`
	Band         string  `yaml:"band"`
	Description  string  `yaml:"description"`
}

// LoadFile reads and validates a YAML plan file
func LoadFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML plan document
func Parse(data []byte) (*Plan, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding plan file: %w", err)
	}

	points := make([]models.FrequencyPoint, 0, len(f.Frequencies))
	for i, e := range f.Frequencies {
		hz := e.FrequencyHz
		switch {
		case hz != 0 && e.FrequencyMHz != 0:
			return nil, fmt.Errorf("plan entry %d: set frequency_hz or frequency_mhz, not both", i)
		case hz == 0:
			hz = int64(math.Round(e.FrequencyMHz * 1e6))
		}
		points = append(points, models.FrequencyPoint{
			FrequencyHz: hz,
			BandLabel:   e.Band,
			Description: e.Description,
		})
	}

	return New(points)
}
