package sampler

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultTransferPath   = "hackrf_transfer"
	DefaultInfoPath       = "hackrf_info"
	DefaultNumSamples     = 262144
	DefaultSampleRate     = 8_000_000
	DefaultCaptureTimeout = 10 * time.Second

	MinNumSamples = 8192

	probeAttempts = 3
	probeTimeout  = 5 * time.Second
	probeBackoff  = time.Second
)

// CommandRunner executes an external program and returns its output streams
type CommandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// execRunner runs commands with os/exec
func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Config configures captures made with `hackrf_transfer`
type Config struct {
	TransferPath        string
	InfoPath            string
	Serial              string // -d serial_number, empty picks the first board
	NumSamples          int64  // -n num_samples
	SampleRate          int64  // -s sample_rate_hz
	CaptureTimeout      time.Duration
	CalibrationOffsetDB float64
	EnableAmp           bool // -a 1
	TempDir             string
}

// DefaultConfig returns the settings used for competition captures
func DefaultConfig() Config {
	return Config{
		TransferPath:        DefaultTransferPath,
		InfoPath:            DefaultInfoPath,
		NumSamples:          DefaultNumSamples,
		SampleRate:          DefaultSampleRate,
		CaptureTimeout:      DefaultCaptureTimeout,
		CalibrationOffsetDB: DefaultCalibrationOffsetDB,
		EnableAmp:           true,
	}
}

func (c *Config) Validate() error {
	if c.TransferPath == "" {
		return errors.New("hackrf.Config: transfer path is required")
	}
	if c.InfoPath == "" {
		return errors.New("hackrf.Config: info path is required")
	}
	if c.NumSamples < MinNumSamples {
		return fmt.Errorf("hackrf.Config: number of samples must be at least %d: %d given", MinNumSamples, c.NumSamples)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("hackrf.Config: sample rate must be positive: %d given", c.SampleRate)
	}
	if c.CaptureTimeout <= 0 {
		return fmt.Errorf("hackrf.Config: capture timeout must be positive: %s given", c.CaptureTimeout)
	}
	return nil
}

// TransferArgs builds the `hackrf_transfer` command line for one capture
func (c *Config) TransferArgs(outputFile string, frequencyHz int64) []string {
	g := GainFor(frequencyHz)

	args := []string{
		"-r", outputFile,
		"-f", strconv.FormatInt(frequencyHz, 10),
		"-s", strconv.FormatInt(c.SampleRate, 10),
		"-l", strconv.Itoa(g.LNA),
		"-g", strconv.Itoa(g.VGA),
	}

	if c.EnableAmp {
		args = append(args, "-a", "1")
	} else {
		args = append(args, "-a", "0")
	}

	args = append(args, "-n", strconv.FormatInt(c.NumSamples, 10))

	if c.Serial != "" {
		args = append(args, "-d", c.Serial)
	}

	return args
}

// HackRF is a Sampler backed by the HackRF command line tools. Only one
// capture runs at a time; a second concurrent Measure fails with DeviceBusy.
type HackRF struct {
	cfg     Config
	run     CommandRunner
	now     func() time.Time
	backoff time.Duration

	mu sync.Mutex
}

// Option customizes a HackRF sampler
type Option func(*HackRF)

// WithCommandRunner replaces os/exec, mainly for tests
func WithCommandRunner(r CommandRunner) Option {
	return func(h *HackRF) { h.run = r }
}

// WithClock overrides the capture timestamp source
func WithClock(now func() time.Time) Option {
	return func(h *HackRF) { h.now = now }
}

// NewHackRF validates cfg and returns a ready sampler
func NewHackRF(cfg Config, opts ...Option) (*HackRF, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := &HackRF{cfg: cfg, run: execRunner, now: time.Now, backoff: probeBackoff}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Measure tunes to frequencyHz, captures IQ samples and returns the calibrated power
func (h *HackRF) Measure(ctx context.Context, frequencyHz int64) (Measurement, error) {
	if err := CheckRange(frequencyHz); err != nil {
		return Measurement{}, err
	}

	if !h.mu.TryLock() {
		return Measurement{}, NewHardwareError(KindDeviceBusy, frequencyHz, errors.New("another capture is in progress"))
	}
	defer h.mu.Unlock()

	f, err := os.CreateTemp(h.cfg.TempDir, "capture_*.bin")
	if err != nil {
		return Measurement{}, NewHardwareError(KindCaptureFailed, frequencyHz, fmt.Errorf("creating capture file: %w", err))
	}
	outputFile := f.Name()
	f.Close()
	defer func() {
		if err := os.Remove(outputFile); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", outputFile).Msg("Failed to remove capture file")
		}
	}()

	captureCtx, cancel := context.WithTimeout(ctx, h.cfg.CaptureTimeout)
	defer cancel()

	args := h.cfg.TransferArgs(outputFile, frequencyHz)
	g := GainFor(frequencyHz)
	log.Debug().
		Int64("frequency_hz", frequencyHz).
		Int("lna_gain", g.LNA).
		Int("vga_gain", g.VGA).
		Msg("Starting capture")

	_, stderr, runErr := h.run(captureCtx, h.cfg.TransferPath, args...)
	if runErr != nil {
		return Measurement{}, classifyRunError(ctx, captureCtx, frequencyHz, runErr, stderr)
	}

	raw, err := os.ReadFile(outputFile)
	if err != nil {
		return Measurement{}, NewHardwareError(KindCaptureFailed, frequencyHz, fmt.Errorf("reading capture: %w", err))
	}
	if len(raw) == 0 {
		return Measurement{}, NewHardwareError(KindCaptureFailed, frequencyHz, errors.New("empty capture"))
	}

	power, err := IQPowerDBm(raw, h.cfg.CalibrationOffsetDB)
	if err != nil {
		return Measurement{}, NewHardwareError(KindCaptureFailed, frequencyHz, err)
	}
	power = math.Round((power+FrequencyCorrection(frequencyHz))*100) / 100

	return Measurement{
		FrequencyHz: frequencyHz,
		PowerDBm:    power,
		CapturedAt:  h.now().UTC(),
	}, nil
}

func classifyRunError(parent, capture context.Context, frequencyHz int64, err error, stderr []byte) error {
	msg := strings.TrimSpace(string(stderr))
	if msg != "" {
		err = fmt.Errorf("%w: %s", err, msg)
	}

	switch {
	case parent.Err() != nil:
		// caller gave up, not a receiver fault
		return NewHardwareError(KindCaptureFailed, frequencyHz, parent.Err())
	case errors.Is(capture.Err(), context.DeadlineExceeded):
		return NewHardwareError(KindCaptureTimeout, frequencyHz, err)
	case errors.Is(err, exec.ErrNotFound):
		return NewHardwareError(KindDeviceNotFound, frequencyHz, err)
	case strings.Contains(msg, "No HackRF boards found"), strings.Contains(msg, "HACKRF_ERROR_NOT_FOUND"):
		return NewHardwareError(KindDeviceNotFound, frequencyHz, err)
	case strings.Contains(strings.ToLower(msg), "busy"):
		return NewHardwareError(KindDeviceBusy, frequencyHz, err)
	default:
		return NewHardwareError(KindCaptureFailed, frequencyHz, err)
	}
}

// DeviceInfo is what `hackrf_info` reports about the attached board
type DeviceInfo struct {
	Connected bool   `json:"connected"`
	Serial    string `json:"serial,omitempty"`
	Firmware  string `json:"firmware,omitempty"`
}

// Probe checks that a HackRF is attached, retrying a few times because the
// board can take a moment to enumerate after being plugged in.
func (h *HackRF) Probe(ctx context.Context) (DeviceInfo, error) {
	var lastErr error
	for attempt := 1; attempt <= probeAttempts; attempt++ {
		info, err := h.probeOnce(ctx)
		if err == nil {
			return info, nil
		}
		lastErr = err

		log.Warn().Err(err).Int("attempt", attempt).Msg("HackRF probe failed")
		if errors.Is(err, exec.ErrNotFound) {
			break
		}
		if attempt < probeAttempts {
			select {
			case <-ctx.Done():
				return DeviceInfo{}, ctx.Err()
			case <-time.After(h.backoff):
			}
		}
	}
	return DeviceInfo{}, lastErr
}

func (h *HackRF) probeOnce(ctx context.Context) (DeviceInfo, error) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	stdout, stderr, err := h.run(probeCtx, h.cfg.InfoPath)
	if err != nil {
		return DeviceInfo{}, classifyRunError(ctx, probeCtx, 0, err, stderr)
	}

	info := ParseInfo(stdout)
	if !info.Connected {
		return DeviceInfo{}, NewHardwareError(KindDeviceNotFound, 0, errors.New("no HackRF One in hackrf_info output"))
	}
	if h.cfg.Serial != "" && !strings.HasSuffix(info.Serial, h.cfg.Serial) {
		return DeviceInfo{}, NewHardwareError(KindDeviceNotFound, 0,
			fmt.Errorf("configured serial %s not found", h.cfg.Serial))
	}
	return info, nil
}

// ParseInfo extracts the board details from `hackrf_info` output
func ParseInfo(out []byte) DeviceInfo {
	var info DeviceInfo
	var sawBoard bool

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.Contains(line, "HackRF One"):
			sawBoard = true
		case strings.HasPrefix(line, "Serial number:"):
			info.Serial = strings.TrimSpace(strings.TrimPrefix(line, "Serial number:"))
		case strings.HasPrefix(line, "Firmware Version:"):
			info.Firmware = strings.TrimSpace(strings.TrimPrefix(line, "Firmware Version:"))
		}
	}

	info.Connected = sawBoard && info.Serial != ""
	return info
}
