package handlers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tinfoilhat/hatscore/internal/plan"
	"github.com/tinfoilhat/hatscore/internal/scan"
	"github.com/tinfoilhat/hatscore/pkg/models"
)

// ScanController is the part of scan.Controller the HTTP layer drives
type ScanController interface {
	Plan() *plan.Plan
	State() scan.Snapshot
	Step(ctx context.Context) (*scan.StepResult, error)
	Abort() error
	Reset(ctx context.Context) error
	MeasureFrequency(ctx context.Context, pass models.PassType, frequencyHz int64) (*scan.MeasureResult, error)
	CachedReadings(ctx context.Context, pass models.PassType) ([]models.PowerReading, error)
}

// PassStarter starts a pass that runs on its own
type PassStarter interface {
	Start(ctx context.Context, pass models.PassType) (scan.Snapshot, error)
}

// PassRequest addresses one pass type
type PassRequest struct {
	Pass string `path:"pass" enum:"baseline,hat" doc:"Pass type"`
}

// ScanStateResponse is the controller state after an operation
type ScanStateResponse struct {
	Body scan.Snapshot
}

// StepResponseBody describes the frequency a step processed
type StepResponseBody struct {
	FrequencyHz int64                `json:"frequency_hz,omitempty" doc:"Frequency measured, absent when the step only completed the pass"`
	Reading     *models.PowerReading `json:"reading,omitempty" doc:"Cached reading"`
	Error       string               `json:"error,omitempty" doc:"Why this frequency has no reading"`
	State       scan.Snapshot        `json:"state" doc:"Controller state after the step"`
}

// StepResponse is returned by the manual step operation
type StepResponse struct {
	Body StepResponseBody
}

// ReadingsResponse lists the cached readings of one pass
type ReadingsResponse struct {
	Body struct {
		Pass     models.PassType       `json:"pass_type" doc:"Pass type"`
		Readings []models.PowerReading `json:"readings" doc:"Cached readings in ascending frequency order"`
	}
}

// MeasureRequest asks for a single reading outside a pass
type MeasureRequest struct {
	Body struct {
		Pass        string `json:"pass_type" enum:"baseline,hat" required:"true" doc:"Pass the reading belongs to"`
		FrequencyHz int64  `json:"frequency_hz" minimum:"1" required:"true" doc:"Center frequency in Hz"`
	}
}

// MeasureResponse is a single reading with its live attenuation
type MeasureResponse struct {
	Body struct {
		Reading       models.PowerReading `json:"reading" doc:"Cached reading"`
		Frequency     string              `json:"frequency" example:"2.4 GHz" doc:"Frequency for display"`
		BandLabel     string              `json:"band_label,omitempty" doc:"Band label when the frequency is in the plan"`
		AttenuationDB *float64            `json:"attenuation_db,omitempty" doc:"Baseline minus hat power, hat pass only"`
	}
}

// FrequenciesResponse is the active frequency plan
type FrequenciesResponse struct {
	Body struct {
		Count       int                     `json:"count" doc:"Number of plan frequencies"`
		Frequencies []models.FrequencyPoint `json:"frequencies" doc:"Plan frequencies in measurement order"`
	}
}

// ScanHandler handles scan-related HTTP requests
type ScanHandler struct {
	controller ScanController
	starter    PassStarter
}

// NewScanHandler creates a new scan handler
func NewScanHandler(controller ScanController, starter PassStarter) *ScanHandler {
	return &ScanHandler{
		controller: controller,
		starter:    starter,
	}
}

// StartPass begins a baseline or hat pass and returns immediately
func (h *ScanHandler) StartPass(ctx context.Context, req *PassRequest) (*ScanStateResponse, error) {
	pass, err := models.ParsePassType(req.Pass)
	if err != nil {
		return nil, toHTTPError(fmt.Errorf("%w: %q", scan.ErrInvalidPass, req.Pass), "Failed to start scan")
	}

	log.Info().Str("pass", string(pass)).Msg("Scan start requested")
	snap, err := h.starter.Start(ctx, pass)
	if err != nil {
		return nil, toHTTPError(err, "Failed to start scan")
	}
	return &ScanStateResponse{Body: snap}, nil
}

// Step measures the next frequency of the running pass
func (h *ScanHandler) Step(ctx context.Context, _ *struct{}) (*StepResponse, error) {
	res, err := h.controller.Step(ctx)
	if err != nil {
		return nil, toHTTPError(err, "Failed to step scan")
	}

	body := StepResponseBody{
		FrequencyHz: res.FrequencyHz,
		Reading:     res.Reading,
		State:       res.Snapshot,
	}
	if res.Err != nil {
		body.Error = res.Err.Error()
	}
	return &StepResponse{Body: body}, nil
}

// Abort stops the running pass after the current capture
func (h *ScanHandler) Abort(ctx context.Context, _ *struct{}) (*ScanStateResponse, error) {
	if err := h.controller.Abort(); err != nil {
		return nil, toHTTPError(err, "Failed to abort scan")
	}
	return &ScanStateResponse{Body: h.controller.State()}, nil
}

// Reset clears both passes and returns the controller to idle
func (h *ScanHandler) Reset(ctx context.Context, _ *struct{}) (*ScanStateResponse, error) {
	if err := h.controller.Reset(ctx); err != nil {
		return nil, toHTTPError(err, "Failed to reset scan")
	}
	return &ScanStateResponse{Body: h.controller.State()}, nil
}

// GetState returns the controller state
func (h *ScanHandler) GetState(ctx context.Context, _ *struct{}) (*ScanStateResponse, error) {
	return &ScanStateResponse{Body: h.controller.State()}, nil
}

// GetReadings returns the cached readings of one pass
func (h *ScanHandler) GetReadings(ctx context.Context, req *PassRequest) (*ReadingsResponse, error) {
	pass, err := models.ParsePassType(req.Pass)
	if err != nil {
		return nil, toHTTPError(fmt.Errorf("%w: %q", scan.ErrInvalidPass, req.Pass), "Failed to read cache")
	}

	readings, err := h.controller.CachedReadings(ctx, pass)
	if err != nil {
		return nil, toHTTPError(err, "Failed to read cached readings")
	}
	if readings == nil {
		readings = []models.PowerReading{}
	}

	resp := &ReadingsResponse{}
	resp.Body.Pass = pass
	resp.Body.Readings = readings
	return resp, nil
}

// Measure takes one reading at an arbitrary frequency
func (h *ScanHandler) Measure(ctx context.Context, req *MeasureRequest) (*MeasureResponse, error) {
	pass, err := models.ParsePassType(req.Body.Pass)
	if err != nil {
		return nil, toHTTPError(fmt.Errorf("%w: %q", scan.ErrInvalidPass, req.Body.Pass), "Failed to measure")
	}

	log.Info().Str("pass", string(pass)).Int64("frequency_hz", req.Body.FrequencyHz).Msg("Single measurement requested")
	res, err := h.controller.MeasureFrequency(ctx, pass, req.Body.FrequencyHz)
	if err != nil {
		return nil, toHTTPError(err, "Failed to measure frequency")
	}

	resp := &MeasureResponse{}
	resp.Body.Reading = res.Reading
	resp.Body.Frequency = plan.FormatHz(res.Reading.FrequencyHz)
	resp.Body.BandLabel = res.BandLabel
	resp.Body.AttenuationDB = res.AttenuationDB
	return resp, nil
}

// GetFrequencies returns the frequency plan
func (h *ScanHandler) GetFrequencies(ctx context.Context, _ *struct{}) (*FrequenciesResponse, error) {
	points := h.controller.Plan().Points()

	resp := &FrequenciesResponse{}
	resp.Body.Count = len(points)
	resp.Body.Frequencies = points
	return resp, nil
}
