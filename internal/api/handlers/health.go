package handlers

import (
	"context"
	"time"

	"github.com/tinfoilhat/hatscore/internal/sampler"
	"github.com/tinfoilhat/hatscore/pkg/models"
)

// Version is reported by the health check
const Version = "1.0.0"

// probeTimeout bounds the receiver probe; Probe itself retries
const probeTimeout = 10 * time.Second

// DeviceProber checks that the receiver is attached
type DeviceProber interface {
	Probe(ctx context.Context) (sampler.DeviceInfo, error)
}

// HealthHandler reports service and receiver health
type HealthHandler struct {
	prober DeviceProber
}

// NewHealthHandler creates a health handler. prober may be nil.
func NewHealthHandler(prober DeviceProber) *HealthHandler {
	return &HealthHandler{prober: prober}
}

// Health returns "healthy" when the receiver answers, "degraded" otherwise.
// The API keeps serving results without a receiver so the status code stays 200.
func (h *HealthHandler) Health(ctx context.Context, _ *struct{}) (*models.HealthResponse, error) {
	resp := &models.HealthResponse{}
	resp.Body.Status = "healthy"
	resp.Body.Version = Version
	resp.Body.Time = time.Now()

	if h.prober == nil {
		return resp, nil
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	info, err := h.prober.Probe(ctx)
	resp.Body.Receiver = &models.ReceiverHealth{
		Connected: info.Connected,
		Serial:    info.Serial,
		Firmware:  info.Firmware,
	}
	if err != nil {
		resp.Body.Status = "degraded"
		resp.Body.Receiver.Connected = false
		resp.Body.Receiver.Error = err.Error()
	}
	return resp, nil
}
