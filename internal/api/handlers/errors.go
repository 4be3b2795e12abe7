package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/tinfoilhat/hatscore/internal/attenuation"
	"github.com/tinfoilhat/hatscore/internal/recorder"
	"github.com/tinfoilhat/hatscore/internal/repository"
	"github.com/tinfoilhat/hatscore/internal/sampler"
	"github.com/tinfoilhat/hatscore/internal/scan"
)

// toHTTPError maps domain errors onto huma status errors
func toHTTPError(err error, fallback string) error {
	switch {
	case errors.Is(err, sampler.ErrOutOfRange),
		errors.Is(err, scan.ErrInvalidPass),
		errors.Is(err, recorder.ErrInvalidHatType):
		return huma.Error400BadRequest(err.Error(), err)
	case errors.Is(err, recorder.ErrContestantNotFound),
		errors.Is(err, recorder.ErrNoResults),
		errors.Is(err, repository.ErrNotFound):
		return huma.Error404NotFound(err.Error(), err)
	case errors.Is(err, scan.ErrAlreadyScanning),
		errors.Is(err, scan.ErrNotScanning),
		errors.Is(err, scan.ErrInterrupted),
		errors.Is(err, recorder.ErrPassAborted),
		errors.Is(err, repository.ErrDuplicate):
		return huma.Error409Conflict(err.Error(), err)
	case errors.Is(err, attenuation.ErrNoValidMeasurements):
		return huma.Error422UnprocessableEntity("No frequency has both a baseline and a hat reading", err)
	case errors.Is(err, sampler.ErrHardware):
		return huma.Error503ServiceUnavailable("Receiver unavailable: "+err.Error(), err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.Error503ServiceUnavailable("Request canceled before the receiver finished", err)
	}

	log.Error().Err(err).Msg(fallback)
	return huma.Error500InternalServerError(fallback, err)
}
