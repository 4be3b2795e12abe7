package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/tinfoilhat/hatscore/internal/repository"
	"github.com/tinfoilhat/hatscore/pkg/models"
)

// ContestantHandler handles contestant registration requests
type ContestantHandler struct {
	repo repository.ContestantRepository
}

// NewContestantHandler creates a new contestant handler
func NewContestantHandler(repo repository.ContestantRepository) *ContestantHandler {
	return &ContestantHandler{repo: repo}
}

// CreateContestant registers a contestant under a unique name
func (h *ContestantHandler) CreateContestant(ctx context.Context, req *models.CreateContestantRequest) (*models.ContestantResponse, error) {
	name := strings.TrimSpace(req.Body.Name)
	if name == "" {
		return nil, huma.Error400BadRequest("Name must not be blank", nil)
	}

	c := &models.Contestant{
		Name:        name,
		PhoneNumber: strings.TrimSpace(req.Body.PhoneNumber),
		Email:       strings.TrimSpace(req.Body.Email),
		Notes:       req.Body.Notes,
	}
	if err := h.repo.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, huma.Error409Conflict("A contestant named "+name+" already exists", err)
		}
		return nil, toHTTPError(err, "Failed to create contestant")
	}

	log.Info().Int64("contestant_id", c.ID).Str("name", c.Name).Msg("Contestant registered")
	return &models.ContestantResponse{Body: c}, nil
}

// GetContestant returns one contestant
func (h *ContestantHandler) GetContestant(ctx context.Context, req *models.GetContestantRequest) (*models.ContestantResponse, error) {
	c, err := h.repo.GetByID(ctx, req.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, huma.Error404NotFound("Contestant not found", err)
		}
		return nil, toHTTPError(err, "Failed to load contestant")
	}
	return &models.ContestantResponse{Body: c}, nil
}

// ListContestants returns every contestant
func (h *ContestantHandler) ListContestants(ctx context.Context, _ *struct{}) (*models.ListContestantsResponse, error) {
	list, err := h.repo.List(ctx)
	if err != nil {
		return nil, toHTTPError(err, "Failed to list contestants")
	}
	if list == nil {
		list = []*models.Contestant{}
	}

	resp := &models.ListContestantsResponse{}
	resp.Body.Contestants = list
	return resp, nil
}
