package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/tinfoilhat/hatscore/internal/attenuation"
	"github.com/tinfoilhat/hatscore/internal/plan"
	"github.com/tinfoilhat/hatscore/internal/recorder"
	"github.com/tinfoilhat/hatscore/internal/repository"
	"github.com/tinfoilhat/hatscore/internal/storage"
	"github.com/tinfoilhat/hatscore/pkg/models"
)

// billboardTopN is how many entries per hat type the billboard shows
const billboardTopN = 10

// ResultRecorder is the part of recorder.Recorder the HTTP layer uses
type ResultRecorder interface {
	Score(ctx context.Context, p *plan.Plan) (*attenuation.Result, error)
	SaveFromCache(ctx context.Context, p *plan.Plan, contestantID int64, hatType models.HatType) (*recorder.Outcome, error)
	LastResult(ctx context.Context, contestantID int64) (*models.TestResult, []models.TestDataPoint, error)
}

// ScoreResponse is the attenuation of the cached passes
type ScoreResponse struct {
	Body *attenuation.Result
}

// SaveResultResponseBody describes a recorded test
type SaveResultResponseBody struct {
	Result         *models.TestResult     `json:"result" doc:"Stored test result"`
	ContestantName string                 `json:"contestant_name" doc:"Contestant name"`
	DataPoints     []models.TestDataPoint `json:"data_points" doc:"Per-frequency rows, invalid ones included"`
	PreviousBest   *float64               `json:"previous_best,omitempty" doc:"Best average before this test"`
	Message        string                 `json:"message" doc:"Operator message"`
	ReportURL      string                 `json:"report_url,omitempty" doc:"Temporary download link for the archived report"`
}

// SaveResultResponse is returned after a test is recorded
type SaveResultResponse struct {
	Body SaveResultResponseBody
}

// ContestantResultsRequest addresses the results of one contestant
type ContestantResultsRequest struct {
	ID int64 `path:"id" minimum:"1" doc:"Contestant ID"`
}

// LastResultResponse is a contestant's latest test and its rows
type LastResultResponse struct {
	Body struct {
		Result     *models.TestResult     `json:"result" doc:"Most recent test result"`
		DataPoints []models.TestDataPoint `json:"data_points" doc:"Per-frequency rows"`
	}
}

// ResultHistoryResponse lists every test of one contestant
type ResultHistoryResponse struct {
	Body struct {
		Results []*models.TestResult `json:"results" doc:"Results, newest first"`
	}
}

// BillboardLatest is the most recent test shown on the display
type BillboardLatest struct {
	Result         *models.TestResult     `json:"result"`
	ContestantName string                 `json:"contestant_name"`
	DataPoints     []models.TestDataPoint `json:"data_points"`
}

// BillboardResponse is everything the public display renders
type BillboardResponse struct {
	Body struct {
		Latest  *BillboardLatest          `json:"latest,omitempty" doc:"Most recent test, absent before the first one"`
		Classic []models.LeaderboardEntry `json:"classic" doc:"Top classic hats"`
		Hybrid  []models.LeaderboardEntry `json:"hybrid" doc:"Top hybrid hats"`
	}
}

// ResultsHandler handles scoring and leaderboard HTTP requests
type ResultsHandler struct {
	plan        *plan.Plan
	recorder    ResultRecorder
	results     repository.ResultRepository
	contestants repository.ContestantRepository
	archive     storage.ReportArchive
}

// NewResultsHandler creates a new results handler. archive may be nil.
func NewResultsHandler(p *plan.Plan, rec ResultRecorder, results repository.ResultRepository, contestants repository.ContestantRepository, archive storage.ReportArchive) *ResultsHandler {
	return &ResultsHandler{
		plan:        p,
		recorder:    rec,
		results:     results,
		contestants: contestants,
		archive:     archive,
	}
}

// PreviewScore scores the cached passes without saving
func (h *ResultsHandler) PreviewScore(ctx context.Context, _ *struct{}) (*ScoreResponse, error) {
	res, err := h.recorder.Score(ctx, h.plan)
	if err != nil {
		return nil, toHTTPError(err, "Failed to compute score")
	}
	return &ScoreResponse{Body: res}, nil
}

// SaveResult scores the cached passes and records them for a contestant
func (h *ResultsHandler) SaveResult(ctx context.Context, req *models.SaveResultRequest) (*SaveResultResponse, error) {
	hatType, err := models.ParseHatType(req.Body.HatType)
	if err != nil {
		return nil, toHTTPError(fmt.Errorf("%w: %q", recorder.ErrInvalidHatType, req.Body.HatType), "Failed to save result")
	}

	log.Info().Int64("contestant_id", req.Body.ContestantID).Str("hat_type", string(hatType)).Msg("Saving test result")
	out, err := h.recorder.SaveFromCache(ctx, h.plan, req.Body.ContestantID, hatType)
	if err != nil {
		return nil, toHTTPError(err, "Failed to save result")
	}

	body := SaveResultResponseBody{
		Result:         out.Result,
		ContestantName: out.Contestant.Name,
		DataPoints:     out.DataPoints,
		PreviousBest:   out.PreviousBest,
		Message:        out.Message,
	}
	if h.archive != nil && out.ArchiveKey != "" {
		url, err := h.archive.DownloadURL(ctx, out.ArchiveKey)
		if err != nil {
			log.Warn().Err(err).Str("key", out.ArchiveKey).Msg("Failed to presign report URL")
		} else {
			body.ReportURL = url
		}
	}

	return &SaveResultResponse{Body: body}, nil
}

// GetLastResult returns the contestant's most recent test
func (h *ResultsHandler) GetLastResult(ctx context.Context, req *ContestantResultsRequest) (*LastResultResponse, error) {
	result, points, err := h.recorder.LastResult(ctx, req.ID)
	if err != nil {
		return nil, toHTTPError(err, "Failed to load last result")
	}

	resp := &LastResultResponse{}
	resp.Body.Result = result
	resp.Body.DataPoints = points
	return resp, nil
}

// GetResultHistory returns every test of a contestant
func (h *ResultsHandler) GetResultHistory(ctx context.Context, req *ContestantResultsRequest) (*ResultHistoryResponse, error) {
	if _, err := h.contestants.GetByID(ctx, req.ID); err != nil {
		return nil, toHTTPError(err, "Failed to load contestant")
	}

	results, err := h.results.GetResultsByContestant(ctx, req.ID)
	if err != nil {
		return nil, toHTTPError(err, "Failed to load results")
	}
	if results == nil {
		results = []*models.TestResult{}
	}

	resp := &ResultHistoryResponse{}
	resp.Body.Results = results
	return resp, nil
}

// GetLeaderboard ranks each contestant's best score
func (h *ResultsHandler) GetLeaderboard(ctx context.Context, req *models.LeaderboardRequest) (*models.LeaderboardResponse, error) {
	var filter *models.HatType
	if req.HatType != "" {
		hatType, err := models.ParseHatType(req.HatType)
		if err != nil {
			return nil, huma.Error400BadRequest("Invalid hat_type, expected classic or hybrid", err)
		}
		filter = &hatType
	}

	entries, err := h.results.Leaderboard(ctx, filter, req.Limit)
	if err != nil {
		return nil, toHTTPError(err, "Failed to load leaderboard")
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}

	resp := &models.LeaderboardResponse{}
	if filter != nil {
		resp.Body.HatType = string(*filter)
	}
	resp.Body.Entries = entries
	return resp, nil
}

// GetBillboard returns the latest test and the top hats of each type
func (h *ResultsHandler) GetBillboard(ctx context.Context, _ *struct{}) (*BillboardResponse, error) {
	resp := &BillboardResponse{}

	latest, err := h.results.GetLatestResult(ctx)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return nil, toHTTPError(err, "Failed to load latest result")
	default:
		contestant, err := h.contestants.GetByID(ctx, latest.ContestantID)
		if err != nil {
			return nil, toHTTPError(err, "Failed to load contestant")
		}
		points, err := h.results.GetDataPoints(ctx, latest.ID)
		if err != nil {
			return nil, toHTTPError(err, "Failed to load data points")
		}
		resp.Body.Latest = &BillboardLatest{
			Result:         latest,
			ContestantName: contestant.Name,
			DataPoints:     points,
		}
	}

	for _, hatType := range []models.HatType{models.HatClassic, models.HatHybrid} {
		entries, err := h.results.Leaderboard(ctx, &hatType, billboardTopN)
		if err != nil {
			return nil, toHTTPError(err, "Failed to load leaderboard")
		}
		if entries == nil {
			entries = []models.LeaderboardEntry{}
		}
		if hatType == models.HatClassic {
			resp.Body.Classic = entries
		} else {
			resp.Body.Hybrid = entries
		}
	}

	return resp, nil
}
