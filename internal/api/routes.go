package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/tinfoilhat/hatscore/internal/api/handlers"
	"github.com/tinfoilhat/hatscore/internal/plan"
	"github.com/tinfoilhat/hatscore/internal/repository"
	"github.com/tinfoilhat/hatscore/internal/storage"
)

// Services are the components the routes call into
type Services struct {
	Plan        *plan.Plan
	Controller  handlers.ScanController
	Starter     handlers.PassStarter
	Recorder    handlers.ResultRecorder
	Results     repository.ResultRepository
	Contestants repository.ContestantRepository
	History     handlers.EventHistory
	Prober      handlers.DeviceProber // optional
	Archive     storage.ReportArchive // optional

	// Raw HTTP endpoints, mounted when set
	EventStream http.Handler
	Metrics     http.Handler
}

// RegisterRoutes sets up all API routes
func RegisterRoutes(router chi.Router, api huma.API, svc Services) {
	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(svc.Prober)
	scanHandler := handlers.NewScanHandler(svc.Controller, svc.Starter)
	resultsHandler := handlers.NewResultsHandler(svc.Plan, svc.Recorder, svc.Results, svc.Contestants, svc.Archive)
	contestantHandler := handlers.NewContestantHandler(svc.Contestants)
	eventsHandler := handlers.NewEventsHandler(svc.History)

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service and the receiver",
	}, healthHandler.Health)

	// Scan routes
	huma.Register(api, huma.Operation{
		OperationID:   "startPass",
		Method:        http.MethodPost,
		Path:          "/api/scan/{pass}/start",
		Summary:       "Start a measurement pass",
		Description:   "Clears the pass's cached readings and sweeps the frequency plan in the background",
		Tags:          []string{"Scan"},
		DefaultStatus: http.StatusAccepted,
	}, scanHandler.StartPass)

	huma.Register(api, huma.Operation{
		OperationID: "stepScan",
		Method:      http.MethodPost,
		Path:        "/api/scan/step",
		Summary:     "Measure the next frequency",
		Description: "Captures the next frequency of the running pass, or completes the pass when none remain",
		Tags:        []string{"Scan"},
	}, scanHandler.Step)

	huma.Register(api, huma.Operation{
		OperationID: "abortScan",
		Method:      http.MethodPost,
		Path:        "/api/scan/abort",
		Summary:     "Abort the running pass",
		Description: "Stops after the current capture and keeps the readings already cached",
		Tags:        []string{"Scan"},
	}, scanHandler.Abort)

	huma.Register(api, huma.Operation{
		OperationID: "resetScan",
		Method:      http.MethodPost,
		Path:        "/api/scan/reset",
		Summary:     "Reset the test cycle",
		Description: "Discards both passes and returns the controller to idle",
		Tags:        []string{"Scan"},
	}, scanHandler.Reset)

	huma.Register(api, huma.Operation{
		OperationID: "getScanState",
		Method:      http.MethodGet,
		Path:        "/api/scan/state",
		Summary:     "Get scan state",
		Description: "Returns the controller state and pass progress",
		Tags:        []string{"Scan"},
	}, scanHandler.GetState)

	huma.Register(api, huma.Operation{
		OperationID: "getCachedReadings",
		Method:      http.MethodGet,
		Path:        "/api/scan/{pass}/readings",
		Summary:     "Get cached readings",
		Description: "Returns the readings cached for one pass in ascending frequency order",
		Tags:        []string{"Scan"},
	}, scanHandler.GetReadings)

	huma.Register(api, huma.Operation{
		OperationID: "measureFrequency",
		Method:      http.MethodPost,
		Path:        "/api/scan/measure",
		Summary:     "Measure a single frequency",
		Description: "Takes one reading outside a pass; hat readings include the attenuation against the cached baseline",
		Tags:        []string{"Scan"},
	}, scanHandler.Measure)

	huma.Register(api, huma.Operation{
		OperationID: "getFrequencies",
		Method:      http.MethodGet,
		Path:        "/api/frequencies",
		Summary:     "Get the frequency plan",
		Description: "Returns the plan frequencies in measurement order",
		Tags:        []string{"Scan"},
	}, scanHandler.GetFrequencies)

	// Result routes
	huma.Register(api, huma.Operation{
		OperationID: "previewScore",
		Method:      http.MethodGet,
		Path:        "/api/results/preview",
		Summary:     "Preview the score",
		Description: "Scores the cached baseline and hat passes without saving",
		Tags:        []string{"Results"},
	}, resultsHandler.PreviewScore)

	huma.Register(api, huma.Operation{
		OperationID:   "saveResult",
		Method:        http.MethodPost,
		Path:          "/api/results",
		Summary:       "Save a test result",
		Description:   "Scores the cached passes, records them for a contestant and clears the cache",
		Tags:          []string{"Results"},
		DefaultStatus: http.StatusCreated,
	}, resultsHandler.SaveResult)

	huma.Register(api, huma.Operation{
		OperationID: "getLeaderboard",
		Method:      http.MethodGet,
		Path:        "/api/leaderboard",
		Summary:     "Get the leaderboard",
		Description: "Returns each contestant's best score, highest first",
		Tags:        []string{"Results"},
	}, resultsHandler.GetLeaderboard)

	huma.Register(api, huma.Operation{
		OperationID: "getBillboard",
		Method:      http.MethodGet,
		Path:        "/api/billboard",
		Summary:     "Get the billboard",
		Description: "Returns the latest test with its spectrum and the top hats of each type",
		Tags:        []string{"Results"},
	}, resultsHandler.GetBillboard)

	// Contestant routes
	huma.Register(api, huma.Operation{
		OperationID:   "createContestant",
		Method:        http.MethodPost,
		Path:          "/api/contestants",
		Summary:       "Register a contestant",
		Description:   "Creates a contestant with a unique name",
		Tags:          []string{"Contestants"},
		DefaultStatus: http.StatusCreated,
	}, contestantHandler.CreateContestant)

	huma.Register(api, huma.Operation{
		OperationID: "listContestants",
		Method:      http.MethodGet,
		Path:        "/api/contestants",
		Summary:     "List contestants",
		Description: "Returns every contestant ordered by name",
		Tags:        []string{"Contestants"},
	}, contestantHandler.ListContestants)

	huma.Register(api, huma.Operation{
		OperationID: "getContestant",
		Method:      http.MethodGet,
		Path:        "/api/contestants/{id}",
		Summary:     "Get a contestant",
		Tags:        []string{"Contestants"},
	}, contestantHandler.GetContestant)

	huma.Register(api, huma.Operation{
		OperationID: "getLastResult",
		Method:      http.MethodGet,
		Path:        "/api/contestants/{id}/results/last",
		Summary:     "Get a contestant's last result",
		Description: "Returns the most recent test and its per-frequency rows",
		Tags:        []string{"Contestants", "Results"},
	}, resultsHandler.GetLastResult)

	huma.Register(api, huma.Operation{
		OperationID: "getResultHistory",
		Method:      http.MethodGet,
		Path:        "/api/contestants/{id}/results",
		Summary:     "Get a contestant's results",
		Description: "Returns every test of the contestant, newest first",
		Tags:        []string{"Contestants", "Results"},
	}, resultsHandler.GetResultHistory)

	// Event routes
	huma.Register(api, huma.Operation{
		OperationID: "getRecentEvents",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Get recent events",
		Description: "Returns the events of the current test cycle for displays that poll",
		Tags:        []string{"Events"},
	}, eventsHandler.GetRecentEvents)

	if svc.EventStream != nil {
		router.Handle("/api/events/ws", svc.EventStream)
	}
	if svc.Metrics != nil {
		router.Handle("/metrics", svc.Metrics)
	}
}
