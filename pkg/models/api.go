package models

import "time"

// ReceiverHealth reports whether the receiver answered a probe
type ReceiverHealth struct {
	Connected bool   `json:"connected" doc:"Receiver answered hackrf_info"`
	Serial    string `json:"serial,omitempty" doc:"Board serial number"`
	Firmware  string `json:"firmware,omitempty" doc:"Firmware version"`
	Error     string `json:"error,omitempty" doc:"Probe failure"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Body struct {
		Status   string          `json:"status" example:"healthy" doc:"Service health status"`
		Version  string          `json:"version" example:"1.0.0" doc:"API version"`
		Time     time.Time       `json:"time" doc:"Current server time"`
		Receiver *ReceiverHealth `json:"receiver,omitempty" doc:"Receiver probe result"`
	}
}

// CreateContestantRequest registers a contestant
type CreateContestantRequest struct {
	Body struct {
		Name        string `json:"name" minLength:"1" maxLength:"100" required:"true" doc:"Unique contestant name"`
		PhoneNumber string `json:"phone_number,omitempty" maxLength:"32" doc:"Contact phone number"`
		Email       string `json:"email,omitempty" maxLength:"254" doc:"Contact email"`
		Notes       string `json:"notes,omitempty" maxLength:"1000" doc:"Free-form notes"`
	}
}

// ContestantResponse returns one contestant
type ContestantResponse struct {
	Body *Contestant
}

// GetContestantRequest addresses one contestant
type GetContestantRequest struct {
	ID int64 `path:"id" minimum:"1" doc:"Contestant ID"`
}

// ListContestantsResponse returns every contestant
type ListContestantsResponse struct {
	Body struct {
		Contestants []*Contestant `json:"contestants" doc:"Contestants ordered by name"`
	}
}

// SaveResultRequest records the cached passes for a contestant
type SaveResultRequest struct {
	Body struct {
		ContestantID int64  `json:"contestant_id" minimum:"1" required:"true" doc:"Contestant being tested"`
		HatType      string `json:"hat_type,omitempty" enum:"classic,hybrid" doc:"Competition category, classic when omitted"`
	}
}

// LeaderboardRequest filters the leaderboard
type LeaderboardRequest struct {
	HatType string `query:"hat_type" doc:"Only rank results of this hat type (classic or hybrid)"`
	Limit   int    `query:"limit" minimum:"0" maximum:"1000" default:"0" doc:"Maximum rows, 0 for all"`
}

// LeaderboardResponse is the ranked list of best scores
type LeaderboardResponse struct {
	Body struct {
		HatType string             `json:"hat_type,omitempty" doc:"Applied hat type filter"`
		Entries []LeaderboardEntry `json:"entries" doc:"Best score per contestant, highest first"`
	}
}

// MessageResponse carries a plain confirmation
type MessageResponse struct {
	Body struct {
		Message string `json:"message" doc:"Confirmation message"`
	}
}
