package server

import (
	"github.com/mohammad-safakhou/enroller/internal/decision"
	"github.com/mohammad-safakhou/enroller/internal/ledger"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthLoginRequest represents the admin login payload.
type AuthLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}

// TriggerRunRequest starts a chain either by name or through a preset.
type TriggerRunRequest struct {
	ChainName         string            `json:"chain_name"`
	Preset            string            `json:"preset"`
	TriggerEmail      string            `json:"trigger_email"`
	SourceID          string            `json:"source_id"`
	FolderID          string            `json:"folder_id"`
	FirstStepInput    string            `json:"first_step_input"`
	StartingVariables map[string]string `json:"starting_variables"`
}

// TriggerRunResponse reports the recorded run. Error is set when the
// outbound call failed; the run is still returned.
type TriggerRunResponse struct {
	Run           ledger.AutomationRun `json:"run"`
	RunIdentifier string               `json:"run_identifier,omitempty"`
	Strategy      string               `json:"strategy,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// RunListResponse wraps a page of runs.
type RunListResponse struct {
	Runs  []ledger.AutomationRun `json:"runs"`
	Count int                    `json:"count"`
}

// DeletedResponse reports how many records a destructive call removed.
type DeletedResponse struct {
	Deleted int64 `json:"deleted"`
}

// DecisionResponse is the parsed review of a run's correlated content.
type DecisionResponse struct {
	RunID    string          `json:"run_id"`
	Passed   int             `json:"passed"`
	Failed   int             `json:"failed"`
	Decision decision.Record `json:"decision"`
}

// CreatePresetRequest registers a chain preset.
type CreatePresetRequest struct {
	Name      string `json:"name"`
	ChainName string `json:"chain_name"`
}

// IngressResponse is returned by both callback endpoints.
type IngressResponse struct {
	Status string `json:"status"`
}
