package sync

import (
	"possync/internal/domain/sync"
)

// Request/Response структуры для Push
type pushInput struct {
	Body sync.SyncBatchRequest
}

type pushOutput struct {
	Body sync.SyncBatchResponse
}

// Request/Response структуры для Pull
type pullInput struct {
	Body sync.PullChangesRequest
}

type pullOutput struct {
	Body sync.PullChangesResponse
}

// Request/Response для ResolveConflict
type resolveConflictInput struct {
	Body sync.ResolveConflictRequest
}

type resolveConflictOutput struct {
	Body ResolveConflictResponse
}

type ResolveConflictResponse struct {
	Success bool `json:"success"`
}

// Request/Response для Diagnostics
type diagnosticsInput struct {
	ClientID string `query:"client_id" required:"true" minLength:"1"`
	BranchID string `query:"branch_id" required:"true" minLength:"1"`
}

type diagnosticsOutput struct {
	Body sync.DiagnosticsResponse
}
