package models

import (
	"time"
)

// Operation names an API operation class subject to independent rate limits.
type Operation string

const (
	OpUpload   Operation = "upload"
	OpDownload Operation = "download"
	OpDelete   Operation = "delete"
	OpList     Operation = "list"
)

func (o Operation) IsValid() bool {
	switch o {
	case OpUpload, OpDownload, OpDelete, OpList:
		return true
	}
	return false
}

func (o Operation) String() string {
	return string(o)
}

// Layer names the tier that produced an admission decision. Observability
// reads it to tell cheap in-process rejections from shared-tier rejections
// from degraded fail-open admissions.
type Layer string

const (
	// LayerMemory: the in-process tier decided without a shared round trip.
	LayerMemory Layer = "memory"
	// LayerShared: the shared cache tier decided authoritatively.
	LayerShared Layer = "shared"
	// LayerFallback: the shared tier was unreachable and policy decided.
	LayerFallback Layer = "fallback"
)

// Result is the outcome of a rate limit admission check.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int64     `json:"limit"`
	Remaining  int64     `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
	Layer      Layer     `json:"layer"`
}

// QuotaResult is the outcome of a monthly quota check.
type QuotaResult struct {
	Allowed   bool      `json:"allowed"`
	Ceiling   int64     `json:"ceiling"`
	Used      int64     `json:"used"`
	Remaining int64     `json:"remaining"`
	Period    string    `json:"period"`
	ResetAt   time.Time `json:"reset_at"`
	Layer     Layer     `json:"layer"`
}
