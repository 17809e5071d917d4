package contracts

import "errors"

// Analysis error taxonomy
// ⭐ SSOT: 분석 엔진의 오류 분류는 여기서만 정의
//
// All of these except ErrInvalidMetric are per-ticker data errors: the
// orchestrator records the ticker as skipped and continues the batch.
// ErrInvalidMetric indicates a configuration defect and fails the whole
// batch before any per-ticker work is scheduled.
var (
	// ErrInsufficientHistory: not enough price points in the 52-week window
	ErrInsufficientHistory = errors.New("insufficient price history")

	// ErrDataUnavailable: provider returned no usable financial record
	// (e.g. new listing with no published quarter)
	ErrDataUnavailable = errors.New("financial data unavailable")

	// ErrRateLimited: transient provider throttling, retryable with backoff
	ErrRateLimited = errors.New("provider rate limited")

	// ErrIndustryMissing: no industry classification or no comparable peers
	ErrIndustryMissing = errors.New("industry missing or no comparable peers")

	// ErrInvalidMetric: unsupported ranking metric (configuration error)
	ErrInvalidMetric = errors.New("invalid ranking metric")
)
