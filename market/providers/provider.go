// Package providers fetches adjusted prices and risk-free yields.
package providers

import (
	"context"
	"time"

	"factorlab/market"
)

// PriceSource 价格数据源接口
type PriceSource interface {
	Name() string
	// FetchPrices returns daily adjusted closes for symbol within [start, end].
	FetchPrices(ctx context.Context, symbol string, start, end time.Time) ([]market.PricePoint, error)
}

// YieldSource 利率数据源接口
type YieldSource interface {
	Name() string
	// FetchYields returns observations of seriesID within [start, end].
	// Days without a published value carry NaN.
	FetchYields(ctx context.Context, seriesID string, start, end time.Time) ([]market.YieldPoint, error)
}

var (
	ErrProviderNotFound   = &ProviderError{Code: "provider_not_found", Message: "data provider not found"}
	ErrAllProvidersFailed = &ProviderError{Code: "all_providers_failed", Message: "all data providers failed"}
	ErrNoData             = &ProviderError{Code: "no_data", Message: "no observations returned"}
	ErrBadResponse        = &ProviderError{Code: "bad_response", Message: "unexpected response"}
)

// ProviderError 数据源错误
type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is matches on Code so that wrapped instances compare equal to the sentinels.
func (e *ProviderError) Is(target error) bool {
	t, ok := target.(*ProviderError)
	return ok && t.Code == e.Code
}

func newError(sentinel *ProviderError, provider, message string, err error) *ProviderError {
	if message == "" {
		message = sentinel.Message
	}
	return &ProviderError{Provider: provider, Code: sentinel.Code, Message: message, Err: err}
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}
