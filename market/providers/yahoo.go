package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"factorlab/market"
)

// DefaultYahooURL is the root of the Yahoo Finance chart API.
const DefaultYahooURL = "https://query1.finance.yahoo.com"

// YahooProvider fetches split- and dividend-adjusted daily closes.
type YahooProvider struct {
	httpSource
}

func NewYahooProvider(opts ...Option) *YahooProvider {
	return &YahooProvider{httpSource: newHTTPSource("yahoo", DefaultYahooURL, opts)}
}

func (yp *YahooProvider) Name() string {
	return yp.name
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol    string `json:"symbol"`
				GMTOffset int64  `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchPrices requests daily bars with includeAdjustedClose. The end date is
// inclusive.
func (yp *YahooProvider) FetchPrices(ctx context.Context, symbol string, start, end time.Time) ([]market.PricePoint, error) {
	params := url.Values{}
	params.Set("period1", fmt.Sprint(start.Unix()))
	params.Set("period2", fmt.Sprint(end.AddDate(0, 0, 1).Unix()))
	params.Set("interval", "1d")
	params.Set("events", "div,splits")
	params.Set("includeAdjustedClose", "true")
	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", yp.baseURL, url.PathEscape(symbol), params.Encode())

	body, err := yp.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var result chartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, newError(ErrBadResponse, yp.name, "decode chart", err)
	}
	if e := result.Chart.Error; e != nil {
		return nil, newError(ErrNoData, yp.name, fmt.Sprintf("%s: %s", symbol, e.Description), nil)
	}
	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.AdjClose) == 0 {
		return nil, newError(ErrNoData, yp.name, symbol, nil)
	}

	r := result.Chart.Result[0]
	closes := r.Indicators.AdjClose[0].AdjClose
	if len(closes) != len(r.Timestamp) {
		return nil, newError(ErrBadResponse, yp.name,
			fmt.Sprintf("%s: %d timestamps but %d closes", symbol, len(r.Timestamp), len(closes)), nil)
	}

	points := make([]market.PricePoint, 0, len(closes))
	for i, ts := range r.Timestamp {
		if closes[i] == nil {
			continue
		}
		// exchange-local trading date
		local := time.Unix(ts+r.Meta.GMTOffset, 0).UTC()
		date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
		if !inRange(date, start, end) {
			continue
		}
		points = append(points, market.PricePoint{Symbol: symbol, Date: date, AdjClose: *closes[i]})
	}
	if len(points) == 0 {
		return nil, newError(ErrNoData, yp.name, symbol, nil)
	}
	return points, nil
}
