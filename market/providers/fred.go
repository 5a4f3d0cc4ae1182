package providers

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"factorlab/market"
)

// DefaultFREDURL is the root of the FRED graph service.
const DefaultFREDURL = "https://fred.stlouisfed.org"

const dateLayout = "2006-01-02"

// FREDProvider downloads a series as fredgraph CSV. No API key is needed.
type FREDProvider struct {
	httpSource
}

func NewFREDProvider(opts ...Option) *FREDProvider {
	return &FREDProvider{httpSource: newHTTPSource("fred", DefaultFREDURL, opts)}
}

func (fp *FREDProvider) Name() string {
	return fp.name
}

// FetchYields returns the daily observations of seriesID. FRED marks
// holidays with "." which becomes NaN.
func (fp *FREDProvider) FetchYields(ctx context.Context, seriesID string, start, end time.Time) ([]market.YieldPoint, error) {
	params := url.Values{}
	params.Set("id", seriesID)
	params.Set("cosd", start.Format(dateLayout))
	params.Set("coed", end.Format(dateLayout))
	body, err := fp.get(ctx, fmt.Sprintf("%s/graph/fredgraph.csv?%s", fp.baseURL, params.Encode()))
	if err != nil {
		return nil, err
	}

	df := readStrings(body)
	if df.Err != nil {
		return nil, newError(ErrBadResponse, fp.name, "parse csv", df.Err)
	}
	names := df.Names()
	if len(names) < 2 {
		return nil, newError(ErrBadResponse, fp.name, fmt.Sprintf("expected date and value columns, got %v", names), nil)
	}

	dates := df.Col(names[0]).Records()
	values := df.Col(names[1]).Float()
	points := make([]market.YieldPoint, 0, len(dates))
	for i, raw := range dates {
		d, err := time.Parse(dateLayout, strings.TrimSpace(raw))
		if err != nil {
			return nil, newError(ErrBadResponse, fp.name, fmt.Sprintf("row %d date %q", i+1, raw), err)
		}
		if !inRange(d, start, end) {
			continue
		}
		points = append(points, market.YieldPoint{Date: d, Value: values[i]})
	}
	if len(points) == 0 {
		return nil, newError(ErrNoData, fp.name, seriesID, nil)
	}
	return points, nil
}

// readStrings loads a CSV with every column kept as text; numeric conversion
// happens per column so that placeholders such as "." become NaN.
func readStrings(body []byte) dataframe.DataFrame {
	return dataframe.ReadCSV(bytes.NewReader(body),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
}
