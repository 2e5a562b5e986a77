package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/eddiefleurent/chainlens/internal/pricing"
)

const defaultHTTPTimeout = 30 * time.Second

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API error %d: %s", e.StatusCode, e.Body)
}

// HTTPProvider talks to a chain-data REST API.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates a provider against the given endpoint.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return NewHTTPProviderWithClient(baseURL, apiKey, &http.Client{Timeout: defaultHTTPTimeout})
}

// NewHTTPProviderWithClient creates a provider with a custom HTTP client.
func NewHTTPProviderWithClient(baseURL, apiKey string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTPProvider{baseURL: baseURL, apiKey: apiKey, client: client}
}

type quoteResponse struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	PrevClose float64 `json:"prev_close"`
}

type expirationsResponse struct {
	Expirations []string `json:"expirations"`
}

type chainContract struct {
	Symbol            string  `json:"symbol"`
	Strike            float64 `json:"strike"`
	Expiration        string  `json:"expiration"`
	Type              string  `json:"type"`
	Bid               float64 `json:"bid"`
	Ask               float64 `json:"ask"`
	Last              float64 `json:"last"`
	Volume            int64   `json:"volume"`
	OpenInterest      int64   `json:"open_interest"`
	Delta             float64 `json:"delta"`
	Gamma             float64 `json:"gamma"`
	Theta             float64 `json:"theta"`
	Vega              float64 `json:"vega"`
	Rho               float64 `json:"rho"`
	ImpliedVolatility float64 `json:"implied_volatility"`
}

type chainResponse struct {
	Symbol     string          `json:"symbol"`
	Underlying float64         `json:"underlying"`
	Contracts  []chainContract `json:"contracts"`
}

type historyResponse struct {
	Bars []struct {
		Date  string  `json:"date"`
		Open  float64 `json:"open"`
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
		Close float64 `json:"close"`
	} `json:"bars"`
}

// GetUnderlying applies the two-tier freshness policy: the realtime last
// trade when present, otherwise the previous close.
func (p *HTTPProvider) GetUnderlying(ctx context.Context, symbol string) (Underlying, error) {
	var resp quoteResponse
	if err := p.get(ctx, "/v1/quote", url.Values{"symbol": {symbol}}, &resp); err != nil {
		return Underlying{}, err
	}
	if resp.Last > 0 {
		return Underlying{Symbol: symbol, Price: resp.Last, Source: SourceRealtime}, nil
	}
	if resp.PrevClose > 0 {
		return Underlying{Symbol: symbol, Price: resp.PrevClose, Source: SourcePreviousClose}, nil
	}
	return Underlying{}, fmt.Errorf("no usable price for %s", symbol)
}

// GetExpirations lists expiration dates for a symbol.
func (p *HTTPProvider) GetExpirations(ctx context.Context, symbol string) ([]string, error) {
	var resp expirationsResponse
	if err := p.get(ctx, "/v1/expirations", url.Values{"symbol": {symbol}}, &resp); err != nil {
		return nil, err
	}
	return resp.Expirations, nil
}

// GetChain fetches and validates the full chain snapshot.
func (p *HTTPProvider) GetChain(ctx context.Context, symbol string) (*models.ChainSnapshot, error) {
	var resp chainResponse
	if err := p.get(ctx, "/v1/chain", url.Values{"symbol": {symbol}, "greeks": {"true"}}, &resp); err != nil {
		return nil, err
	}

	snapshot := &models.ChainSnapshot{
		Symbol:          symbol,
		UnderlyingPrice: resp.Underlying,
		Expirations:     make(map[string]models.ExpirationContracts),
		FetchedAt:       time.Now().UTC(),
	}
	for _, c := range resp.Contracts {
		expDate, err := models.ParseExpiration(c.Expiration)
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", symbol, err)
		}
		contract := models.OptionContract{
			Symbol:     c.Symbol,
			Strike:     c.Strike,
			Expiration: expDate,
			Type:       models.OptionType(c.Type),
			Quote: models.Quote{
				Bid:          c.Bid,
				Ask:          c.Ask,
				Last:         c.Last,
				Volume:       c.Volume,
				OpenInterest: c.OpenInterest,
			},
			Greeks: models.Greeks{
				Delta: c.Delta,
				Gamma: c.Gamma,
				Theta: c.Theta,
				Vega:  c.Vega,
				Rho:   c.Rho,
			},
			ImpliedVolatility: c.ImpliedVolatility,
		}
		ec := snapshot.Expirations[c.Expiration]
		if contract.Type == models.OptionTypeCall {
			ec.Calls = append(ec.Calls, contract)
		} else {
			ec.Puts = append(ec.Puts, contract)
		}
		snapshot.Expirations[c.Expiration] = ec
	}

	if err := snapshot.Validate(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// GetHistory returns trailing daily bars.
func (p *HTTPProvider) GetHistory(ctx context.Context, symbol string, days int) ([]pricing.OHLCBar, error) {
	var resp historyResponse
	params := url.Values{"symbol": {symbol}, "days": {strconv.Itoa(days)}}
	if err := p.get(ctx, "/v1/history", params, &resp); err != nil {
		return nil, err
	}

	bars := make([]pricing.OHLCBar, 0, len(resp.Bars))
	for _, b := range resp.Bars {
		date, err := time.Parse(models.ExpirationDateLayout, b.Date)
		if err != nil {
			return nil, fmt.Errorf("history %s: bad date %q: %w", symbol, b.Date, err)
		}
		bars = append(bars, pricing.OHLCBar{
			Date:  date,
			Open:  b.Open,
			High:  b.High,
			Low:   b.Low,
			Close: b.Close,
		})
	}
	return bars, nil
}

func (p *HTTPProvider) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
