// Package entsoe fetches day-ahead electricity spot prices from the ENTSO-E
// transparency platform and converts them into hourly öre/kWh series on local
// wall-clock time. Transient upstream failures degrade to a flat fallback
// price instead of failing the caller.
package entsoe

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/devskill-org/fleetcharge/utils"
)

const (
	// DefaultBaseURL is the ENTSO-E transparency platform API endpoint.
	DefaultBaseURL = "https://web-api.tp.entsoe.eu/api"

	// EURSEKRate is the fixed exchange rate used to convert EUR/MWh quotes.
	EURSEKRate = 11.20

	// oreKWhPerEURMWh converts EUR/MWh to öre/kWh:
	// EUR/MWh * rate SEK/EUR * 100 öre/SEK / 1000 kWh/MWh.
	oreKWhPerEURMWh = EURSEKRate / 10.0

	// FallbackPriceOre is the flat öre/kWh price substituted when the API
	// cannot be reached or its response cannot be used.
	FallbackPriceOre = 120.0

	// MaxPlausiblePriceOre is the threshold above which a converted price is
	// logged as suspicious. Prices above it are kept.
	MaxPlausiblePriceOre = 800.0

	requestTimeout = 30 * time.Second
)

// AreaCodes maps Swedish bidding zones to their EIC area codes.
var AreaCodes = map[string]string{
	"SE1": "10Y1001A1001A44P",
	"SE2": "10Y1001A1001A45N",
	"SE3": "10Y1001A1001A46L",
	"SE4": "10Y1001A1001A47J",
}

// PricePoint is one hour of the spot price series, on local wall-clock time.
type PricePoint struct {
	Timestamp   time.Time `json:"timestamp"`
	PriceOreKWh float64   `json:"price_ore_kwh"`
}

// Client fetches day-ahead prices with a circuit breaker around the HTTP
// calls and an in-memory cache keyed by (area, start, end). Cached entries
// hold only real API prices, never fallback series.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	location   *time.Location
	breaker    *gobreaker.CircuitBreaker
	logger     *log.Logger

	mu    sync.Mutex
	cache map[string][]PricePoint
}

// NewClient creates a price client. An empty baseURL selects the production
// endpoint. The location decides which wall clock the hourly series uses.
func NewClient(baseURL, token string, location *time.Location, logger *log.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "entsoe",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 3 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    baseURL,
		token:      token,
		location:   location,
		breaker:    breaker,
		logger:     logger,
		cache:      make(map[string][]PricePoint),
	}
}

// FetchDayAheadPrices returns the hourly spot price series covering the local
// dates from start to end inclusive. Misconfiguration (unknown bidding zone,
// missing token) returns a *ConfigError. Every other failure is logged and
// answered with FallbackPrices, so a non-nil error always means bad config.
func (c *Client) FetchDayAheadPrices(ctx context.Context, area string, start, end time.Time) ([]PricePoint, error) {
	areaCode, ok := AreaCodes[area]
	if !ok {
		return nil, &ConfigError{Msg: fmt.Sprintf("unknown bidding zone: %q", area)}
	}
	if c.token == "" {
		return nil, &ConfigError{Msg: "ENTSO-E security token is not configured"}
	}

	key := fmt.Sprintf("%s/%s/%s", area, start.Format("20060102"), end.Format("20060102"))
	c.mu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	doc, err := c.fetchDocument(ctx, areaCode, start, end)
	if err != nil {
		c.logger.Printf("WARN: price fetch for %s failed (%v), using fallback price %.0f öre/kWh",
			area, err, FallbackPriceOre)
		return c.FallbackPrices(start, end), nil
	}

	prices := c.hourlyPrices(doc)
	if want := c.expectedHours(start, end); len(prices) != want {
		c.logger.Printf("WARN: price document for %s yielded %d of %d expected hours, using fallback price %.0f öre/kWh",
			area, len(prices), want, FallbackPriceOre)
		return c.FallbackPrices(start, end), nil
	}

	c.mu.Lock()
	c.cache[key] = prices
	c.mu.Unlock()

	return prices, nil
}

// fetchDocument performs the HTTP request through the circuit breaker and
// classifies failures into AuthError, UnavailableError and ParseError.
func (c *Client) fetchDocument(ctx context.Context, areaCode string, start, end time.Time) (*PublicationMarketDocument, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doFetch(ctx, areaCode, start, end)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &UnavailableError{Msg: "circuit breaker open, skipping API call"}
		}
		return nil, err
	}
	return result.(*PublicationMarketDocument), nil
}

func (c *Client) doFetch(ctx context.Context, areaCode string, start, end time.Time) (*PublicationMarketDocument, error) {
	query := url.Values{}
	query.Set("securityToken", c.token)
	query.Set("documentType", "A44")
	query.Set("in_Domain", areaCode)
	query.Set("out_Domain", areaCode)
	query.Set("periodStart", start.Format("20060102")+"0000")
	query.Set("periodEnd", end.Format("20060102")+"2300")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, &UnavailableError{Msg: fmt.Sprintf("error creating request: %v", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UnavailableError{Msg: fmt.Sprintf("error making request: %v", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &AuthError{Msg: "API rejected the security token (401)"}
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode >= 500:
		return nil, &UnavailableError{Msg: fmt.Sprintf("API returned status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &UnavailableError{Msg: fmt.Sprintf("unexpected status code: %d", resp.StatusCode)}
	}

	doc, err := DecodePublicationMarketDocument(resp.Body)
	if err != nil {
		return nil, &ParseError{Msg: err.Error()}
	}
	return doc, nil
}

// hourlyPrices converts a price document into a sorted hourly öre/kWh series
// on local wall-clock time. Sub-hourly points falling into the same local
// hour are coalesced with a running mean. Negative prices are clamped to 0.
func (c *Client) hourlyPrices(doc *PublicationMarketDocument) []PricePoint {
	byHour := make(map[time.Time]float64)

	for _, series := range doc.TimeSeries {
		for _, period := range series.Periods {
			resolution, known := ResolutionDuration(period.Resolution)
			if !known {
				c.logger.Printf("WARN: unknown resolution %q, assuming hourly", period.Resolution)
			}

			for _, pt := range period.Points {
				pointTime := period.TimeInterval.Start.Add(time.Duration(pt.Position-1) * resolution)
				local := pointTime.In(c.location)
				hour := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, c.location)

				ore := pt.PriceAmount * oreKWhPerEURMWh
				if prev, ok := byHour[hour]; ok {
					byHour[hour] = (prev + ore) / 2
				} else {
					byHour[hour] = ore
				}
			}
		}
	}

	prices := make([]PricePoint, 0, len(byHour))
	for hour, ore := range byHour {
		if ore < 0 {
			c.logger.Printf("negative spot price %.2f öre/kWh at %s clamped to 0", ore, hour.Format(time.RFC3339))
			ore = 0
		} else if ore > MaxPlausiblePriceOre {
			c.logger.Printf("WARN: implausible spot price %.2f öre/kWh at %s", ore, hour.Format(time.RFC3339))
		}
		prices = append(prices, PricePoint{Timestamp: hour, PriceOreKWh: round2(ore)})
	}

	sort.Slice(prices, func(i, j int) bool {
		return prices[i].Timestamp.Before(prices[j].Timestamp)
	})
	return prices
}

// expectedHours is the length of a complete hourly series covering the local
// dates from start through end inclusive.
func (c *Client) expectedHours(start, end time.Time) int {
	return (utils.DaysBetween(start.In(c.location), end.In(c.location)) + 1) * 24
}

// FallbackPrices returns a flat-price hourly series covering the local dates
// from start 00:00 through end 23:00 inclusive.
func (c *Client) FallbackPrices(start, end time.Time) []PricePoint {
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, c.location)
	until := time.Date(end.Year(), end.Month(), end.Day(), 23, 0, 0, 0, c.location)

	var prices []PricePoint
	for ts := from; !ts.After(until); ts = ts.Add(time.Hour) {
		prices = append(prices, PricePoint{Timestamp: ts, PriceOreKWh: FallbackPriceOre})
	}
	return prices
}

// ClearCache drops all cached price series.
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string][]PricePoint)
}

// Location returns the wall clock the client produces series on.
func (c *Client) Location() *time.Location {
	return c.location
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
