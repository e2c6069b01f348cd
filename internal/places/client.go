package places

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
)

const (
	defaultBaseURL = "https://api.opentripmap.com/0.1/en/places"
	defaultTimeout = 10 * time.Second

	opAutosuggest = "places.autosuggest"
	opRadius      = "places.radius"
	opGeoname     = "places.geoname"
	opDetail      = "places.detail"

	maxXIDLength = 100
)

// Config configures the OpenTripMap client. An empty APIKey leaves the
// client constructed but every lookup fails as not configured.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client looks places up through OpenTripMap.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}
}

// Point is a WGS84 coordinate as OpenTripMap reports it.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Suggestion is one autosuggest or radius hit.
type Suggestion struct {
	XID      string  `json:"xid"`
	Name     string  `json:"name"`
	Dist     float64 `json:"dist,omitempty"`
	Rate     int     `json:"rate"`
	OSM      string  `json:"osm,omitempty"`
	Wikidata string  `json:"wikidata,omitempty"`
	Kinds    string  `json:"kinds"`
	Point    Point   `json:"point"`
}

// Geoname is the settlement matched by name.
type Geoname struct {
	Name       string  `json:"name"`
	Country    string  `json:"country"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Population int     `json:"population"`
	Timezone   string  `json:"timezone"`
	Status     string  `json:"status"`
}

// Place is the detail record for a single xid.
type Place struct {
	XID       string            `json:"xid"`
	Name      string            `json:"name"`
	Kinds     string            `json:"kinds"`
	Rate      string            `json:"rate,omitempty"`
	Address   map[string]string `json:"address,omitempty"`
	URL       string            `json:"url,omitempty"`
	Wikipedia string            `json:"wikipedia,omitempty"`
	Image     string            `json:"image,omitempty"`
	Preview   *Preview          `json:"preview,omitempty"`
	Extracts  *Extracts         `json:"wikipedia_extracts,omitempty"`
	Point     Point             `json:"point"`
}

type Preview struct {
	Source string `json:"source"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type Extracts struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// AutosuggestQuery narrows an autosuggest lookup around a point.
type AutosuggestQuery struct {
	Name   string
	Lat    float64
	Lon    float64
	Radius int
	Kinds  string
	Rate   int
	Limit  int
}

// RadiusQuery lists places around a point.
type RadiusQuery struct {
	Lat    float64
	Lon    float64
	Radius int
	Kinds  string
	Rate   int
	Limit  int
}

func (c *Client) Autosuggest(ctx context.Context, query AutosuggestQuery) ([]Suggestion, error) {
	name := strings.TrimSpace(query.Name)
	if n := len([]rune(name)); n < 3 || n > 200 {
		return nil, apperr.Validation(opAutosuggest, "invalid_name", "name must be between 3 and 200 characters")
	}
	params, err := areaParams(opAutosuggest, query.Lat, query.Lon, query.Radius, query.Rate, query.Limit, 15, 50)
	if err != nil {
		return nil, err
	}
	params.Set("name", name)
	if kinds := strings.TrimSpace(query.Kinds); kinds != "" {
		params.Set("kinds", kinds)
	}
	var suggestions []Suggestion
	if err := c.get(ctx, opAutosuggest, "/autosuggest", params, &suggestions); err != nil {
		return nil, err
	}
	return suggestions, nil
}

func (c *Client) Radius(ctx context.Context, query RadiusQuery) ([]Suggestion, error) {
	params, err := areaParams(opRadius, query.Lat, query.Lon, query.Radius, query.Rate, query.Limit, 50, 200)
	if err != nil {
		return nil, err
	}
	if kinds := strings.TrimSpace(query.Kinds); kinds != "" {
		params.Set("kinds", kinds)
	}
	var suggestions []Suggestion
	if err := c.get(ctx, opRadius, "/radius", params, &suggestions); err != nil {
		return nil, err
	}
	return suggestions, nil
}

func (c *Client) Geoname(ctx context.Context, name string) (Geoname, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > 200 {
		return Geoname{}, apperr.Validation(opGeoname, "invalid_name", "name must be between 1 and 200 characters")
	}
	var result Geoname
	err := c.get(ctx, opGeoname, "/geoname", url.Values{"name": []string{name}}, &result)
	return result, err
}

func (c *Client) Detail(ctx context.Context, xid string) (Place, error) {
	xid = strings.TrimSpace(xid)
	if xid == "" || len(xid) > maxXIDLength {
		return Place{}, apperr.Validation(opDetail, "invalid_xid", "invalid xid")
	}
	var place Place
	err := c.get(ctx, opDetail, "/xid/"+url.PathEscape(xid), url.Values{}, &place)
	return place, err
}

func areaParams(operation string, lat, lon float64, radius, rate, limit, defaultLimit, maxLimit int) (url.Values, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, apperr.Validation(operation, "invalid_point", "lat/lon out of range")
	}
	if radius == 0 {
		radius = 10000
	}
	if radius < 100 || radius > 50000 {
		return nil, apperr.Validation(operation, "invalid_radius", "radius must be between 100 and 50000")
	}
	if rate < 0 || rate > 3 {
		return nil, apperr.Validation(operation, "invalid_rate", "rate must be between 0 and 3")
	}
	if limit == 0 {
		limit = defaultLimit
	}
	if limit < 1 || limit > maxLimit {
		return nil, apperr.Validation(operation, "invalid_limit", fmt.Sprintf("limit must be between 1 and %d", maxLimit))
	}
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("radius", strconv.Itoa(radius))
	params.Set("rate", strconv.Itoa(rate))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("format", "json")
	return params, nil
}

func (c *Client) get(ctx context.Context, operation, path string, params url.Values, target any) error {
	if c.apiKey == "" {
		return apperr.New(apperr.KindUnavailable, operation, "not_configured", nil).
			WithMessage("OpenTripMap API key not configured")
	}
	params.Set("apikey", c.apiKey)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return apperr.Internal(operation, "request_build_failed", err)
	}
	response, err := c.client.Do(request)
	if err != nil {
		c.logger.Error("opentripmap request failed", zap.String("operation", operation), zap.Error(err))
		return apperr.New(apperr.KindUpstream, operation, "unreachable", err).
			WithMessage("Failed to reach OpenTripMap API")
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		c.logger.Warn("opentripmap rejected request",
			zap.String("operation", operation),
			zap.Int("status", response.StatusCode),
		)
		return apperr.New(apperr.KindUpstream, operation, "upstream_status", fmt.Errorf("status %d", response.StatusCode)).
			WithMessage(fmt.Sprintf("OpenTripMap API error (HTTP %d)", response.StatusCode))
	}
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return apperr.New(apperr.KindUpstream, operation, "invalid_response", err).
			WithMessage("OpenTripMap returned an unreadable response")
	}
	return nil
}
