package photos

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
	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
)

const (
	opSearch       = "photos.search"
	defaultBaseURL = "https://api.unsplash.com"
	defaultTimeout = 10 * time.Second
	maxPerPage     = 30
	sourceUnsplash = "unsplash"
)

type Config struct {
	AccessKey  string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Unsplash searches landscape photos and implements itinerary.PhotoSource.
type Unsplash struct {
	accessKey string
	baseURL   string
	client    *http.Client
	logger    *zap.Logger
}

func NewUnsplash(cfg Config) *Unsplash {
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
	return &Unsplash{
		accessKey: strings.TrimSpace(cfg.AccessKey),
		baseURL:   baseURL,
		client:    client,
		logger:    logger,
	}
}

type searchResponse struct {
	Results []unsplashPhoto `json:"results"`
}

type unsplashPhoto struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	URLs   struct {
		Regular string `json:"regular"`
		Small   string `json:"small"`
		Thumb   string `json:"thumb"`
	} `json:"urls"`
	User struct {
		Name  string `json:"name"`
		Links struct {
			HTML string `json:"html"`
		} `json:"links"`
	} `json:"user"`
}

func (u *Unsplash) SearchPhotos(ctx context.Context, query string, limit int) ([]itinerary.PhotoInput, error) {
	if u.accessKey == "" {
		return nil, apperr.New(apperr.KindUnavailable, opSearch, "not_configured", nil).
			WithMessage("photo search is not configured")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation(opSearch, "missing_query", "query is required")
	}
	if limit <= 0 || limit > maxPerPage {
		limit = maxPerPage
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(limit))
	params.Set("orientation", "landscape")
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+"/search/photos?"+params.Encode(), nil)
	if err != nil {
		return nil, apperr.Internal(opSearch, "request_build_failed", err)
	}
	request.Header.Set("Authorization", "Client-ID "+u.accessKey)
	request.Header.Set("Accept-Version", "v1")

	response, err := u.client.Do(request)
	if err != nil {
		u.logger.Error("unsplash request failed", zap.Error(err))
		return nil, apperr.New(apperr.KindUpstream, opSearch, "unreachable", err).
			WithMessage("photo provider is unavailable")
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		u.logger.Warn("unsplash rejected request", zap.Int("status", response.StatusCode))
		return nil, apperr.New(apperr.KindUpstream, opSearch, "upstream_status", fmt.Errorf("status %d", response.StatusCode)).
			WithMessage("photo provider request failed")
	}

	var decoded searchResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return nil, apperr.New(apperr.KindUpstream, opSearch, "invalid_response", err)
	}

	photos := make([]itinerary.PhotoInput, 0, len(decoded.Results))
	for _, result := range decoded.Results {
		if result.URLs.Regular == "" {
			continue
		}
		width, height := result.Width, result.Height
		thumbnail := result.URLs.Small
		if thumbnail == "" {
			thumbnail = result.URLs.Thumb
		}
		photos = append(photos, itinerary.PhotoInput{
			URL:              result.URLs.Regular,
			ThumbnailURL:     thumbnail,
			Attribution:      attribution(result.User.Name),
			PhotographerName: result.User.Name,
			PhotographerURL:  result.User.Links.HTML,
			Source:           sourceUnsplash,
			Width:            &width,
			Height:           &height,
		})
		if len(photos) == limit {
			break
		}
	}
	return photos, nil
}

func attribution(photographer string) string {
	if photographer == "" {
		return "Photo on Unsplash"
	}
	return "Photo by " + photographer + " on Unsplash"
}
