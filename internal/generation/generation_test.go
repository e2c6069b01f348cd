package generation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
)

func testRequest() itinerary.GenerationRequest {
	return itinerary.GenerationRequest{
		Prompt:      "A week in Tuscany",
		TripName:    "Italy",
		CountryCode: "IT",
		StartDate:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Currency:    "EUR",
	}
}

func newProvider(t *testing.T, handler http.HandlerFunc) *Anthropic {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAnthropic(AnthropicConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	})
}

type capturedRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	System    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"messages"`
	Tools []struct {
		Name        string `json:"name"`
		InputSchema struct {
			Type     string   `json:"type"`
			Required []string `json:"required"`
		} `json:"input_schema"`
	} `json:"tools"`
	ToolChoice struct {
		Type string `json:"type"`
		Name string `json:"name"`
	} `json:"tool_choice"`
}

func writeToolUse(w http.ResponseWriter, input string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"`+defaultModel+
		`","stop_reason":"tool_use","content":[{"type":"text","text":"Here is your plan"},`+
		`{"type":"tool_use","id":"toolu_1","name":"`+toolName+`","input":`+input+`}]}`)
}

func TestAnthropicSendsForcedToolCall(t *testing.T) {
	var captured capturedRequest
	provider := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("Anthropic-Version") == "" {
			t.Errorf("missing version header")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		input, _ := json.Marshal(CannedItinerary())
		writeToolUse(w, string(input))
	})

	candidate, err := provider.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(candidate.Stops) != 2 || candidate.Stops[1].Name != "Florence" {
		t.Fatalf("unexpected stops %+v", candidate.Stops)
	}
	if len(candidate.Movements) != 1 || *candidate.Movements[0].ToStopIndex != 1 {
		t.Fatalf("unexpected movements %+v", candidate.Movements)
	}
	if captured.Model != defaultModel || captured.MaxTokens != defaultMaxTokens {
		t.Fatalf("unexpected model settings %s %d", captured.Model, captured.MaxTokens)
	}
	if captured.ToolChoice.Type != "tool" || captured.ToolChoice.Name != toolName {
		t.Fatalf("tool choice not forced: %+v", captured.ToolChoice)
	}
	if len(captured.Tools) != 1 || captured.Tools[0].Name != toolName ||
		captured.Tools[0].InputSchema.Type != "object" ||
		len(captured.Tools[0].InputSchema.Required) != 1 || captured.Tools[0].InputSchema.Required[0] != "stops" {
		t.Fatalf("unexpected tools %+v", captured.Tools)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Role != "user" ||
		len(captured.Messages[0].Content) != 1 || captured.Messages[0].Content[0].Text != "A week in Tuscany" {
		t.Fatalf("unexpected messages %+v", captured.Messages)
	}
	if len(captured.System) != 1 {
		t.Fatalf("expected one system block, got %d", len(captured.System))
	}
	for _, fragment := range []string{"Country: IT", "Start date: 2025-06-01", "Currency: EUR"} {
		if !strings.Contains(captured.System[0].Text, fragment) {
			t.Fatalf("system prompt missing %q", fragment)
		}
	}
}

func TestAnthropicCoercesLooselyTypedToolInput(t *testing.T) {
	provider := newProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		writeToolUse(w, `{
			"stops": [
				{"name": "Rome", "lng": "12.5", "lat": 41.9, "nights": 2.0, "price_per_night": "120",
				 "activities": [
					{"title": "Colosseum", "day_offset": 1.0, "duration_minutes": "90.7", "lng": "bad", "lat": 41.89, "price": null}
				 ]},
				{"name": "Florence", "lng": 11.25, "lat": "43.77", "nights": "three"}
			],
			"movements": [
				{"from_stop_index": 0.0, "to_stop_index": "1", "type": "train", "duration_minutes": 95.5},
				{"from_stop_index": "first", "to_stop_index": 1, "type": "bus"}
			]
		}`)
	})

	candidate, err := provider.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(candidate.Stops) != 2 {
		t.Fatalf("expected two stops, got %d", len(candidate.Stops))
	}
	rome := candidate.Stops[0]
	if rome.Nights != 2 || rome.Lng != 12.5 || rome.PricePerNight == nil || *rome.PricePerNight != 120 {
		t.Fatalf("unexpected coerced stop %+v", rome)
	}
	if len(rome.Activities) != 1 {
		t.Fatalf("expected one activity, got %d", len(rome.Activities))
	}
	activity := rome.Activities[0]
	if activity.DayOffset != 1 || activity.DurationMinutes == nil || *activity.DurationMinutes != 90 {
		t.Fatalf("unexpected coerced activity %+v", activity)
	}
	if activity.Lng != nil || activity.Lat == nil || *activity.Lat != 41.89 || activity.Price != nil {
		t.Fatalf("unparseable fields should be dropped: %+v", activity)
	}
	florence := candidate.Stops[1]
	if florence.Nights != 0 || florence.Lat != 43.77 {
		t.Fatalf("unexpected second stop %+v", florence)
	}
	if len(candidate.Movements) != 1 {
		t.Fatalf("expected movement with unreadable endpoint to be dropped, got %+v", candidate.Movements)
	}
	movement := candidate.Movements[0]
	if *movement.FromStopIndex != 0 || *movement.ToStopIndex != 1 || *movement.DurationMinutes != 95 {
		t.Fatalf("unexpected coerced movement %+v", movement)
	}
}

func TestAnthropicErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   apperr.Kind
		reason string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"type":"authentication_error","message":"invalid x-api-key"}}`, apperr.KindUnavailable, "invalid_api_key"},
		{"credits", http.StatusBadRequest, `{"error":{"type":"invalid_request_error","message":"Your credit balance is too low"}}`, apperr.KindUnavailable, "insufficient_credits"},
		{"bad request", http.StatusBadRequest, `{"error":{"type":"invalid_request_error","message":"max_tokens too large"}}`, apperr.KindUpstream, "request_rejected"},
		{"rate limited", http.StatusTooManyRequests, `{}`, apperr.KindUpstream, "provider_unavailable"},
		{"overloaded", 529, `{"error":{"type":"overloaded_error"}}`, apperr.KindUpstream, "provider_unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := newProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := provider.Generate(context.Background(), testRequest())
			assertAppError(t, err, tc.kind, tc.reason)
		})
	}
}

func TestAnthropicRejectsMissingToolOutput(t *testing.T) {
	provider := newProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"I cannot help"}]}`)
	})
	_, err := provider.Generate(context.Background(), testRequest())
	assertAppError(t, err, apperr.KindUpstream, "invalid_response")

	empty := newProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		writeToolUse(w, `{"stops":[]}`)
	})
	_, err = empty.Generate(context.Background(), testRequest())
	assertAppError(t, err, apperr.KindUpstream, "invalid_response")
}

func TestAnthropicWithoutKeyIsNotConfigured(t *testing.T) {
	provider := NewAnthropic(AnthropicConfig{})
	_, err := provider.Generate(context.Background(), testRequest())
	assertAppError(t, err, apperr.KindUnavailable, "not_configured")
}

func TestFixturesAnswerPrefixedPrompts(t *testing.T) {
	var calls int
	next := sourceFunc(func(context.Context, itinerary.GenerationRequest) (itinerary.Candidate, error) {
		calls++
		return itinerary.Candidate{}, nil
	})
	source := Fixtures{Next: next}

	request := testRequest()
	request.Prompt = FixturePrefix + " anything"
	candidate, err := source.Generate(context.Background(), request)
	if err != nil {
		t.Fatalf("fixture generate: %v", err)
	}
	if len(candidate.Stops) != 2 || candidate.Stops[0].Name != "Rome" || len(candidate.Movements) != 1 {
		t.Fatalf("unexpected canned itinerary %+v", candidate)
	}
	if calls != 0 {
		t.Fatalf("provider should not be called for fixture prompts")
	}

	if _, err := source.Generate(context.Background(), testRequest()); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected delegation, calls=%d", calls)
	}

	_, err = Fixtures{}.Generate(context.Background(), testRequest())
	assertAppError(t, err, apperr.KindUnavailable, "not_configured")
}

func TestLimitedCapsConcurrency(t *testing.T) {
	var inFlight, peak int32
	release := make(chan struct{})
	next := sourceFunc(func(context.Context, itinerary.GenerationRequest) (itinerary.Candidate, error) {
		current := atomic.AddInt32(&inFlight, 1)
		for {
			previous := atomic.LoadInt32(&peak)
			if current <= previous || atomic.CompareAndSwapInt32(&peak, previous, current) {
				break
			}
		}
		<-release
		atomic.AddInt32(&inFlight, -1)
		return itinerary.Candidate{}, nil
	})
	limited := NewLimited(next, 2, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = limited.Generate(context.Background(), testRequest())
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if peak > 2 {
		t.Fatalf("expected at most 2 concurrent calls, saw %d", peak)
	}
}

func TestLimitedTimesOutWhenSaturated(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	entered := make(chan struct{})
	next := sourceFunc(func(context.Context, itinerary.GenerationRequest) (itinerary.Candidate, error) {
		close(entered)
		<-block
		return itinerary.Candidate{}, nil
	})
	limited := NewLimited(next, 1, 20*time.Millisecond)

	go func() {
		_, _ = limited.Generate(context.Background(), testRequest())
	}()
	<-entered

	_, err := limited.Generate(context.Background(), testRequest())
	assertAppError(t, err, apperr.KindUnavailable, "busy")
}

type sourceFunc func(context.Context, itinerary.GenerationRequest) (itinerary.Candidate, error)

func (f sourceFunc) Generate(ctx context.Context, request itinerary.GenerationRequest) (itinerary.Candidate, error) {
	return f(ctx, request)
}

func assertAppError(t *testing.T, err error, kind apperr.Kind, reason string) {
	t.Helper()
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperr.Error, got %v", err)
	}
	if appErr.Kind() != kind || appErr.Reason() != reason {
		t.Fatalf("expected %s/%s, got %s/%s", kind, reason, appErr.Kind(), appErr.Reason())
	}
}
