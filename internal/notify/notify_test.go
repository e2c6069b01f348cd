package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFeedbackMessageEscapesViewerInput(t *testing.T) {
	message, err := FeedbackMessage(FeedbackNotice{
		To:            "owner@example.com",
		TripName:      "Italy",
		ActivityTitle: "Colosseum",
		ViewerName:    "<script>alert(1)</script>",
		Liked:         true,
		Comment:       "Loved <b>it</b>",
		ReportURL:     "https://plantrip.example/trips/t1/feedback",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(message.HTML, "<script>") || strings.Contains(message.HTML, "<b>it</b>") {
		t.Fatalf("viewer input was not escaped: %s", message.HTML)
	}
	if !strings.Contains(message.HTML, "liked") {
		t.Fatalf("expected sentiment in body: %s", message.HTML)
	}
	if message.To != "owner@example.com" {
		t.Fatalf("unexpected recipient %q", message.To)
	}
	if message.Subject != "<script>alert(1)</script> liked Colosseum in Italy" {
		t.Fatalf("unexpected subject %q", message.Subject)
	}
}

func TestFeedbackMessageDefaultsAnonymousViewer(t *testing.T) {
	message, err := FeedbackMessage(FeedbackNotice{To: "o@example.com", TripName: "Japan", ActivityTitle: "Temple"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if message.Subject != "Someone disliked Temple in Japan" {
		t.Fatalf("unexpected subject %q", message.Subject)
	}
	if strings.Contains(message.HTML, "blockquote") || strings.Contains(message.HTML, "href") {
		t.Fatalf("empty comment and link must be omitted: %s", message.HTML)
	}
}

func TestResendSenderPostsPayload(t *testing.T) {
	var received resendPayload
	var authorization string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"email-1"}`))
	}))
	defer server.Close()

	sender, err := NewResendSender(ResendConfig{APIKey: "re_test", From: "PlanTrip <noreply@plantrip.example>", Endpoint: server.URL})
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	if err := sender.Send(context.Background(), Message{To: "owner@example.com", Subject: "hi", HTML: "<p>hi</p>"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if authorization != "Bearer re_test" {
		t.Fatalf("unexpected authorization header %q", authorization)
	}
	if len(received.To) != 1 || received.To[0] != "owner@example.com" || received.From == "" || received.HTML != "<p>hi</p>" {
		t.Fatalf("unexpected payload %+v", received)
	}
}

func TestResendSenderReportsRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	sender, err := NewResendSender(ResendConfig{APIKey: "bad", From: "noreply@plantrip.example", Endpoint: server.URL})
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	err = sender.Send(context.Background(), Message{To: "owner@example.com"})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestNewResendSenderRequiresConfiguration(t *testing.T) {
	if _, err := NewResendSender(ResendConfig{From: "a@b.c"}); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := NewResendSender(ResendConfig{APIKey: "k"}); err == nil {
		t.Fatalf("expected missing sender error")
	}
}

type recordingSender struct {
	mu       sync.Mutex
	messages []Message
	fail     bool
}

func (r *recordingSender) Send(_ context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	if r.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func TestDispatcherDeliversQueuedMessagesBeforeShutdown(t *testing.T) {
	sender := &recordingSender{}
	dispatcher := NewDispatcher(DispatcherConfig{Sender: sender, Workers: 3})

	for index := 0; index < 10; index++ {
		dispatcher.Dispatch(context.Background(), Message{To: "owner@example.com"})
	}
	dispatcher.Shutdown()

	if len(sender.messages) != 10 {
		t.Fatalf("expected 10 deliveries, got %d", len(sender.messages))
	}
}

func TestDispatcherLogsFailuresAndDropsAfterShutdown(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sender := &recordingSender{fail: true}
	dispatcher := NewDispatcher(DispatcherConfig{Sender: sender, Workers: 1, Timeout: time.Second, Logger: zap.New(core)})

	dispatcher.Dispatch(context.Background(), Message{To: "owner@example.com", Subject: "s"})
	dispatcher.Shutdown()
	dispatcher.Dispatch(context.Background(), Message{To: "late@example.com"})
	dispatcher.Shutdown()

	if got := logs.FilterMessage("email delivery failed").Len(); got != 1 {
		t.Fatalf("expected one failure log, got %d", got)
	}
	if got := logs.FilterMessage("email dropped during shutdown").Len(); got != 1 {
		t.Fatalf("expected one drop log, got %d", got)
	}
	if len(sender.messages) != 1 {
		t.Fatalf("expected a single delivery attempt, got %d", len(sender.messages))
	}
}

func TestLogSenderNeverFails(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	if err := (LogSender{Logger: zap.New(core)}).Send(context.Background(), Message{To: "x@example.com"}); err != nil {
		t.Fatalf("log sender failed: %v", err)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected one log entry, got %d", logs.Len())
	}
}
