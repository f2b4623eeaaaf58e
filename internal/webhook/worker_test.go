package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Barsa-M/accident-reporting-sub000/internal/config"
	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T, url string) *Worker {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	cfg := &config.Config{
		WebhookURL:        url,
		WebhookSecret:     "secret",
		WebhookTimeout:    time.Second,
		WebhookMaxRetries: 3,
		WebhookBaseDelay:  time.Millisecond,
	}
	return NewWorker(nil, logger, cfg)
}

func testEvent() (Event, string) {
	event := EventFromNotification(&models.Notification{
		ID:          uuid.New(),
		IncidentID:  uuid.New(),
		Recipient:   models.RecipientResponder,
		RecipientID: uuid.NewString(),
		Event:       models.EventAssignment,
		Status:      models.StatusAssigned,
		CreatedAt:   time.Now().UTC(),
	})
	payload, _ := json.Marshal(event)
	return event, string(payload)
}

func TestWorker_Deliver_SignsPayload(t *testing.T) {
	event, payload := testEvent()

	var gotSignature, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotSignature = r.Header.Get("X-Webhook-Signature")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	worker := newTestWorker(t, srv.URL)
	ok := worker.Deliver(context.Background(), event, payload)

	require.True(t, ok)
	assert.Equal(t, payload, gotBody)
	assert.Equal(t, generateHMACSHA256(payload, "secret"), gotSignature)
}

func TestWorker_Deliver_RetriesOnServerError(t *testing.T) {
	event, payload := testEvent()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	worker := newTestWorker(t, srv.URL)
	ok := worker.Deliver(context.Background(), event, payload)

	require.True(t, ok)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWorker_Deliver_GivesUp(t *testing.T) {
	event, payload := testEvent()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	worker := newTestWorker(t, srv.URL)
	ok := worker.Deliver(context.Background(), event, payload)

	assert.False(t, ok)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWorker_Deliver_NoURL(t *testing.T) {
	event, payload := testEvent()
	worker := newTestWorker(t, "")

	assert.False(t, worker.Deliver(context.Background(), event, payload))
}

type stubPublisher struct {
	err    error
	events []Event
}

func (s *stubPublisher) Publish(_ context.Context, event Event) error {
	s.events = append(s.events, event)
	return s.err
}

func TestFanoutPublisher_PublishesToAll(t *testing.T) {
	event, _ := testEvent()
	ok := &stubPublisher{}
	failing := &stubPublisher{err: errors.New("bus down")}

	err := NewFanoutPublisher(ok, failing).Publish(context.Background(), event)

	require.Error(t, err)
	assert.ErrorContains(t, err, "bus down")
	assert.Len(t, ok.events, 1)
	assert.Len(t, failing.events, 1)
}

func TestNATSPublisher_Subject(t *testing.T) {
	event, _ := testEvent()
	p := NewNATSPublisher(nil, "dispatch.notifications")

	assert.Equal(t, "dispatch.notifications.assignment", p.Subject(event))
	assert.ErrorContains(t, p.Publish(context.Background(), event), "not connected")
}
