package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/recon-monitor/internal/domain/ageing"
	"github.com/eshaffer321/recon-monitor/internal/domain/alerts"
	"github.com/eshaffer321/recon-monitor/internal/infrastructure/storage"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func testAlerts() []alerts.Alert {
	return []alerts.Alert{
		{ID: "r-INT-ch_1", Severity: alerts.SeverityCritical, Category: alerts.CategoryStripe, Title: "P0 IntegrationFailure", AffectedEntities: []string{"ch_1"}},
		{ID: "r-AMT-ch_2", Severity: alerts.SeverityHigh, Category: alerts.CategoryStripe, Title: "P1 AmountMismatch", AffectedEntities: []string{"ch_2"}},
		{ID: "r-CC-D3-cc_1", Severity: alerts.SeverityLow, Category: alerts.CategoryCC, Title: "D3 LateEntry: Uber", AffectedEntities: []string{"cc_1"}, Stage: ageing.StageD3, Audience: "user", Owner: "asha"},
		{ID: "r-CC-D30-cc_2", Severity: alerts.SeverityHigh, Category: alerts.CategoryCC, Title: "D30 NoReceipt: AWS", AffectedEntities: []string{"cc_2"}, Stage: ageing.StageD30, Audience: "finance", Owner: "ravi"},
	}
}

func TestRouting_Recipients(t *testing.T) {
	r := Routing{UserDomain: "example.com", AP: []string{"ap@example.com"}, Finance: []string{"cfo@example.com"}}

	assert.Equal(t, []string{"asha@example.com"}, r.Recipients(AudienceUser, "asha"))
	assert.Equal(t, []string{"asha@corp.test"}, r.Recipients(AudienceUser, "asha@corp.test"))
	assert.Nil(t, r.Recipients(AudienceUser, ""))
	assert.Equal(t, []string{"ap@example.com"}, r.Recipients(AudienceAP, ""))
	assert.Equal(t, []string{"cfo@example.com"}, r.Recipients(AudienceFinance, ""))
	assert.Nil(t, r.Recipients("unknown", ""))
}

func TestDispatcher_Dispatch(t *testing.T) {
	// Arrange
	rec := &recordingNotifier{}
	repo := storage.NewMockRepository()
	d := NewDispatcher(Routing{UserDomain: "example.com", Finance: []string{"cfo@example.com"}}, repo, nil, rec)

	// Act
	result, err := d.Dispatch(context.Background(), "2025-09-20", testAlerts())

	// Assert
	require.NoError(t, err)
	// critical -> finance + compliance, high -> finance + ap
	assert.Equal(t, 4, result.Digests)
	assert.Equal(t, 2, result.Reminders)
	assert.Equal(t, 0, result.Deduplicated)
	require.Len(t, rec.msgs, 6)

	first := rec.msgs[0]
	assert.Equal(t, AudienceFinance, first.Audience)
	assert.Equal(t, alerts.SeverityCritical, first.Severity)
	assert.Equal(t, "Reconciliation Alert - CRITICAL: 1 issue(s) detected", first.Subject)
	assert.Equal(t, []string{"cfo@example.com"}, first.Recipients)

	userReminder := rec.msgs[4]
	assert.Equal(t, "user", userReminder.Audience)
	assert.Equal(t, []string{"asha@example.com"}, userReminder.Recipients)
	assert.Equal(t, "[D3] D3 LateEntry: Uber", userReminder.Subject)

	assert.Equal(t, 2, repo.ReminderCount())
}

func TestDispatcher_RemindersDeduplicatedPerDay(t *testing.T) {
	rec := &recordingNotifier{}
	repo := storage.NewMockRepository()
	d := NewDispatcher(Routing{}, repo, nil, rec)
	reminders := testAlerts()[2:]

	_, err := d.Dispatch(context.Background(), "2025-09-20", reminders)
	require.NoError(t, err)

	again, err := d.Dispatch(context.Background(), "2025-09-20", reminders)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Reminders)
	assert.Equal(t, 2, again.Deduplicated)

	nextDay, err := d.Dispatch(context.Background(), "2025-09-21", reminders)
	require.NoError(t, err)
	assert.Equal(t, 2, nextDay.Reminders)
}

func TestDispatcher_FailedDeliveryNotRecorded(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("smtp down")}
	repo := storage.NewMockRepository()
	d := NewDispatcher(Routing{}, repo, nil, rec)

	result, err := d.Dispatch(context.Background(), "2025-09-20", testAlerts()[2:3])

	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, repo.ReminderCount(), "a failed reminder must be retried next run")
}

func TestWebhookNotifier(t *testing.T) {
	var got Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, 0, time.Second)
	err := n.Notify(context.Background(), Message{Audience: "ap", Subject: "hello", Alerts: payloads(testAlerts()[:1])})

	require.NoError(t, err)
	assert.Equal(t, "hello", got.Subject)
	require.Len(t, got.Alerts, 1)
	assert.Equal(t, "r-INT-ch_1", got.Alerts[0].ID)
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := NewWebhookNotifier(server.URL, 0, time.Second).Notify(context.Background(), Message{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, NewLogNotifier(nil).Notify(context.Background(), Message{Subject: "x"}))
}
