package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	err   error
	name  string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, title)
	return nil
}

func (f *fakeSender) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

type memLedger struct {
	mu   sync.Mutex
	rows []domain.Alert
	err  error
}

func (m *memLedger) Insert(_ context.Context, a *domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, *a)
	return nil
}

func (m *memLedger) ListRecent(context.Context, domain.ListOpts) ([]domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Alert(nil), m.rows...), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendRecordsOutcome(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	ledger := &memLedger{}
	n := New([]Sender{sender}, nil, ledger, discardLogger())

	n.Send(context.Background(), domain.EventOrderFilled, "order 1 filled")

	if len(sender.sent) != 1 || sender.sent[0] != "Mirror order filled" {
		t.Errorf("sent = %v", sender.sent)
	}
	if len(ledger.rows) != 1 {
		t.Fatalf("ledger rows = %d", len(ledger.rows))
	}
	row := ledger.rows[0]
	if row.Status != domain.AlertSent || row.EventType != domain.EventOrderFilled || row.ID == "" {
		t.Errorf("row = %+v", row)
	}
}

func TestSendFilteredEventsAreSkipped(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	ledger := &memLedger{}
	n := New([]Sender{sender}, []string{domain.EventOrderFilled, domain.EventKillSwitch}, ledger, discardLogger())

	n.Send(context.Background(), domain.EventOrderSent, "order 1 resting")

	if len(sender.sent) != 0 {
		t.Errorf("filtered event delivered: %v", sender.sent)
	}
	if len(ledger.rows) != 1 || ledger.rows[0].Status != domain.AlertSkipped {
		t.Errorf("ledger = %+v, want one skipped row", ledger.rows)
	}
}

func TestSendSenderFailureRecordsFailed(t *testing.T) {
	t.Parallel()

	broken := &fakeSender{err: errors.New("webhook down"), name: "broken"}
	healthy := &fakeSender{name: "healthy"}
	ledger := &memLedger{}
	n := New([]Sender{broken, healthy}, nil, ledger, discardLogger())

	n.Send(context.Background(), domain.EventOrderFailed, "order 1 failed")

	// The healthy sender still receives the alert.
	if len(healthy.sent) != 1 {
		t.Errorf("healthy sender sends = %v", healthy.sent)
	}
	if len(ledger.rows) != 1 || ledger.rows[0].Status != domain.AlertFailed {
		t.Errorf("ledger = %+v, want one failed row", ledger.rows)
	}
}

func TestSendNeverPanicsOnLedgerFailure(t *testing.T) {
	t.Parallel()

	n := New([]Sender{&fakeSender{}}, nil, &memLedger{err: errors.New("db down")}, discardLogger())
	n.Send(context.Background(), domain.EventOrderFilled, "order 1 filled")

	n = New(nil, nil, nil, discardLogger())
	n.Send(context.Background(), domain.EventOrderFilled, "order 1 filled")
}

func TestTelegramSender(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		decodeJSONBody(t, r, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("token123", "chat456")
	s.apiBase = srv.URL

	if err := s.Send(context.Background(), "Title", "body"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/bottoken123/sendMessage" {
		t.Errorf("path = %s", gotPath)
	}
	if gotBody["chat_id"] != "chat456" || gotBody["text"] != "*Title*\nbody" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestDiscordSenderErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid webhook", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	if err := s.Send(context.Background(), "Title", "body"); err == nil {
		t.Fatal("non-2xx response must error")
	}
}

func decodeJSONBody(t *testing.T, r *http.Request, out any) {
	t.Helper()
	defer r.Body.Close()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}
