package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
)

type memStore struct {
	rows []domain.ActivityRow
}

func (m *memStore) Append(_ context.Context, row domain.ActivityRow) error {
	m.rows = append(m.rows, row)
	return nil
}

func (m *memStore) ListRange(_ context.Context, since, until time.Time) ([]domain.ActivityRow, error) {
	var out []domain.ActivityRow
	for _, r := range m.rows {
		if !r.Timestamp.Before(since) && r.Timestamp.Before(until) {
			out = append(out, r)
		}
	}
	return out, nil
}

type memBlob struct {
	key         string
	contentType string
	data        []byte
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	m.key = path
	m.contentType = contentType
	b, err := io.ReadAll(data)
	m.data = b
	return err
}

func TestArchiveDay(t *testing.T) {
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	store := &memStore{rows: []domain.ActivityRow{
		{Timestamp: day.Add(-time.Minute), Event: domain.EventHeartbeat}, // previous day
		{Timestamp: day.Add(time.Hour), Event: domain.EventPaperBuy, Ticker: "A"},
		{Timestamp: day.Add(23 * time.Hour), Event: domain.EventSettle, Ticker: "A"},
		{Timestamp: day.Add(25 * time.Hour), Event: domain.EventHeartbeat}, // next day
	}}
	blob := &memBlob{}
	a := NewArchiver(store, blob, "archives", slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := a.ArchiveDay(context.Background(), day); err != nil {
		t.Fatalf("ArchiveDay: %v", err)
	}

	if blob.key != "archives/activity-2026-08-30.csv" {
		t.Errorf("key = %q", blob.key)
	}
	if blob.contentType != "text/csv" {
		t.Errorf("content type = %q", blob.contentType)
	}

	records, err := csv.NewReader(bytes.NewReader(blob.data)).ReadAll()
	if err != nil {
		t.Fatalf("parse archive: %v", err)
	}
	if len(records) != 3 { // header + the two in-range rows
		t.Fatalf("records = %d, want 3", len(records))
	}
	if records[1][columnIndex(t, "event")] != "PAPER_BUY" ||
		records[2][columnIndex(t, "event")] != "SETTLE" {
		t.Errorf("archived events = %q, %q", records[1][1], records[2][1])
	}
}

func TestArchiveDaySkipsEmptyDay(t *testing.T) {
	blob := &memBlob{}
	a := NewArchiver(&memStore{}, blob, "archives", slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := a.ArchiveDay(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("ArchiveDay: %v", err)
	}
	if blob.key != "" {
		t.Errorf("unexpected upload %q for empty day", blob.key)
	}
}
