package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
)

// BlobPutter is the slice of the object-store writer the archiver uses.
type BlobPutter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// archiveAfterMidnight delays the daily run slightly so late settlement rows
// for the final session of the day are included.
const archiveAfterMidnight = 5 * time.Minute

// Archiver copies each completed UTC day of activity rows from the durable
// store to object storage as one CSV file.
type Archiver struct {
	store  domain.ActivityStore
	blob   BlobPutter
	prefix string
	log    *slog.Logger
}

func NewArchiver(store domain.ActivityStore, blob BlobPutter, prefix string, log *slog.Logger) *Archiver {
	return &Archiver{
		store:  store,
		blob:   blob,
		prefix: prefix,
		log:    log.With("component", "archiver"),
	}
}

// Run archives the previous UTC day shortly after each midnight until the
// context is cancelled. Failures are logged and retried the next day; the
// durable store still holds the rows.
func (a *Archiver) Run(ctx context.Context) error {
	for {
		now := time.Now().UTC()
		next := now.Truncate(24 * time.Hour).Add(24*time.Hour + archiveAfterMidnight)

		t := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		day := time.Now().UTC().AddDate(0, 0, -1)
		if err := a.ArchiveDay(ctx, day); err != nil {
			a.log.Error("daily archive failed", "day", day.Format("2006-01-02"), "error", err)
		}
	}
}

// ArchiveDay uploads all rows of the given UTC day as one CSV object. Days
// with no rows are skipped.
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) error {
	since := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	until := since.AddDate(0, 0, 1)

	rows, err := a.store.ListRange(ctx, since, until)
	if err != nil {
		return fmt.Errorf("audit: load day %s: %w", since.Format("2006-01-02"), err)
	}
	if len(rows) == 0 {
		a.log.Info("no rows to archive", "day", since.Format("2006-01-02"))
		return nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvColumns); err != nil {
		return fmt.Errorf("audit: encode archive header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(encodeRow(row)); err != nil {
			return fmt.Errorf("audit: encode archive row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("audit: flush archive: %w", err)
	}

	key := path.Join(a.prefix, fmt.Sprintf("activity-%s.csv", since.Format("2006-01-02")))
	if err := a.blob.Put(ctx, key, &buf, "text/csv"); err != nil {
		return fmt.Errorf("audit: upload archive: %w", err)
	}

	a.log.Info("day archived", "key", key, "rows", len(rows))
	return nil
}
