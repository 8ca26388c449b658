package audit

import (
	"context"
	"errors"

	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
)

// Multi fans one append out to several sinks. Every sink is attempted even
// when an earlier one fails; the errors are joined.
type Multi struct {
	sinks []domain.ActivityLog
}

func NewMulti(sinks ...domain.ActivityLog) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Append(ctx context.Context, row domain.ActivityRow) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Append(ctx, row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
