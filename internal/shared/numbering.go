package shared

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// NumberSource asks the database for the next document number.
type NumberSource func(ctx context.Context) (string, error)

// Numbering hands out document numbers, falling back to a time based value
// when the database sequence function is unavailable.
type Numbering struct {
	Prefix string
	Now    func() time.Time
	Logger *slog.Logger
}

// Next returns the database number or PREFIX-<unix millis>.
func (n Numbering) Next(ctx context.Context, source NumberSource) string {
	if source != nil {
		number, err := source(ctx)
		if err == nil && strings.TrimSpace(number) != "" {
			return number
		}
		if err != nil && n.Logger != nil {
			n.Logger.Warn("number generator unavailable, using fallback",
				slog.String("prefix", n.Prefix), slog.Any("error", err))
		}
	}
	return n.Fallback()
}

// Fallback builds the time based number.
func (n Numbering) Fallback() string {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	return fmt.Sprintf("%s-%d", n.Prefix, now().UnixMilli())
}
