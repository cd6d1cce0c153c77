// Package revenue projects persisted orders into revenue totals per calendar
// day and per month. Every call recomputes from the full order set.
package revenue

import (
	"cmp"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DayLayout is the key format of ByDay.
const DayLayout = "2006-01-02"

// Entry is the slice of an order the aggregation needs.
type Entry struct {
	CreatedAt   time.Time
	TotalAmount decimal.Decimal
}

// Source streams the revenue-relevant fields of every order.
type Source interface {
	RevenueEntries(ctx context.Context) ([]Entry, error)
}

// Aggregator buckets order totals by the calendar of a fixed location.
type Aggregator struct {
	src Source
	loc *time.Location
}

// NewAggregator returns an Aggregator. A nil location means UTC.
func NewAggregator(src Source, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{src: src, loc: loc}
}

// ByDay sums order totals per calendar day, keyed "YYYY-MM-DD".
func (a *Aggregator) ByDay(ctx context.Context) (map[string]decimal.Decimal, error) {
	return a.group(ctx, func(t time.Time) string {
		return t.Format(DayLayout)
	})
}

// ByMonth sums order totals per month, keyed like "MARCH 2025".
func (a *Aggregator) ByMonth(ctx context.Context) (map[string]decimal.Decimal, error) {
	return a.group(ctx, MonthLabel)
}

// MonthLabel renders the month bucket label of t.
func MonthLabel(t time.Time) string {
	return strings.ToUpper(t.Month().String()) + " " + strconv.Itoa(t.Year())
}

// CompareMonthLabels orders two MonthLabel keys chronologically. Keys that
// are not month labels sort after those that are, by string.
func CompareMonthLabels(a, b string) int {
	ma, okA := monthIndex(a)
	mb, okB := monthIndex(b)
	switch {
	case okA && okB:
		return cmp.Compare(ma, mb)
	case okA:
		return -1
	case okB:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// monthIndex maps "MARCH 2025" to year*12 + month.
func monthIndex(label string) (int, bool) {
	name, year, ok := strings.Cut(label, " ")
	if !ok {
		return 0, false
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return 0, false
	}
	for m := time.January; m <= time.December; m++ {
		if strings.ToUpper(m.String()) == name {
			return y*12 + int(m) - 1, true
		}
	}
	return 0, false
}

func (a *Aggregator) group(ctx context.Context, key func(time.Time) string) (map[string]decimal.Decimal, error) {
	entries, err := a.src.RevenueEntries(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load revenue entries")
	}

	out := make(map[string]decimal.Decimal)
	for _, e := range entries {
		k := key(e.CreatedAt.In(a.loc))
		out[k] = out[k].Add(e.TotalAmount)
	}
	return out, nil
}
