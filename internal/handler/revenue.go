package handler

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/kickzhub/storefront/internal/domain/revenue"
)

// Day keys are ISO dates, so string order is chronological.
func (h *Handler) revenueByDay(w http.ResponseWriter, r *http.Request) {
	h.writeRevenue(w, r, h.revenue.ByDay, strings.Compare)
}

func (h *Handler) revenueByMonth(w http.ResponseWriter, r *http.Request) {
	h.writeRevenue(w, r, h.revenue.ByMonth, revenue.CompareMonthLabels)
}

// writeRevenue encodes the buckets as an object with keys in chronological
// order.
func (h *Handler) writeRevenue(
	w http.ResponseWriter,
	r *http.Request,
	load func(context.Context) (map[string]decimal.Decimal, error),
	compare func(a, b string) int,
) {
	buckets, err := load(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compare)

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		for _, k := range keys {
			e.Field(k, func(e *jx.Encoder) { money(e, buckets[k]) })
		}
	})
	writeJSON(w, http.StatusOK, e)
}
