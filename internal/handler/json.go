package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/kickzhub/storefront/internal/domain/address"
	"github.com/kickzhub/storefront/internal/domain/apperr"
	"github.com/kickzhub/storefront/internal/domain/order"
	"github.com/kickzhub/storefront/internal/domain/product"
)

func writeJSON(w http.ResponseWriter, code int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

func readBody(w http.ResponseWriter, r *http.Request) (*jx.Decoder, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Invalid("body", "unreadable request body")
	}
	if len(data) == 0 {
		return nil, apperr.Invalid("body", "request body required")
	}
	return jx.DecodeBytes(data), nil
}

// decodeErr reports malformed JSON as a validation failure.
func decodeErr(err error) error {
	var v *apperr.ValidationError
	if errors.As(err, &v) {
		return err
	}
	return apperr.Invalid("body", "malformed JSON: "+err.Error())
}

// readInt64 accepts a JSON number or a string holding one.
func readInt64(d *jx.Decoder, field string) (int64, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, apperr.Invalid(field, "must be an integer")
		}
		return v, nil
	case jx.Number:
		v, err := d.Int64()
		if err != nil {
			return 0, apperr.Invalid(field, "must be an integer")
		}
		return v, nil
	default:
		return 0, apperr.Invalid(field, "must be an integer")
	}
}

// readDecimal accepts a JSON number or a string holding one.
func readDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	default:
		return decimal.Zero, apperr.Invalid(field, "must be a number")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperr.Invalid(field, "must be a number")
	}
	return v, nil
}

// readOptStr reads a string, treating null as empty.
func readOptStr(d *jx.Decoder, field string) (string, error) {
	switch d.Next() {
	case jx.Null:
		return "", d.Null()
	case jx.String:
		return d.Str()
	default:
		return "", apperr.Invalid(field, "must be a string")
	}
}

func pathInt64(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, apperr.Invalid(name, "must be an integer")
	}
	return v, nil
}

func money(e *jx.Encoder, v decimal.Decimal) {
	e.Raw([]byte(v.StringFixed(2)))
}

func encodeOrder(e *jx.Encoder, o order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Int64(o.UserID) })
		e.Field("shippingAddressId", func(e *jx.Encoder) { e.Int64(o.ShippingAddressID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Int64(it.ProductID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
					})
				}
			})
		})
		e.Field("totalAmount", func(e *jx.Encoder) { money(e, o.TotalAmount) })
		e.Field("status", func(e *jx.Encoder) { e.Str(o.Status.String()) })
		e.Field("description", func(e *jx.Encoder) { e.Str(o.Description) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(o.PaymentMethod) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
	})
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.Arr(func(e *jx.Encoder) {
		for _, o := range orders {
			encodeOrder(e, o)
		}
	})
}

func encodeProducts(e *jx.Encoder, products []product.Product) {
	e.Arr(func(e *jx.Encoder) {
		for _, p := range products {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Int64(p.ID) })
				e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
				e.Field("price", func(e *jx.Encoder) { money(e, p.Price) })
			})
		}
	})
}

func encodeAddress(e *jx.Encoder, a address.ShippingAddress) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(a.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Int64(a.UserID) })
		e.Field("recipientName", func(e *jx.Encoder) { e.Str(a.Recipient) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(a.Phone) })
		e.Field("address", func(e *jx.Encoder) { e.Str(a.Line) })
		e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(a.CreatedAt.UTC().Format(time.RFC3339)) })
	})
}

func encodeAddresses(e *jx.Encoder, list []address.ShippingAddress) {
	e.Arr(func(e *jx.Encoder) {
		for _, a := range list {
			encodeAddress(e, a)
		}
	})
}
