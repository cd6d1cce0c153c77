package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/kickzhub/storefront/internal/domain/apperr"
	"github.com/kickzhub/storefront/internal/domain/order"
)

func decodeCreateOrder(d *jx.Decoder) (order.CreateRequest, error) {
	var req order.CreateRequest
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "userId":
			req.UserID, err = readInt64(d, "userId")
		case "shippingAddressId":
			req.ShippingAddressID, err = readInt64(d, "shippingAddressId")
		case "totalAmount":
			req.TotalAmount, err = readDecimal(d, "totalAmount")
		case "status":
			req.Status, err = readOptStr(d, "status")
		case "description":
			req.Description, err = readOptStr(d, "description")
		case "paymentMethod":
			req.PaymentMethod, err = readOptStr(d, "paymentMethod")
		case "items":
			req.Items, err = decodeItems(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return order.CreateRequest{}, decodeErr(err)
	}
	if req.UserID == 0 {
		return order.CreateRequest{}, apperr.Invalid("userId", "required")
	}
	if req.ShippingAddressID == 0 {
		return order.CreateRequest{}, apperr.Invalid("shippingAddressId", "required")
	}
	return req, nil
}

func decodeItems(d *jx.Decoder) ([]order.Item, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var items []order.Item
	err := d.Arr(func(d *jx.Decoder) error {
		var it order.Item
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			switch string(key) {
			case "productId":
				id, err := readInt64(d, "items.productId")
				it.ProductID = id
				return err
			case "quantity":
				q, err := readInt64(d, "items.quantity")
				it.Quantity = int(q)
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	return items, err
}

func decodeStatus(d *jx.Decoder) (string, error) {
	var status string
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "status" {
			return d.Skip()
		}
		s, err := readOptStr(d, "status")
		status = s
		return err
	})
	if err != nil {
		return "", decodeErr(err)
	}
	return status, nil
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	d, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	req, err := decodeCreateOrder(d)
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.Create(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeOrder(e, *o)
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeOrder(e, *o)
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeOrders(e, list)
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userId")
	if err != nil {
		fail(w, r, err)
		return
	}
	list, err := h.orders.ListByUser(r.Context(), userID)
	if err != nil {
		fail(w, r, err)
		return
	}
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeOrders(e, list)
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) listUserProducts(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userId")
	if err != nil {
		fail(w, r, err)
		return
	}
	products, err := h.orders.ProductsByUser(r.Context(), userID)
	if err != nil {
		fail(w, r, err)
		return
	}
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeProducts(e, products)
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	d, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	status, err := decodeStatus(d)
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		fail(w, r, err)
		return
	}
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeOrder(e, *o)
	writeJSON(w, http.StatusOK, e)
}

// cancelOrder marks the order rejected. The order row is kept.
func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Cancel(r.Context(), r.PathValue("id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
