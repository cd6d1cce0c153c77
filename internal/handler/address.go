package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/kickzhub/storefront/internal/domain/address"
)

func decodeAddress(d *jx.Decoder) (address.AddRequest, error) {
	var req address.AddRequest
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "userId":
			req.UserID, err = readInt64(d, "userId")
		case "recipientName":
			req.Recipient, err = readOptStr(d, "recipientName")
		case "phone":
			req.Phone, err = readOptStr(d, "phone")
		case "address":
			req.Line, err = readOptStr(d, "address")
		case "city":
			req.City, err = readOptStr(d, "city")
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return address.AddRequest{}, decodeErr(err)
	}
	return req, nil
}

func (h *Handler) addAddress(w http.ResponseWriter, r *http.Request) {
	d, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	req, err := decodeAddress(d)
	if err != nil {
		fail(w, r, err)
		return
	}
	a, err := h.addresses.Add(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeAddress(e, *a)
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request) {
	list, err := h.addresses.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeAddresses(e, list)
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) listUserAddresses(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userId")
	if err != nil {
		fail(w, r, err)
		return
	}
	list, err := h.addresses.ListByUser(r.Context(), userID)
	if err != nil {
		fail(w, r, err)
		return
	}
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeAddresses(e, list)
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) deleteAddress(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.addresses.Delete(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
