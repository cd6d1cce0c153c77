package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/kickzhub/storefront/internal/domain/address"
	"github.com/kickzhub/storefront/internal/domain/product"
	"github.com/kickzhub/storefront/internal/domain/user"
)

type fixtures struct {
	Users     []user.User
	Addresses []address.ShippingAddress
	Products  []product.Product
}

// loadFixtures reads a fixture file, gunzipping it when the name ends in .gz.
func loadFixtures(path string, now time.Time) (*fixtures, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	fx, err := parseFixtures(jx.DecodeBytes(data), now)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return fx, nil
}

func parseFixtures(d *jx.Decoder, now time.Time) (*fixtures, error) {
	fx := &fixtures{}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "users":
			return d.Arr(func(d *jx.Decoder) error {
				u, err := parseUser(d)
				fx.Users = append(fx.Users, u)
				return err
			})
		case "addresses":
			return d.Arr(func(d *jx.Decoder) error {
				a, err := parseAddress(d)
				if a.CreatedAt.IsZero() {
					a.CreatedAt = now
				}
				fx.Addresses = append(fx.Addresses, a)
				return err
			})
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				p, err := parseProduct(d)
				fx.Products = append(fx.Products, p)
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return fx, nil
}

func parseUser(d *jx.Decoder) (u user.User, err error) {
	err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			u.ID, err = d.Int64()
		case "name":
			u.Name, err = d.Str()
		case "email":
			u.Email, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil && u.ID == 0 {
		err = errors.New("user without id")
	}
	return u, err
}

func parseAddress(d *jx.Decoder) (a address.ShippingAddress, err error) {
	err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			a.ID, err = d.Int64()
		case "userId":
			a.UserID, err = d.Int64()
		case "recipientName":
			a.Recipient, err = d.Str()
		case "phone":
			a.Phone, err = d.Str()
		case "address":
			a.Line, err = d.Str()
		case "city":
			a.City, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil && (a.ID == 0 || a.UserID == 0) {
		err = errors.New("address without id or userId")
	}
	return a, err
}

func parseProduct(d *jx.Decoder) (p product.Product, err error) {
	err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "id":
			id, err := d.Int64()
			p.ID = id
			return err
		case "name":
			name, err := d.Str()
			p.Name = name
			return err
		case "price":
			var raw string
			if d.Next() == jx.String {
				s, err := d.Str()
				if err != nil {
					return err
				}
				raw = s
			} else {
				n, err := d.Num()
				if err != nil {
					return err
				}
				raw = n.String()
			}
			price, err := decimal.NewFromString(raw)
			if err != nil {
				return errors.Wrapf(err, "price %q", raw)
			}
			p.Price = price
			return nil
		case "stock":
			stock, err := d.Int()
			p.Stock = stock
			return err
		default:
			return d.Skip()
		}
	})
	if err == nil && p.Stock < 0 {
		err = errors.Errorf("product %d has negative stock", p.ID)
	}
	return p, err
}
