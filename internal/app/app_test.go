package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/kickzhub/storefront/internal/domain/address"
	"github.com/kickzhub/storefront/internal/domain/product"
	"github.com/kickzhub/storefront/internal/domain/user"
	"github.com/kickzhub/storefront/internal/storage"
)

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider { return metricnoop.NewMeterProvider() }

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func testConfig(t *testing.T, st StorageConfig) *Config {
	return &Config{
		Addr:    freeAddr(t),
		Storage: st,
		Orders: OrdersConfig{
			TotalPolicy:   "verify",
			InitialStatus: "pending",
		},
		Notify:   NotifyConfig{Workers: 1, QueueSize: 8, SendTimeout: time.Second},
		Revenue:  RevenueConfig{Timezone: "UTC"},
		CORS:     CORSConfig{Origins: []string{"*"}},
		Graceful: GracefulConfig{ShutdownTimeout: 5 * time.Second},
	}
}

// seedBackend loads the end-to-end fixture: one customer, one address and a
// product with stock 4.
func seedBackend(t *testing.T, b storage.Backend) {
	t.Helper()
	require.NoError(t, b.Seeder.Seed(t.Context(),
		[]user.User{{ID: 1, Name: "Jordan", Email: "jordan@example.com"}},
		[]address.ShippingAddress{{ID: 1, UserID: 1, Recipient: "Jordan", Line: "12 Court St", City: "Brooklyn", CreatedAt: time.Now().UTC()}},
		[]product.Product{{ID: 1, Name: "Air Runner", Price: mustDecimal("129.99"), Stock: 4}},
	))
}

// startApp runs the service until the test ends and returns its base URL.
func startApp(t *testing.T, cfg *Config) string {
	t.Helper()
	lg := zaptest.NewLogger(t)
	ctx, cancel := context.WithCancel(zctx.Base(context.Background(), lg))

	done := make(chan error, 1)
	go func() { done <- Run(ctx, lg, noopTelemetry{}, cfg) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("service did not stop")
		}
	})

	base := "http://" + cfg.Addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/readyz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond)
	return base
}

func send(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func stringField(t *testing.T, body, name string) string {
	t.Helper()
	var out string
	require.NoError(t, jx.DecodeStr(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != name {
			return d.Skip()
		}
		raw, err := d.Raw()
		out = strings.Trim(raw.String(), `"`)
		return err
	}))
	return out
}

// checkout exercises the full order flow against a running service whose
// backend holds the seedBackend fixture.
func checkout(t *testing.T, base string) {
	const threeRunners = `{"userId":1,"shippingAddressId":1,"items":[{"productId":1,"quantity":3}],"totalAmount":"389.97","paymentMethod":"card"}`

	// Two checkouts of 3 against stock 4: exactly one wins.
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes []int
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, _ := send(t, http.MethodPost, base+"/api/orders", threeRunners)
			mu.Lock()
			codes = append(codes, code)
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.ElementsMatch(t, []int{http.StatusOK, http.StatusConflict}, codes)

	code, body := send(t, http.MethodGet, base+"/api/users/1/orders", "")
	require.Equal(t, http.StatusOK, code)
	var ids []string
	require.NoError(t, jx.DecodeStr(body).Arr(func(d *jx.Decoder) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		ids = append(ids, stringField(t, raw.String(), "id"))
		return nil
	}))
	require.Len(t, ids, 1)

	code, body = send(t, http.MethodGet, base+"/api/revenue/monthly", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `:389.97}`)

	code, _ = send(t, http.MethodDelete, base+"/api/orders/"+ids[0], "")
	require.Equal(t, http.StatusNoContent, code)

	code, body = send(t, http.MethodGet, base+"/api/orders/"+ids[0], "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "rejected", stringField(t, body, "status"))

	// Cancelling keeps stock reserved: one unit is left.
	code, _ = send(t, http.MethodPost, base+"/api/orders",
		`{"userId":1,"shippingAddressId":1,"items":[{"productId":1,"quantity":2}],"totalAmount":"259.98"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = send(t, http.MethodDelete, base+"/api/addresses/1", "")
	assert.Equal(t, http.StatusConflict, code)

	code, body = send(t, http.MethodGet, base+"/livez", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", stringField(t, body, "status"))
}

func TestRun_SQLite(t *testing.T) {
	st := StorageConfig{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "storefront.db")}

	b, err := OpenBackend(t.Context(), st)
	require.NoError(t, err)
	seedBackend(t, b)
	require.NoError(t, b.Close())

	checkout(t, startApp(t, testConfig(t, st)))
}

func TestRun_BadStorage(t *testing.T) {
	cfg := testConfig(t, StorageConfig{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "missing", "x.db")})
	err := Run(t.Context(), zaptest.NewLogger(t), noopTelemetry{}, cfg)
	require.Error(t, err)
}
