package providers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"checkout-service/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func octoConfig(base string) providers.OctoConfig {
	return providers.OctoConfig{
		APIBase:     base,
		ShopID:      "12345",
		Secret:      "s3cret",
		ReturnURL:   "https://shop.example/return",
		NotifyURL:   "https://shop.example/payments/notify",
		AutoCapture: true,
		Test:        true,
		ExtraParams: map[string]interface{}{"ttl": float64(15)},
	}
}

func newOctoServer(t *testing.T, path string, response string, captured *map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, path, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOctoCreatePayment_Success(t *testing.T) {
	var body map[string]interface{}
	srv := newOctoServer(t, "/prepare_payment",
		`{"error":0,"data":{"octo_payment_UUID":"0f5e3c1a-aaaa-bbbb","octo_pay_url":"https://pay.octo.uz/x"}}`, &body)

	gw := providers.NewOctoGateway(octoConfig(srv.URL), zap.NewNop())
	res := gw.CreatePayment(context.Background(), 150000, "Order #7")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "0f5e3c1a-aaaa-bbbb", res.CorrelationID)
	assert.Equal(t, "https://pay.octo.uz/x", res.RedirectURL)
	assert.NotEmpty(t, res.ShopTransactionID)

	assert.Equal(t, float64(12345), body["octo_shop_id"])
	assert.Equal(t, float64(150000), body["total_sum"])
	assert.Equal(t, "UZS", body["currency"])
	assert.Equal(t, "ru", body["language"])
	assert.Equal(t, true, body["auto_capture"])
	assert.Equal(t, float64(15), body["ttl"])
	assert.Equal(t, res.ShopTransactionID, body["shop_transaction_id"])
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, body["init_time"])
}

func TestOctoCreatePayment_FuzzyCorrelationFallback(t *testing.T) {
	srv := newOctoServer(t, "/prepare_payment",
		`{"error":0,"octo_pay_url":"https://pay/1","data":{"PaymentUuidV2":"short","payment_uuid_alt":"abcdef123456"}}`, nil)

	gw := providers.NewOctoGateway(octoConfig(srv.URL), zap.NewNop())
	res := gw.CreatePayment(context.Background(), 100, "x")

	require.True(t, res.Success)
	assert.Equal(t, "abcdef123456", res.CorrelationID)
	assert.Equal(t, "https://pay/1", res.RedirectURL)
}

func TestOctoCreatePayment_MissingCorrelationIsNotFatal(t *testing.T) {
	srv := newOctoServer(t, "/prepare_payment", `{"error":0,"octo_pay_url":"https://pay/2"}`, nil)

	gw := providers.NewOctoGateway(octoConfig(srv.URL), zap.NewNop())
	res := gw.CreatePayment(context.Background(), 100, "x")

	assert.True(t, res.Success)
	assert.Empty(t, res.CorrelationID)
}

func TestOctoCreatePayment_ProviderError(t *testing.T) {
	srv := newOctoServer(t, "/prepare_payment", `{"error":2,"errorMessage":"Wrong secret"}`, nil)

	gw := providers.NewOctoGateway(octoConfig(srv.URL), zap.NewNop())
	res := gw.CreatePayment(context.Background(), 100, "x")

	assert.False(t, res.Success)
	assert.Equal(t, 2, res.ErrorCode)
	assert.Equal(t, "Wrong secret", res.Error)
}

func TestOctoCreatePayment_UnknownError(t *testing.T) {
	srv := newOctoServer(t, "/prepare_payment", `{"status":"weird"}`, nil)

	gw := providers.NewOctoGateway(octoConfig(srv.URL), zap.NewNop())
	res := gw.CreatePayment(context.Background(), 100, "x")

	assert.False(t, res.Success)
	assert.Equal(t, "Unknown OCTO error", res.Error)
}

func TestOctoCreatePayment_Validation(t *testing.T) {
	gw := providers.NewOctoGateway(providers.OctoConfig{ShopID: "1"}, zap.NewNop())

	res := gw.CreatePayment(context.Background(), 0, "x")
	assert.False(t, res.Success)
	assert.Equal(t, "total_sum must be positive", res.Error)

	res = gw.CreatePayment(context.Background(), 10, "x")
	assert.False(t, res.Success)
	assert.Equal(t, "Missing settings: OCTO_SECRET, OCTO_RETURN_URL, OCTO_NOTIFY_URL", res.Error)
}

func TestOctoCreatePayment_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	gw := providers.NewOctoGateway(octoConfig(srv.URL), zap.NewNop())
	res := gw.CreatePayment(context.Background(), 100, "x")

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "HTTP error")
	assert.Contains(t, res.Error, "502")
}

func TestOctoRefundPayment(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var body map[string]interface{}
		srv := newOctoServer(t, "/refund", `{"error":0}`, &body)
		gw := providers.NewOctoGateway(octoConfig(srv.URL), zap.NewNop())

		res := gw.RefundPayment(context.Background(), "uuid-123", 50000)
		assert.True(t, res.Success)
		assert.Equal(t, "uuid-123", body["octo_payment_UUID"])
		assert.Equal(t, float64(50000), body["amount"])
		assert.NotEmpty(t, body["shop_refund_id"])
	})

	t.Run("minimum refund", func(t *testing.T) {
		cfg := octoConfig("http://unused")
		cfg.USDRate = 12650.4
		gw := providers.NewOctoGateway(cfg, zap.NewNop())

		res := gw.RefundPayment(context.Background(), "uuid-123", 12000)
		assert.False(t, res.Success)
		assert.Equal(t, "Minimum refund is >= 12650 UZS (1 USD)", res.Error)
	})

	t.Run("requires correlation id", func(t *testing.T) {
		gw := providers.NewOctoGateway(octoConfig("http://unused"), zap.NewNop())
		res := gw.RefundPayment(context.Background(), "", 100)
		assert.Equal(t, "payment UUID required", res.Error)
	})

	t.Run("provider error message", func(t *testing.T) {
		srv := newOctoServer(t, "/refund", `{"error":5,"errMessage":"Refund window closed"}`, nil)
		gw := providers.NewOctoGateway(octoConfig(srv.URL), zap.NewNop())

		res := gw.RefundPayment(context.Background(), "uuid-123", 100)
		assert.False(t, res.Success)
		assert.Equal(t, "Refund window closed", res.Error)
	})
}
