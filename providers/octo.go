package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultOctoAPIBase = "https://secure.octo.uz"
	octoTimeout        = 20 * time.Second
	octoInitTimeLayout = "2006-01-02 15:04:05"
)

// OctoConfig holds the merchant settings for the OCTO gateway.
type OctoConfig struct {
	APIBase     string
	ShopID      string
	Secret      string
	ReturnURL   string
	NotifyURL   string
	Language    string
	Currency    string
	AutoCapture bool
	Test        bool
	// USDRate enables the local 1 USD refund floor when positive.
	USDRate float64
	// ExtraParams are merged over the prepare_payment body.
	ExtraParams map[string]interface{}
}

// OctoGateway implements PaymentGateway against the OCTO REST API.
type OctoGateway struct {
	cfg        OctoConfig
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

func NewOctoGateway(cfg OctoConfig, logger *zap.Logger) *OctoGateway {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultOctoAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.Language == "" {
		cfg.Language = "ru"
	}
	if cfg.Currency == "" {
		cfg.Currency = "UZS"
	}
	return &OctoGateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: octoTimeout},
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func (o *OctoGateway) Name() string { return "octo" }

func (o *OctoGateway) CreatePayment(ctx context.Context, amount int64, description string) CreatePaymentResult {
	if amount <= 0 {
		return CreatePaymentResult{Error: "total_sum must be positive"}
	}
	if missing := o.missingSettings(true); len(missing) > 0 {
		return CreatePaymentResult{Error: "Missing settings: " + strings.Join(missing, ", ")}
	}

	shopTxID := o.newID()
	body := map[string]interface{}{
		"octo_shop_id":        o.shopID(),
		"octo_secret":         o.cfg.Secret,
		"shop_transaction_id": shopTxID,
		"auto_capture":        o.cfg.AutoCapture,
		"init_time":           o.now().Format(octoInitTimeLayout),
		"test":                o.cfg.Test,
		"total_sum":           float64(amount),
		"currency":            o.cfg.Currency,
		"description":         description,
		"return_url":          o.cfg.ReturnURL,
		"notify_url":          o.cfg.NotifyURL,
		"language":            o.cfg.Language,
	}
	for k, v := range o.cfg.ExtraParams {
		body[k] = v
	}

	data, err := o.post(ctx, "/prepare_payment", body)
	if err != nil {
		return CreatePaymentResult{Error: "HTTP error: " + err.Error()}
	}
	if code, ok := octoErrorCode(data); !ok || code != 0 {
		return CreatePaymentResult{
			ErrorCode: code,
			Error:     octoErrorMessage(data),
			Raw:       data,
		}
	}

	correlationID := extractCorrelationID(data)
	if correlationID == "" {
		o.logger.Warn("OCTO response carried no payment uuid; callbacks must match by shop transaction id",
			zap.String("shop_transaction_id", shopTxID))
	}
	redirect, _ := lookupString(data, "octo_pay_url")

	return CreatePaymentResult{
		Success:           true,
		ShopTransactionID: shopTxID,
		CorrelationID:     correlationID,
		RedirectURL:       redirect,
		Raw:               data,
	}
}

func (o *OctoGateway) RefundPayment(ctx context.Context, correlationID string, amount int64) RefundResult {
	if correlationID == "" {
		return RefundResult{Error: "payment UUID required"}
	}
	if amount <= 0 {
		return RefundResult{Error: "amount must be positive"}
	}
	if o.cfg.USDRate > 0 {
		minimum := int64(math.Round(o.cfg.USDRate))
		if amount < minimum {
			return RefundResult{Error: fmt.Sprintf("Minimum refund is >= %d UZS (1 USD)", minimum)}
		}
	}
	if missing := o.missingSettings(false); len(missing) > 0 {
		return RefundResult{Error: "Missing settings: " + strings.Join(missing, ", ")}
	}

	body := map[string]interface{}{
		"octo_shop_id":      o.shopID(),
		"shop_refund_id":    o.newID(),
		"octo_secret":       o.cfg.Secret,
		"octo_payment_UUID": correlationID,
		"amount":            float64(amount),
	}

	data, err := o.post(ctx, "/refund", body)
	if err != nil {
		return RefundResult{Error: "HTTP error: " + err.Error()}
	}
	if code, ok := octoErrorCode(data); !ok || code != 0 {
		return RefundResult{Error: octoErrorMessage(data), Raw: data}
	}
	return RefundResult{Success: true, Raw: data}
}

func (o *OctoGateway) missingSettings(forCreate bool) []string {
	var missing []string
	if o.cfg.ShopID == "" {
		missing = append(missing, "OCTO_SHOP_ID")
	}
	if o.cfg.Secret == "" {
		missing = append(missing, "OCTO_SECRET")
	}
	if !forCreate {
		return missing
	}
	if o.cfg.ReturnURL == "" {
		missing = append(missing, "OCTO_RETURN_URL")
	}
	if o.cfg.NotifyURL == "" {
		missing = append(missing, "OCTO_NOTIFY_URL")
	}
	return missing
}

// shopID is sent as a number when it is all digits.
func (o *OctoGateway) shopID() interface{} {
	if n, err := strconv.ParseInt(o.cfg.ShopID, 10, 64); err == nil && n >= 0 {
		return n
	}
	return o.cfg.ShopID
}

// post sends a JSON body and decodes a JSON object back. OCTO reports
// business errors inside a 200 body, so the HTTP status is only consulted
// when the body is not JSON.
func (o *OctoGateway) post(ctx context.Context, path string, body interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.APIBase+path, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	o.logger.Debug("OCTO request", zap.String("url", o.cfg.APIBase+path))
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(respBytes, &data); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	return data, nil
}

func octoErrorCode(data map[string]interface{}) (int, bool) {
	switch v := data["error"].(type) {
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

func octoErrorMessage(data map[string]interface{}) string {
	for _, key := range []string{"errMessage", "errorMessage"} {
		if s, ok := data[key].(string); ok && s != "" {
			return s
		}
	}
	return "Unknown OCTO error"
}

// lookupString reads key at the top level, then under "data".
func lookupString(data map[string]interface{}, key string) (string, bool) {
	if s, ok := data[key].(string); ok && s != "" {
		return s, true
	}
	if inner, ok := data["data"].(map[string]interface{}); ok {
		if s, ok := inner[key].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

var correlationKeys = []string{"octo_payment_UUID", "octo_payment_uuid", "payment_uuid"}

func extractCorrelationID(data map[string]interface{}) string {
	for _, key := range correlationKeys {
		if s, ok := lookupString(data, key); ok {
			return s
		}
	}

	sources := []map[string]interface{}{data}
	if inner, ok := data["data"].(map[string]interface{}); ok {
		sources = append(sources, inner)
	}
	for _, src := range sources {
		keys := make([]string, 0, len(src))
		for k := range src {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s, ok := src[k].(string)
			if !ok || len(s) < 8 {
				continue
			}
			kl := strings.ToLower(k)
			if strings.Contains(kl, "payment") && strings.Contains(kl, "uuid") {
				return s
			}
		}
	}
	return ""
}
