package services

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/url"
	"strconv"
	"strings"

	"checkout-service/models"
)

// ParseNotifyPayload decodes a provider callback body. It tries a JSON
// object, then form encoding, then keeps the body raw (salvaging an embedded
// JSON object if there is one). It never fails.
func ParseNotifyPayload(contentType string, body []byte) *models.NotifyPayload {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &models.NotifyPayload{Kind: models.PayloadEmpty}
	}
	raw := string(trimmed)

	if fields, ok := decodeObject(trimmed); ok {
		return &models.NotifyPayload{Kind: models.PayloadJSON, Fields: fields, Raw: raw}
	}
	if fields, ok := decodeForm(contentType, raw); ok {
		return &models.NotifyPayload{Kind: models.PayloadForm, Fields: fields, Raw: raw}
	}

	p := &models.NotifyPayload{Kind: models.PayloadRaw, Raw: raw}
	if start, end := strings.IndexByte(raw, '{'), strings.LastIndexByte(raw, '}'); start >= 0 && end > start {
		if fields, ok := decodeObject([]byte(raw[start : end+1])); ok {
			p.Fields = fields
		}
	}
	return p
}

func decodeObject(b []byte) (map[string]interface{}, bool) {
	if len(b) == 0 || b[0] != '{' {
		return nil, false
	}
	var fields map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

func decodeForm(contentType, raw string) (map[string]interface{}, bool) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType != "application/x-www-form-urlencoded" && !looksLikeForm(raw) {
		return nil, false
	}
	values, err := url.ParseQuery(raw)
	if err != nil || len(values) == 0 {
		return nil, false
	}
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	return fields, true
}

// looksLikeForm accepts k=v pairs joined by '&' with no JSON punctuation.
func looksLikeForm(raw string) bool {
	if strings.ContainsAny(raw, "{}\n") {
		return false
	}
	for _, pair := range strings.Split(raw, "&") {
		k, _, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return false
		}
	}
	return true
}

// NotifyFields are the values the reconciler reads from a callback.
type NotifyFields struct {
	ShopTransactionID string
	CorrelationID     string
	OrderID           *uint
	Status            string
}

// fieldStrategy extracts one value from decoded fields.
type fieldStrategy func(fields map[string]interface{}) (string, bool)

var (
	shopTxStrategies      = []fieldStrategy{topLevel("shop_transaction_id")}
	correlationStrategies = []fieldStrategy{
		topLevel("payment_uuid"),
		topLevel("octo_payment_UUID"),
		topLevel("octo_payment_uuid"),
	}
	orderStrategies = []fieldStrategy{
		topLevel("order_id"),
		topLevel("orderId"),
		inExtra("orderId"),
	}
	statusStrategies = []fieldStrategy{topLevel("status")}
)

// ExtractNotifyFields applies the extraction strategies in order; the first
// strategy that finds a value wins.
func ExtractNotifyFields(p *models.NotifyPayload) NotifyFields {
	var f NotifyFields
	if p == nil || len(p.Fields) == 0 {
		return f
	}
	f.ShopTransactionID, _ = firstMatch(p.Fields, shopTxStrategies)
	f.CorrelationID, _ = firstMatch(p.Fields, correlationStrategies)
	f.Status, _ = firstMatch(p.Fields, statusStrategies)
	if s, ok := firstMatch(p.Fields, orderStrategies); ok {
		if id, err := strconv.ParseUint(s, 10, 64); err == nil && id > 0 {
			v := uint(id)
			f.OrderID = &v
		}
	}
	return f
}

func firstMatch(fields map[string]interface{}, strategies []fieldStrategy) (string, bool) {
	for _, s := range strategies {
		if v, ok := s(fields); ok {
			return v, true
		}
	}
	return "", false
}

func topLevel(key string) fieldStrategy {
	return func(fields map[string]interface{}) (string, bool) {
		return scalarString(fields[key])
	}
}

// inExtra reads key from the "extra" field, which providers send either as a
// nested object or as a JSON-encoded string.
func inExtra(key string) fieldStrategy {
	return func(fields map[string]interface{}) (string, bool) {
		switch extra := fields["extra"].(type) {
		case map[string]interface{}:
			return scalarString(extra[key])
		case string:
			nested, ok := decodeObject([]byte(strings.TrimSpace(extra)))
			if !ok {
				return "", false
			}
			return scalarString(nested[key])
		}
		return "", false
	}
}

func scalarString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	}
	return "", false
}
