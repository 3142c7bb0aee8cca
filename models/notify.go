package models

import "encoding/json"

// PayloadKind tags which body shape a provider callback was decoded from.
type PayloadKind string

const (
	PayloadJSON  PayloadKind = "json"
	PayloadForm  PayloadKind = "form"
	PayloadRaw   PayloadKind = "raw"
	PayloadEmpty PayloadKind = "empty"
)

// NotifyPayload is a provider callback after body decoding. Fields holds the
// decoded key/values for json and form bodies (and for raw bodies with an
// embedded object); Raw keeps the original text for audit.
type NotifyPayload struct {
	Kind   PayloadKind
	Fields map[string]interface{}
	Raw    string
}

// Snapshot renders the payload for the audit column.
func (p *NotifyPayload) Snapshot() string {
	if p == nil {
		return ""
	}
	if len(p.Fields) > 0 {
		if b, err := json.Marshal(p.Fields); err == nil {
			return string(b)
		}
	}
	return p.Raw
}
