package services

import (
	"strings"

	"checkout-service/models"
)

var gatewayStatuses = map[string]models.PaymentStatus{
	"paid":              models.PaymentStatusPaid,
	"success":           models.PaymentStatusPaid,
	"succeeded":         models.PaymentStatusPaid,
	"paid_and_captured": models.PaymentStatusPaid,
	"captured":          models.PaymentStatusPaid,
	"completed":         models.PaymentStatusPaid,
	"refunded":          models.PaymentStatusRefunded,
	"refund":            models.PaymentStatusRefunded,
	"failed":            models.PaymentStatusFailed,
	"error":             models.PaymentStatusFailed,
	"cancelled":         models.PaymentStatusCancelled,
	"canceled":          models.PaymentStatusCancelled,
}

// MapGatewayStatus maps a provider status string to a payment status.
// Unknown values map to PENDING.
func MapGatewayStatus(status string) models.PaymentStatus {
	if s, ok := gatewayStatuses[strings.ToLower(strings.TrimSpace(status))]; ok {
		return s
	}
	return models.PaymentStatusPending
}

// settledStatus applies an incoming status to the current one without
// regressing a settled payment: REFUNDED is terminal and PAID only moves to
// REFUNDED.
func settledStatus(current, incoming models.PaymentStatus) models.PaymentStatus {
	switch current {
	case models.PaymentStatusRefunded:
		return models.PaymentStatusRefunded
	case models.PaymentStatusPaid:
		if incoming == models.PaymentStatusRefunded {
			return incoming
		}
		return models.PaymentStatusPaid
	}
	return incoming
}
