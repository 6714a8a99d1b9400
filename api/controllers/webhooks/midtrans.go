package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/marketplace-core/api/responses"
	midtranswebhook "github.com/angelmondragon/marketplace-core/internal/webhooks/midtrans"
	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
	"github.com/angelmondragon/marketplace-core/pkg/logger"
)

const maxNotificationBytes = 1 << 20

type NotificationHandler interface {
	HandleNotification(ctx context.Context, payload []byte) (midtranswebhook.Outcome, error)
}

// MidtransNotification reconciles a payment gateway notification. The gateway
// retries on any non-2xx answer, so input and lookup failures answer 400 and
// only unexpected failures answer 500.
func MidtransNotification(svc NotificationHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteGatewayAck(w, http.StatusInternalServerError, responses.GatewayAck{Status: "error", Message: "notification handler unavailable"})
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
		if err != nil {
			responses.WriteGatewayAck(w, http.StatusBadRequest, responses.GatewayAck{Status: "error", Message: "unreadable body"})
			return
		}

		outcome, err := svc.HandleNotification(ctx, payload)
		if err != nil {
			status := http.StatusInternalServerError
			if pkgerrors.IsCode(err, pkgerrors.CodeValidation) || pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				status = http.StatusBadRequest
			}
			if logg != nil {
				if status == http.StatusBadRequest {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "midtrans.notification_rejected")
				} else {
					logg.Error(ctx, "midtrans.notification_failed", err)
				}
			}
			responses.WriteGatewayAck(w, status, responses.GatewayAck{Status: "error", Message: publicMessage(err, status)})
			return
		}

		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"order_id":       outcome.OrderID.String(),
				"outcome":        string(outcome.Kind),
				"order_status":   string(outcome.OrderStatus),
				"payment_status": string(outcome.PaymentStatus),
			}), "midtrans.notification_handled")
		}
		responses.WriteGatewayAck(w, http.StatusOK, responses.GatewayAck{Status: "success", Message: outcome.Message})
	}
}

// PaymentFinish is the browser redirect target after the hosted payment page.
// It echoes the gateway's query parameters; reconciliation happens only
// through notifications.
func PaymentFinish() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		responses.WriteSuccess(w, map[string]string{
			"order_id":           strings.TrimSpace(q.Get("order_id")),
			"status_code":        strings.TrimSpace(q.Get("status_code")),
			"transaction_status": strings.TrimSpace(q.Get("transaction_status")),
		})
	}
}

func publicMessage(err error, status int) string {
	if status == http.StatusBadRequest {
		if typed := pkgerrors.As(err); typed != nil && typed.Message() != "" {
			return typed.Message()
		}
	}
	return "notification processing failed"
}
