// Package activities implements the idempotent side-effect handlers invoked
// by the workflows. Each handler wraps one persistence operation plus event
// emission; re-execution after a prior success converges to the same
// observable state, carried by the store's upsert semantics and the payment
// row lock.
package activities

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/trellislabs/orderflow/internal/flaky"
	"github.com/trellislabs/orderflow/internal/metrics"
	"github.com/trellislabs/orderflow/internal/orderflow"
	"github.com/trellislabs/orderflow/internal/store"
)

// Event type tags appended to the audit trail.
const (
	EventOrderReceived     = "order_received"
	EventOrderValidated    = "order_validated"
	EventPaymentCharged    = "payment_charged"
	EventPaymentIdempotent = "payment_idempotent"
	EventPackagePrepared   = "package_prepared"
	EventCarrierDispatched = "carrier_dispatched"
	EventOrderShipped      = "order_shipped"
	EventAddressUpdated    = "address_updated"
)

// ErrTypeInvalidOrder tags the non-retryable validation failure.
const ErrTypeInvalidOrder = "invalid_order"

// defaultItems substitutes for an absent item list on receipt.
func defaultItems() []orderflow.Item {
	qty := 1
	return []orderflow.Item{{SKU: "ABC", Qty: &qty}}
}

// Activities bundles the handlers with their dependencies. Both worker
// hosts construct one instance and register the subset they serve.
type Activities struct {
	gw       *store.Gateway
	injector *flaky.Injector
	metrics  *metrics.ActivityMetrics
}

// New builds the activity set. injector and m may be nil.
func New(gw *store.Gateway, injector *flaky.Injector, m *metrics.ActivityMetrics) *Activities {
	return &Activities{gw: gw, injector: injector, metrics: m}
}

// ReceiveOrder upserts the order to 'received' and records the receipt
// event. An absent item list is replaced with the default single item.
func (a *Activities) ReceiveOrder(ctx context.Context, in orderflow.ReceiveOrderInput) (_ orderflow.Order, err error) {
	defer a.observe(ctx, orderflow.ActivityReceiveOrder, time.Now(), &err)
	if err := a.injector.Call(ctx); err != nil {
		return orderflow.Order{}, err
	}

	items := in.Items
	if items == nil {
		items = defaultItems()
	}

	if err := a.gw.UpsertOrderState(ctx, in.OrderID, store.StateReceived, in.Address); err != nil {
		return orderflow.Order{}, a.storeErr(err)
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"address": in.Address,
		"items":   items,
	})
	if err := a.gw.InsertEvent(ctx, in.OrderID, EventOrderReceived, payload); err != nil {
		return orderflow.Order{}, a.storeErr(err)
	}

	log.WithField("order_id", in.OrderID).Info("order received")
	return orderflow.Order{OrderID: in.OrderID, Items: items, Address: in.Address}, nil
}

// ValidateOrder rejects orders without items and advances valid orders to
// 'validated'. The rejection is non-retryable; no retry can add items.
func (a *Activities) ValidateOrder(ctx context.Context, order orderflow.Order) (_ bool, err error) {
	defer a.observe(ctx, orderflow.ActivityValidateOrder, time.Now(), &err)
	if err := a.injector.Call(ctx); err != nil {
		return false, err
	}

	if len(order.Items) == 0 {
		return false, temporal.NewNonRetryableApplicationError(
			"no items to validate", ErrTypeInvalidOrder, nil)
	}

	if err := a.gw.UpsertOrderState(ctx, order.OrderID, store.StateValidated, nil); err != nil {
		return false, a.storeErr(err)
	}
	payload, _ := json.Marshal(map[string]interface{}{"items": order.Items})
	if err := a.gw.InsertEvent(ctx, order.OrderID, EventOrderValidated, payload); err != nil {
		return false, a.storeErr(err)
	}

	log.WithField("order_id", order.OrderID).Info("order validated")
	return true, nil
}

// ChargePayment charges the order amount under the caller-supplied
// payment_id. The amount is the sum of item quantities (absent qty counts
// as 1). A retry that finds the payment already charged emits a
// payment_idempotent event and returns the stored amount.
func (a *Activities) ChargePayment(ctx context.Context, in orderflow.ChargeInput) (_ orderflow.ChargeOutput, err error) {
	defer a.observe(ctx, orderflow.ActivityChargePayment, time.Now(), &err)
	if err := a.injector.Call(ctx); err != nil {
		return orderflow.ChargeOutput{}, err
	}

	orderID := in.Order.OrderID
	total := 0
	for _, item := range in.Order.Items {
		total += item.Quantity()
	}
	amount := decimal.NewFromInt(int64(total))

	res, err := a.gw.ChargePaymentIdempotent(ctx, in.PaymentID, orderID, amount)
	if err != nil {
		return orderflow.ChargeOutput{}, a.storeErr(err)
	}

	eventType := EventPaymentCharged
	if !res.WasNew {
		eventType = EventPaymentIdempotent
	}
	if err := a.gw.UpsertOrderState(ctx, orderID, store.StatePaymentCharged, nil); err != nil {
		return orderflow.ChargeOutput{}, a.storeErr(err)
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"payment_id": in.PaymentID,
		"amount":     res.Amount.InexactFloat64(),
	})
	if err := a.gw.InsertEvent(ctx, orderID, eventType, payload); err != nil {
		return orderflow.ChargeOutput{}, a.storeErr(err)
	}

	log.WithFields(log.Fields{
		"order_id":   orderID,
		"payment_id": in.PaymentID,
		"amount":     res.Amount,
		"was_new":    res.WasNew,
	}).Info("payment charged")
	return orderflow.ChargeOutput{Status: res.Status, Amount: res.Amount.InexactFloat64()}, nil
}

// PreparePackage appends the 'prepared' shipment row and event.
func (a *Activities) PreparePackage(ctx context.Context, order orderflow.Order) (_ string, err error) {
	defer a.observe(ctx, orderflow.ActivityPreparePackage, time.Now(), &err)
	if err := a.injector.Call(ctx); err != nil {
		return "", err
	}

	if err := a.gw.InsertShipment(ctx, order.OrderID, store.ShipmentPrepared); err != nil {
		return "", a.storeErr(err)
	}
	if err := a.gw.InsertEvent(ctx, order.OrderID, EventPackagePrepared, nil); err != nil {
		return "", a.storeErr(err)
	}

	log.WithField("order_id", order.OrderID).Info("package prepared")
	return "Package ready", nil
}

// DispatchCarrier appends the 'dispatched' shipment row, moves the order to
// 'shipping' and records the event. The final 'shipped' state is written by
// MarkShipped on the parent's queue.
func (a *Activities) DispatchCarrier(ctx context.Context, order orderflow.Order) (_ string, err error) {
	defer a.observe(ctx, orderflow.ActivityDispatchCarrier, time.Now(), &err)
	if err := a.injector.Call(ctx); err != nil {
		return "", err
	}

	if err := a.gw.InsertShipment(ctx, order.OrderID, store.ShipmentDispatched); err != nil {
		return "", a.storeErr(err)
	}
	if err := a.gw.UpsertOrderState(ctx, order.OrderID, store.StateShipping, nil); err != nil {
		return "", a.storeErr(err)
	}
	if err := a.gw.InsertEvent(ctx, order.OrderID, EventCarrierDispatched, nil); err != nil {
		return "", a.storeErr(err)
	}

	log.WithField("order_id", order.OrderID).Info("carrier dispatched")
	return "Dispatched", nil
}

// MarkShipped advances the order to its terminal 'shipped' state.
func (a *Activities) MarkShipped(ctx context.Context, in orderflow.MarkShippedInput) (_ string, err error) {
	defer a.observe(ctx, orderflow.ActivityMarkShipped, time.Now(), &err)
	if err := a.injector.Call(ctx); err != nil {
		return "", err
	}

	if err := a.gw.UpsertOrderState(ctx, in.OrderID, store.StateShipped, nil); err != nil {
		return "", a.storeErr(err)
	}
	if err := a.gw.InsertEvent(ctx, in.OrderID, EventOrderShipped, nil); err != nil {
		return "", a.storeErr(err)
	}

	log.WithField("order_id", in.OrderID).Info("order shipped")
	return "Shipped", nil
}

// PersistAddress replaces the stored address without touching state and
// records the address_updated event.
func (a *Activities) PersistAddress(ctx context.Context, in orderflow.PersistAddressInput) (_ string, err error) {
	defer a.observe(ctx, orderflow.ActivityPersistAddress, time.Now(), &err)
	if err := a.injector.Call(ctx); err != nil {
		return "", err
	}

	if err := a.gw.UpdateAddress(ctx, in.OrderID, in.Address); err != nil {
		return "", a.storeErr(err)
	}
	if err := a.gw.InsertEvent(ctx, in.OrderID, EventAddressUpdated, in.Address); err != nil {
		return "", a.storeErr(err)
	}

	log.WithField("order_id", in.OrderID).Info("address updated")
	return EventAddressUpdated, nil
}

// storeErr converts constraint violations into non-retryable application
// errors; everything else surfaces as-is for the retry policy.
func (a *Activities) storeErr(err error) error {
	if err == nil {
		return nil
	}
	if !store.IsRetryable(err) {
		return temporal.NewNonRetryableApplicationError(err.Error(), "store_constraint", err)
	}
	return err
}

// observe records metrics for the completed handler, including the attempt
// count from the activity context when one is present.
func (a *Activities) observe(ctx context.Context, name string, start time.Time, err *error) {
	a.metrics.Observe(name, start, *err)
	if activity.IsActivity(ctx) {
		info := activity.GetInfo(ctx)
		if info.Attempt > 1 {
			log.WithFields(log.Fields{"activity": name, "attempt": info.Attempt}).
				Debug("activity retry attempt")
		}
	}
}
