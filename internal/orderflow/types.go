// Package orderflow implements the durable order-processing workflows: the
// order state machine and the shipping child it delegates to. Workflow code
// here is deterministic; every side effect goes through a named activity.
package orderflow

import "encoding/json"

// Registered workflow names.
const (
	WorkflowOrder    = "OrderWorkflow"
	WorkflowShipping = "ShippingWorkflow"
)

// Registered activity names. Workflows dispatch activities by name so the
// two worker hosts can each register only their own handlers.
const (
	ActivityReceiveOrder    = "receive_order"
	ActivityValidateOrder   = "validate_order"
	ActivityChargePayment   = "charge_payment"
	ActivityPreparePackage  = "prepare_package"
	ActivityDispatchCarrier = "dispatch_carrier"
	ActivityMarkShipped     = "mark_shipped"
	ActivityPersistAddress  = "persist_address"
)

// Signal and query names on the order workflow.
const (
	SignalApprove        = "approve"
	SignalCancelOrder    = "cancel_order"
	SignalUpdateAddress  = "update_address"
	SignalDispatchFailed = "dispatch_failed"
	QueryStatus          = "status"
)

// Terminal workflow results.
const (
	ResultShipped    = "shipped"
	ResultCanceled   = "canceled"
	ResultFailed     = "failed"
	ResultDispatched = "dispatched"
)

// DefaultCancelReason is recorded when a cancel signal carries no reason.
const DefaultCancelReason = "user_request"

// Item is one order line. Qty is a pointer so that an absent quantity can be
// defaulted to 1 without conflating it with an explicit zero.
type Item struct {
	SKU string `json:"sku,omitempty"`
	Qty *int   `json:"qty,omitempty"`
}

// Quantity returns the effective quantity, defaulting to 1 when absent.
func (i Item) Quantity() int {
	if i.Qty == nil {
		return 1
	}
	return *i.Qty
}

// Order is the order object passed between activities. Address is an opaque
// JSON object owned by the caller.
type Order struct {
	OrderID string          `json:"order_id"`
	Items   []Item          `json:"items,omitempty"`
	Address json.RawMessage `json:"address,omitempty"`
}

// StartInput is the single start payload of the order workflow.
type StartInput struct {
	OrderID   string          `json:"order_id"`
	PaymentID string          `json:"payment_id"`
	Address   json.RawMessage `json:"address,omitempty"`
	Items     []Item          `json:"items,omitempty"`
}

// ReceiveOrderInput is the payload of the receive_order activity.
type ReceiveOrderInput struct {
	OrderID string          `json:"order_id"`
	Address json.RawMessage `json:"address,omitempty"`
	Items   []Item          `json:"items,omitempty"`
}

// ChargeInput is the payload of the charge_payment activity.
type ChargeInput struct {
	Order     Order  `json:"order"`
	PaymentID string `json:"payment_id"`
}

// ChargeOutput is the result of the charge_payment activity.
type ChargeOutput struct {
	Status string  `json:"status"`
	Amount float64 `json:"amount"`
}

// PersistAddressInput is the payload of the persist_address activity.
type PersistAddressInput struct {
	OrderID string          `json:"order_id"`
	Address json.RawMessage `json:"address"`
}

// MarkShippedInput is the payload of the mark_shipped activity.
type MarkShippedInput struct {
	OrderID string `json:"order_id"`
}

// ShippingInput is the start payload of the shipping child workflow. The
// parent's workflow id is carried so the child can back-signal terminal
// dispatch failures.
type ShippingInput struct {
	Order            Order  `json:"order"`
	ParentWorkflowID string `json:"parent_workflow_id"`
}

// Status is the order workflow's query response.
type Status struct {
	OrderID              string  `json:"order_id"`
	Step                 string  `json:"step"`
	Approved             bool    `json:"approved"`
	Canceled             bool    `json:"canceled"`
	CancelReason         *string `json:"cancel_reason"`
	ChildAttempts        int     `json:"child_attempts"`
	LastError            *string `json:"last_error"`
	DispatchFailedReason *string `json:"dispatch_failed_reason"`
}
