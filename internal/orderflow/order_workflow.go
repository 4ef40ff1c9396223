package orderflow

import (
	"encoding/json"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Timing and retry constants for the order state machine. The activity
// policy is sized against the failure injector: a forced error retries once
// after 500ms, a forced stall trips the 2s start-to-close timeout, and the
// 8s schedule-to-close bounds the whole attempt chain.
const (
	activityStartToClose    = 2 * time.Second
	activityScheduleToClose = 8 * time.Second
	manualReviewWindow      = 3 * time.Second
	reviewPollInterval      = 100 * time.Millisecond
	childRunTimeout         = 10 * time.Second
	maxChildAttempts        = 2

	// ShippingTaskQueue routes child workflows to the shipping host. It is
	// part of workflow code and therefore fixed; the worker hosts read
	// their queue names from the environment.
	ShippingTaskQueue = "shipping-tq"
)

// Steps reported by the status query.
const (
	StepInit             = "init"
	StepReceiveOrder     = "receive_order"
	StepValidateOrder    = "validate_order"
	StepAwaitingApproval = "awaiting_approval"
	StepChargePayment    = "charge_payment"
	StepShippingChild    = "shipping_child"
	StepMarkShipped      = "mark_shipped"
	StepDone             = "done"
)

// orderState is the workflow's in-memory state. It is constructed with empty
// identifiers before the signal pump starts, so signals that were buffered
// ahead of the first workflow task land safely; the start payload hydrates
// it afterwards.
type orderState struct {
	orderID   string
	paymentID string
	address   json.RawMessage
	items     []Item

	approved     bool
	canceled     bool
	cancelReason *string

	currentStep          string
	childAttempts        int
	lastError            *string
	dispatchFailedReason *string
}

func (s *orderState) hydrate(input StartInput) {
	s.orderID = input.OrderID
	s.paymentID = input.PaymentID
	s.address = input.Address
	s.items = input.Items
}

func (s *orderState) status() Status {
	return Status{
		OrderID:              s.orderID,
		Step:                 s.currentStep,
		Approved:             s.approved,
		Canceled:             s.canceled,
		CancelReason:         s.cancelReason,
		ChildAttempts:        s.childAttempts,
		LastError:            s.lastError,
		DispatchFailedReason: s.dispatchFailedReason,
	}
}

func (s *orderState) fail(reason string) {
	s.lastError = &reason
}

// OrderWorkflow drives an order from receipt to shipment:
//
//	receive -> validate -> [persist address] -> manual review gate ->
//	charge -> shipping child (retried once) -> mark shipped
//
// Approve, cancel and address-update signals merge into in-memory state and
// are honored at checkpoints between activities; in-flight activities are
// never interrupted. The terminal result is "shipped", "canceled" or
// "failed".
func OrderWorkflow(ctx workflow.Context, input StartInput) (string, error) {
	logger := workflow.GetLogger(ctx)

	state := &orderState{currentStep: StepInit}
	if err := workflow.SetQueryHandler(ctx, QueryStatus, func() (Status, error) {
		return state.status(), nil
	}); err != nil {
		return "", fmt.Errorf("register status query: %w", err)
	}
	pumpSignals(ctx, state)

	state.hydrate(input)
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	// Receive.
	state.currentStep = StepReceiveOrder
	var order Order
	err := workflow.ExecuteActivity(ctx, ActivityReceiveOrder, ReceiveOrderInput{
		OrderID: input.OrderID,
		Address: input.Address,
		Items:   input.Items,
	}).Get(ctx, &order)
	if err != nil {
		return "", err
	}
	if state.canceled {
		return ResultCanceled, nil
	}

	// Validate.
	state.currentStep = StepValidateOrder
	if err := workflow.ExecuteActivity(ctx, ActivityValidateOrder, order).Get(ctx, nil); err != nil {
		return "", err
	}
	if state.canceled {
		return ResultCanceled, nil
	}

	// Persist the latest address. This covers both the address supplied at
	// start and any update_address signal absorbed during validation.
	if state.address != nil {
		if err := workflow.ExecuteActivity(ctx, ActivityPersistAddress, PersistAddressInput{
			OrderID: state.orderID,
			Address: state.address,
		}).Get(ctx, nil); err != nil {
			return "", err
		}
	}

	// Manual review gate: poll on the durable clock until approval, cancel
	// or the review deadline.
	state.currentStep = StepAwaitingApproval
	deadline := workflow.Now(ctx).Add(manualReviewWindow)
	for !state.approved && !state.canceled && workflow.Now(ctx).Before(deadline) {
		if err := workflow.Sleep(ctx, reviewPollInterval); err != nil {
			return "", err
		}
	}
	if state.canceled {
		return ResultCanceled, nil
	}
	if !state.approved {
		state.fail("manual_review_timeout")
		return ResultFailed, nil
	}

	// Charge payment. Retries collapse onto one payments row keyed by
	// payment_id, so re-execution cannot double-charge.
	state.currentStep = StepChargePayment
	var charge ChargeOutput
	if err := workflow.ExecuteActivity(ctx, ActivityChargePayment, ChargeInput{
		Order:     order,
		PaymentID: state.paymentID,
	}).Get(ctx, &charge); err != nil {
		return "", err
	}
	logger.Info("payment charged", "order_id", state.orderID, "amount", charge.Amount)

	// Shipping child on its own task queue, retried once on failure. The
	// child also back-signals dispatch_failed, which lands in state for
	// observability; the retry loop is driven by the child's own failure.
	state.currentStep = StepShippingChild
	parentID := workflow.GetInfo(ctx).WorkflowExecution.ID
	for {
		state.childAttempts++
		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID:         fmt.Sprintf("ship-%s-%d", state.orderID, state.childAttempts),
			TaskQueue:          ShippingTaskQueue,
			WorkflowRunTimeout: childRunTimeout,
		})
		err := workflow.ExecuteChildWorkflow(childCtx, WorkflowShipping, ShippingInput{
			Order: Order{
				OrderID: state.orderID,
				Items:   order.Items,
				Address: state.address,
			},
			ParentWorkflowID: parentID,
		}).Get(childCtx, nil)
		if err == nil {
			break
		}
		state.fail("shipping_failed: " + err.Error())
		logger.Warn("shipping child failed",
			"order_id", state.orderID, "attempt", state.childAttempts, "error", err)
		if state.childAttempts >= maxChildAttempts {
			return ResultFailed, nil
		}
	}

	// Mark shipped.
	state.currentStep = StepMarkShipped
	if err := workflow.ExecuteActivity(ctx, ActivityMarkShipped, MarkShippedInput{
		OrderID: state.orderID,
	}).Get(ctx, nil); err != nil {
		return "", err
	}

	state.currentStep = StepDone
	return ResultShipped, nil
}

// pumpSignals drains the four signal channels into state for the lifetime of
// the workflow. Receives happen on the workflow dispatcher, so mutations are
// observable at the next await in the main routine.
func pumpSignals(ctx workflow.Context, state *orderState) {
	approveCh := workflow.GetSignalChannel(ctx, SignalApprove)
	cancelCh := workflow.GetSignalChannel(ctx, SignalCancelOrder)
	addressCh := workflow.GetSignalChannel(ctx, SignalUpdateAddress)
	dispatchCh := workflow.GetSignalChannel(ctx, SignalDispatchFailed)

	workflow.Go(ctx, func(ctx workflow.Context) {
		selector := workflow.NewSelector(ctx)
		selector.AddReceive(approveCh, func(ch workflow.ReceiveChannel, _ bool) {
			ch.Receive(ctx, nil)
			state.approved = true
		})
		selector.AddReceive(cancelCh, func(ch workflow.ReceiveChannel, _ bool) {
			var reason string
			ch.Receive(ctx, &reason)
			if reason == "" {
				reason = DefaultCancelReason
			}
			state.canceled = true
			state.cancelReason = &reason
		})
		selector.AddReceive(addressCh, func(ch workflow.ReceiveChannel, _ bool) {
			var address json.RawMessage
			ch.Receive(ctx, &address)
			state.address = address
		})
		selector.AddReceive(dispatchCh, func(ch workflow.ReceiveChannel, _ bool) {
			var reason string
			ch.Receive(ctx, &reason)
			state.dispatchFailedReason = &reason
		})
		for {
			selector.Select(ctx)
		}
	})
}

// defaultActivityOptions returns the shared activity timeouts and retry
// policy used by both workflows.
func defaultActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout:    activityStartToClose,
		ScheduleToCloseTimeout: activityScheduleToClose,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    500 * time.Millisecond,
			BackoffCoefficient: 1.5,
			MaximumAttempts:    2,
		},
	}
}
