package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/trellislabs/orderflow/internal/orderflow"
)

// workflowRunTimeout bounds an order workflow end to end.
const workflowRunTimeout = 15 * time.Second

// ErrNotFound is returned when no workflow exists for the order.
var ErrNotFound = errors.New("order workflow not found")

// OrderWorkflowID derives the parent workflow id for an order.
func OrderWorkflowID(orderID string) string {
	return "order-" + orderID
}

// Orchestrator is the narrow slice of the workflow engine the admission
// layer needs. Keeping it an interface lets handler tests run against a
// stub instead of a live engine.
type Orchestrator interface {
	// StartOrder starts the order workflow and returns its workflow and
	// run ids.
	StartOrder(ctx context.Context, input orderflow.StartInput) (workflowID, runID string, err error)

	// SignalOrder delivers a named signal to the order's workflow.
	SignalOrder(ctx context.Context, orderID, signal string, arg interface{}) error

	// OrderStatus queries the order workflow's in-memory state. Returns
	// ErrNotFound when no workflow exists for the order.
	OrderStatus(ctx context.Context, orderID string) (orderflow.Status, error)
}

// TemporalOrchestrator implements Orchestrator against a Temporal client.
type TemporalOrchestrator struct {
	client    client.Client
	taskQueue string
}

var _ Orchestrator = (*TemporalOrchestrator)(nil)

// NewTemporalOrchestrator wraps an existing Temporal client. taskQueue is
// the orders queue workflows are started on.
func NewTemporalOrchestrator(c client.Client, taskQueue string) *TemporalOrchestrator {
	return &TemporalOrchestrator{client: c, taskQueue: taskQueue}
}

func (t *TemporalOrchestrator) StartOrder(ctx context.Context, input orderflow.StartInput) (string, string, error) {
	run, err := t.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                 OrderWorkflowID(input.OrderID),
		TaskQueue:          t.taskQueue,
		WorkflowRunTimeout: workflowRunTimeout,
	}, orderflow.WorkflowOrder, input)
	if err != nil {
		return "", "", fmt.Errorf("start order workflow: %w", err)
	}
	return run.GetID(), run.GetRunID(), nil
}

func (t *TemporalOrchestrator) SignalOrder(ctx context.Context, orderID, signal string, arg interface{}) error {
	err := t.client.SignalWorkflow(ctx, OrderWorkflowID(orderID), "", signal, arg)
	if err != nil {
		return translateNotFound(err)
	}
	return nil
}

func (t *TemporalOrchestrator) OrderStatus(ctx context.Context, orderID string) (orderflow.Status, error) {
	val, err := t.client.QueryWorkflow(ctx, OrderWorkflowID(orderID), "", orderflow.QueryStatus)
	if err != nil {
		return orderflow.Status{}, translateNotFound(err)
	}
	var status orderflow.Status
	if err := val.Get(&status); err != nil {
		return orderflow.Status{}, fmt.Errorf("decode status query: %w", err)
	}
	return status, nil
}

// translateNotFound maps the engine's not-found condition onto ErrNotFound
// so transport code never imports engine error types.
func translateNotFound(err error) error {
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, notFound.Message)
	}
	return err
}

// Request and response bodies of the admission surface.

// StartOrderRequest is the body of POST /orders/{id}/start.
type StartOrderRequest struct {
	PaymentID string           `json:"payment_id"`
	Address   json.RawMessage  `json:"address,omitempty"`
	Items     []orderflow.Item `json:"items,omitempty"`
}

// StartOrderResponse identifies the started workflow.
type StartOrderResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// CancelRequest is the body of POST /orders/{id}/signals/cancel.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// AddressRequest is the body of POST /orders/{id}/signals/address.
type AddressRequest struct {
	Address json.RawMessage `json:"address"`
}
