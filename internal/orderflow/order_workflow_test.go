package orderflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"
)

// stubActivities replaces every activity with an in-memory implementation.
// Fields can be swapped per test after registration; the registered wrappers
// always dispatch through the current field value.
type stubActivities struct {
	receive  func(context.Context, ReceiveOrderInput) (Order, error)
	validate func(context.Context, Order) (bool, error)
	persist  func(context.Context, PersistAddressInput) (string, error)
	charge   func(context.Context, ChargeInput) (ChargeOutput, error)
	prepare  func(context.Context, Order) (string, error)
	dispatch func(context.Context, Order) (string, error)
	shipped  func(context.Context, MarkShippedInput) (string, error)
}

func intPtr(v int) *int { return &v }

func happyStubs() *stubActivities {
	return &stubActivities{
		receive: func(_ context.Context, in ReceiveOrderInput) (Order, error) {
			return Order{OrderID: in.OrderID, Items: in.Items, Address: in.Address}, nil
		},
		validate: func(context.Context, Order) (bool, error) { return true, nil },
		persist:  func(context.Context, PersistAddressInput) (string, error) { return "address_updated", nil },
		charge: func(_ context.Context, in ChargeInput) (ChargeOutput, error) {
			return ChargeOutput{Status: "charged", Amount: 1}, nil
		},
		prepare:  func(context.Context, Order) (string, error) { return "Package ready", nil },
		dispatch: func(context.Context, Order) (string, error) { return "Dispatched", nil },
		shipped:  func(context.Context, MarkShippedInput) (string, error) { return "Shipped", nil },
	}
}

func (s *stubActivities) register(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivityWithOptions(func(ctx context.Context, in ReceiveOrderInput) (Order, error) {
		return s.receive(ctx, in)
	}, activity.RegisterOptions{Name: ActivityReceiveOrder})
	env.RegisterActivityWithOptions(func(ctx context.Context, in Order) (bool, error) {
		return s.validate(ctx, in)
	}, activity.RegisterOptions{Name: ActivityValidateOrder})
	env.RegisterActivityWithOptions(func(ctx context.Context, in PersistAddressInput) (string, error) {
		return s.persist(ctx, in)
	}, activity.RegisterOptions{Name: ActivityPersistAddress})
	env.RegisterActivityWithOptions(func(ctx context.Context, in ChargeInput) (ChargeOutput, error) {
		return s.charge(ctx, in)
	}, activity.RegisterOptions{Name: ActivityChargePayment})
	env.RegisterActivityWithOptions(func(ctx context.Context, in Order) (string, error) {
		return s.prepare(ctx, in)
	}, activity.RegisterOptions{Name: ActivityPreparePackage})
	env.RegisterActivityWithOptions(func(ctx context.Context, in Order) (string, error) {
		return s.dispatch(ctx, in)
	}, activity.RegisterOptions{Name: ActivityDispatchCarrier})
	env.RegisterActivityWithOptions(func(ctx context.Context, in MarkShippedInput) (string, error) {
		return s.shipped(ctx, in)
	}, activity.RegisterOptions{Name: ActivityMarkShipped})
}

func newOrderEnv(t *testing.T) (*testsuite.TestWorkflowEnvironment, *stubActivities) {
	t.Helper()

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(OrderWorkflow, workflow.RegisterOptions{Name: WorkflowOrder})
	env.RegisterWorkflowWithOptions(ShippingWorkflow, workflow.RegisterOptions{Name: WorkflowShipping})

	stubs := happyStubs()
	stubs.register(env)
	return env, stubs
}

func workflowResult(t *testing.T, env *testsuite.TestWorkflowEnvironment) string {
	t.Helper()

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var result string
	require.NoError(t, env.GetWorkflowResult(&result))
	return result
}

func queryStatus(t *testing.T, env *testsuite.TestWorkflowEnvironment) Status {
	t.Helper()

	val, err := env.QueryWorkflow(QueryStatus)
	require.NoError(t, err)
	var st Status
	require.NoError(t, val.Get(&st))
	return st
}

func approveAfter(env *testsuite.TestWorkflowEnvironment, d time.Duration) {
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalApprove, nil)
	}, d)
}

func TestOrderWorkflow_HappyPath(t *testing.T) {
	env, stubs := newOrderEnv(t)

	var persisted *PersistAddressInput
	stubs.persist = func(_ context.Context, in PersistAddressInput) (string, error) {
		persisted = &in
		return "address_updated", nil
	}
	approveAfter(env, time.Second)

	env.ExecuteWorkflow(WorkflowOrder, StartInput{
		OrderID:   "o-1",
		PaymentID: "pay-o-1",
		Address:   []byte(`{"city":"Chicago"}`),
		Items:     []Item{{SKU: "ABC", Qty: intPtr(1)}},
	})

	require.Equal(t, ResultShipped, workflowResult(t, env))

	st := queryStatus(t, env)
	require.Equal(t, StepDone, st.Step)
	require.True(t, st.Approved)
	require.False(t, st.Canceled)
	require.Equal(t, 1, st.ChildAttempts)
	require.Nil(t, st.LastError)

	require.NotNil(t, persisted)
	require.Equal(t, "o-1", persisted.OrderID)
	require.JSONEq(t, `{"city":"Chicago"}`, string(persisted.Address))
}

func TestOrderWorkflow_NoAddressSkipsPersist(t *testing.T) {
	env, stubs := newOrderEnv(t)

	persistCalled := false
	stubs.persist = func(_ context.Context, in PersistAddressInput) (string, error) {
		persistCalled = true
		return "address_updated", nil
	}
	approveAfter(env, time.Second)

	env.ExecuteWorkflow(WorkflowOrder, StartInput{OrderID: "o-2", PaymentID: "pay-o-2"})

	require.Equal(t, ResultShipped, workflowResult(t, env))
	require.False(t, persistCalled)
}

func TestOrderWorkflow_ReviewTimeoutFails(t *testing.T) {
	env, _ := newOrderEnv(t)

	env.ExecuteWorkflow(WorkflowOrder, StartInput{OrderID: "o-3", PaymentID: "pay-o-3"})

	require.Equal(t, ResultFailed, workflowResult(t, env))

	st := queryStatus(t, env)
	require.Equal(t, StepAwaitingApproval, st.Step)
	require.False(t, st.Approved)
	require.NotNil(t, st.LastError)
	require.Equal(t, "manual_review_timeout", *st.LastError)
}

func TestOrderWorkflow_CancelDuringReviewDefaultsReason(t *testing.T) {
	env, _ := newOrderEnv(t)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalCancelOrder, "")
	}, time.Second)

	env.ExecuteWorkflow(WorkflowOrder, StartInput{OrderID: "o-4", PaymentID: "pay-o-4"})

	require.Equal(t, ResultCanceled, workflowResult(t, env))

	st := queryStatus(t, env)
	require.True(t, st.Canceled)
	require.NotNil(t, st.CancelReason)
	require.Equal(t, DefaultCancelReason, *st.CancelReason)
}

// A cancel that lands while an activity is in flight is honored at the next
// checkpoint; the activity itself is never interrupted.
func TestOrderWorkflow_CancelAtCheckpointAfterReceive(t *testing.T) {
	env, stubs := newOrderEnv(t)

	validateCalled := false
	stubs.receive = func(_ context.Context, in ReceiveOrderInput) (Order, error) {
		env.SignalWorkflow(SignalCancelOrder, "fraud_check")
		return Order{OrderID: in.OrderID, Items: in.Items}, nil
	}
	stubs.validate = func(context.Context, Order) (bool, error) {
		validateCalled = true
		return true, nil
	}

	env.ExecuteWorkflow(WorkflowOrder, StartInput{OrderID: "o-5", PaymentID: "pay-o-5"})

	require.Equal(t, ResultCanceled, workflowResult(t, env))
	require.False(t, validateCalled)

	st := queryStatus(t, env)
	require.NotNil(t, st.CancelReason)
	require.Equal(t, "fraud_check", *st.CancelReason)
}

// An address update absorbed during validation is the one persisted.
func TestOrderWorkflow_AddressUpdateDuringValidate(t *testing.T) {
	env, stubs := newOrderEnv(t)

	var persisted *PersistAddressInput
	stubs.validate = func(context.Context, Order) (bool, error) {
		env.SignalWorkflow(SignalUpdateAddress, []byte(`{"city":"Austin"}`))
		return true, nil
	}
	stubs.persist = func(_ context.Context, in PersistAddressInput) (string, error) {
		persisted = &in
		return "address_updated", nil
	}
	approveAfter(env, time.Second)

	env.ExecuteWorkflow(WorkflowOrder, StartInput{OrderID: "o-6", PaymentID: "pay-o-6"})

	require.Equal(t, ResultShipped, workflowResult(t, env))
	require.NotNil(t, persisted)
	require.JSONEq(t, `{"city":"Austin"}`, string(persisted.Address))
}

// A signal buffered ahead of the first workflow task must not be lost.
func TestOrderWorkflow_ApprovalBeforeStart(t *testing.T) {
	env, _ := newOrderEnv(t)

	approveAfter(env, 0)

	env.ExecuteWorkflow(WorkflowOrder, StartInput{OrderID: "o-7", PaymentID: "pay-o-7"})

	require.Equal(t, ResultShipped, workflowResult(t, env))
	require.True(t, queryStatus(t, env).Approved)
}

func TestOrderWorkflow_ChildRetriesThenShips(t *testing.T) {
	env, stubs := newOrderEnv(t)
	env.OnSignalExternalWorkflow(mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil)

	dispatchCalls := 0
	stubs.dispatch = func(context.Context, Order) (string, error) {
		dispatchCalls++
		if dispatchCalls == 1 {
			return "", temporal.NewNonRetryableApplicationError(
				"carrier rejected dispatch", "dispatch_failed", nil)
		}
		return "Dispatched", nil
	}
	approveAfter(env, time.Second)

	env.ExecuteWorkflow(WorkflowOrder, StartInput{OrderID: "o-8", PaymentID: "pay-o-8"})

	require.Equal(t, ResultShipped, workflowResult(t, env))
	require.Equal(t, 2, dispatchCalls)

	st := queryStatus(t, env)
	require.Equal(t, 2, st.ChildAttempts)
	// The first attempt's failure stays on record even after the retry ships.
	require.NotNil(t, st.LastError)
	require.Contains(t, *st.LastError, "shipping_failed")
}

func TestOrderWorkflow_ChildExhaustionFails(t *testing.T) {
	env, stubs := newOrderEnv(t)
	env.OnSignalExternalWorkflow(mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil).
		Run(func(args mock.Arguments) {
			// Stand in for cross-workflow delivery of the child's
			// back-signal, which the mock otherwise swallows.
			env.SignalWorkflow(SignalDispatchFailed, args.Get(4))
		})

	stubs.dispatch = func(context.Context, Order) (string, error) {
		return "", temporal.NewNonRetryableApplicationError(
			"carrier rejected dispatch", "dispatch_failed", nil)
	}
	approveAfter(env, time.Second)

	env.ExecuteWorkflow(WorkflowOrder, StartInput{OrderID: "o-9", PaymentID: "pay-o-9"})

	require.Equal(t, ResultFailed, workflowResult(t, env))

	st := queryStatus(t, env)
	require.Equal(t, 2, st.ChildAttempts)
	require.NotNil(t, st.LastError)
	require.Contains(t, *st.LastError, "shipping_failed")
	require.NotNil(t, st.DispatchFailedReason)
	require.Contains(t, *st.DispatchFailedReason, "carrier rejected dispatch")
}

func TestOrderWorkflow_ValidationFailurePropagates(t *testing.T) {
	env, stubs := newOrderEnv(t)

	stubs.validate = func(context.Context, Order) (bool, error) {
		return false, temporal.NewNonRetryableApplicationError(
			"no items to validate", "invalid_order", nil)
	}

	env.ExecuteWorkflow(WorkflowOrder, StartInput{OrderID: "o-10", PaymentID: "pay-o-10"})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "invalid_order", appErr.Type())
}
