// Package worker builds the two long-running worker hosts. The orders host
// serves the order workflow and its five activities; the shipping host
// serves the shipping child and its two. Splitting hosts by task queue is
// what lets the child run on separately scaled infrastructure.
package worker

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	sdkworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/trellislabs/orderflow/internal/activities"
	"github.com/trellislabs/orderflow/internal/config"
	"github.com/trellislabs/orderflow/internal/orderflow"
)

// NewOrders binds the order workflow and the order-side activities to the
// orders task queue.
func NewOrders(c client.Client, acts *activities.Activities, cfg config.Temporal, wcfg config.Worker) sdkworker.Worker {
	w := sdkworker.New(c, cfg.OrdersTaskQueue, options(wcfg))

	w.RegisterWorkflowWithOptions(orderflow.OrderWorkflow,
		workflow.RegisterOptions{Name: orderflow.WorkflowOrder})

	register(w, orderflow.ActivityReceiveOrder, acts.ReceiveOrder)
	register(w, orderflow.ActivityValidateOrder, acts.ValidateOrder)
	register(w, orderflow.ActivityChargePayment, acts.ChargePayment)
	register(w, orderflow.ActivityPersistAddress, acts.PersistAddress)
	register(w, orderflow.ActivityMarkShipped, acts.MarkShipped)

	return w
}

// NewShipping binds the shipping child workflow and its activities to the
// shipping task queue.
func NewShipping(c client.Client, acts *activities.Activities, cfg config.Temporal, wcfg config.Worker) sdkworker.Worker {
	w := sdkworker.New(c, cfg.ShippingTaskQueue, options(wcfg))

	w.RegisterWorkflowWithOptions(orderflow.ShippingWorkflow,
		workflow.RegisterOptions{Name: orderflow.WorkflowShipping})

	register(w, orderflow.ActivityPreparePackage, acts.PreparePackage)
	register(w, orderflow.ActivityDispatchCarrier, acts.DispatchCarrier)

	return w
}

func options(cfg config.Worker) sdkworker.Options {
	return sdkworker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.MaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.MaxConcurrentWorkflowTasks,
	}
}

func register(w sdkworker.Worker, name string, handler interface{}) {
	w.RegisterActivityWithOptions(handler, activity.RegisterOptions{Name: name})
}
