package orderflow

import (
	"go.temporal.io/sdk/workflow"
)

// ShippingWorkflow is the two-step shipping child: prepare the package, then
// dispatch the carrier. When dispatch fails terminally the parent is
// back-signaled with the reason before the failure is re-raised, so the
// parent both records the reason and drives its own retry loop off the
// child's failure.
func ShippingWorkflow(ctx workflow.Context, input ShippingInput) (string, error) {
	logger := workflow.GetLogger(ctx)
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	if err := workflow.ExecuteActivity(ctx, ActivityPreparePackage, input.Order).Get(ctx, nil); err != nil {
		return "", err
	}

	if err := workflow.ExecuteActivity(ctx, ActivityDispatchCarrier, input.Order).Get(ctx, nil); err != nil {
		if sigErr := workflow.SignalExternalWorkflow(ctx,
			input.ParentWorkflowID, "", SignalDispatchFailed, err.Error(),
		).Get(ctx, nil); sigErr != nil {
			logger.Error("failed to notify parent of dispatch failure",
				"parent_workflow_id", input.ParentWorkflowID, "error", sigErr)
		}
		return "", err
	}

	return ResultDispatched, nil
}
