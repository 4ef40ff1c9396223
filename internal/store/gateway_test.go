package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	gw, err := OpenSQLite(filepath.Join(t.TempDir(), "orderflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })

	require.NoError(t, gw.EnsureSchema(context.Background()))
	return gw
}

func TestUpsertOrderState_CreatesAndAdvances(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)

	address := json.RawMessage(`{"city":"Chicago","line1":"123 Main"}`)
	require.NoError(t, gw.UpsertOrderState(ctx, "o-1", StateReceived, address))

	row, err := gw.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	require.Equal(t, StateReceived, row.State)
	require.JSONEq(t, string(address), string(row.Address))

	require.NoError(t, gw.UpsertOrderState(ctx, "o-1", StateValidated, nil))
	row, err = gw.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	require.Equal(t, StateValidated, row.State)
	// A nil address must not clear the stored one.
	require.JSONEq(t, string(address), string(row.Address))
}

func TestUpsertOrderState_NewAddressReplaces(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)

	require.NoError(t, gw.UpsertOrderState(ctx, "o-2", StateReceived, json.RawMessage(`{"city":"Chicago"}`)))
	require.NoError(t, gw.UpsertOrderState(ctx, "o-2", StateValidated, json.RawMessage(`{"city":"Denver"}`)))

	row, err := gw.GetOrder(ctx, "o-2")
	require.NoError(t, err)
	require.JSONEq(t, `{"city":"Denver"}`, string(row.Address))
}

func TestUpdateAddress_LeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)

	require.NoError(t, gw.UpsertOrderState(ctx, "o-3", StateValidated, json.RawMessage(`{"city":"Chicago"}`)))
	require.NoError(t, gw.UpdateAddress(ctx, "o-3", json.RawMessage(`{"city":"Boston"}`)))

	row, err := gw.GetOrder(ctx, "o-3")
	require.NoError(t, err)
	require.Equal(t, StateValidated, row.State)
	require.JSONEq(t, `{"city":"Boston"}`, string(row.Address))
}

func TestGetOrder_NotFound(t *testing.T) {
	gw := newTestGateway(t)

	_, err := gw.GetOrder(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestChargePaymentIdempotent_FirstChargeWins(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)

	first, err := gw.ChargePaymentIdempotent(ctx, "pay-1", "o-4", decimal.NewFromInt(2))
	require.NoError(t, err)
	require.True(t, first.WasNew)
	require.Equal(t, "charged", first.Status)
	require.True(t, first.Amount.Equal(decimal.NewFromInt(2)))

	// A retry with a different amount observes the stored charge; the
	// original amount is authoritative.
	second, err := gw.ChargePaymentIdempotent(ctx, "pay-1", "o-4", decimal.NewFromInt(5))
	require.NoError(t, err)
	require.False(t, second.WasNew)
	require.Equal(t, "charged", second.Status)
	require.True(t, second.Amount.Equal(decimal.NewFromInt(2)))
}

func TestInsertEvent_AppendOrderPreserved(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)

	require.NoError(t, gw.InsertEvent(ctx, "o-5", "order_received", json.RawMessage(`{"items":[]}`)))
	require.NoError(t, gw.InsertEvent(ctx, "o-5", "order_validated", nil))
	require.NoError(t, gw.InsertEvent(ctx, "o-5", "payment_charged", json.RawMessage(`{"amount":1}`)))

	events, err := gw.ListEvents(ctx, "o-5")
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, "order_received", events[0].Type)
	require.Equal(t, "order_validated", events[1].Type)
	require.Equal(t, "payment_charged", events[2].Type)
	require.Nil(t, events[1].Payload)
}

func TestInsertShipment_RepeatedStagesAllowed(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)

	require.NoError(t, gw.InsertShipment(ctx, "o-6", ShipmentPrepared))
	require.NoError(t, gw.InsertShipment(ctx, "o-6", ShipmentPrepared))
	require.NoError(t, gw.InsertShipment(ctx, "o-6", ShipmentDispatched))

	shipments, err := gw.ListShipments(ctx, "o-6")
	require.NoError(t, err)
	require.Len(t, shipments, 3)
	require.Equal(t, ShipmentPrepared, shipments[0].Status)
	require.Equal(t, ShipmentPrepared, shipments[1].Status)
	require.Equal(t, ShipmentDispatched, shipments[2].Status)
}
