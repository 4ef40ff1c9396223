// Package store is the persistence gateway for orders, events, payments and
// shipments. Every operation is a single tight transaction against a
// short-lived connection; nothing in this package is workflow-aware, so the
// same gateway serves every activity on both worker hosts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/trellislabs/orderflow/internal/config"
	"github.com/trellislabs/orderflow/internal/telemetry"
)

// OrderState is the lifecycle state stored in orders.state. States only move
// forward through this sequence; retried activities re-assert the same state
// rather than rolling back.
type OrderState string

const (
	StateReceived       OrderState = "received"
	StateValidated      OrderState = "validated"
	StatePaymentCharged OrderState = "payment_charged"
	StateShipping       OrderState = "shipping"
	StateShipped        OrderState = "shipped"
)

// ShipmentStatus is the stage recorded in an append-only shipments row.
type ShipmentStatus string

const (
	ShipmentPrepared   ShipmentStatus = "prepared"
	ShipmentDispatched ShipmentStatus = "dispatched"
)

// OrderRow is a row of the orders table.
type OrderRow struct {
	ID      string
	State   OrderState
	Address json.RawMessage
}

// Event is a row of the append-only events audit table.
type Event struct {
	OrderID   string
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Shipment is a row of the append-only shipments table.
type Shipment struct {
	OrderID   string
	Status    ShipmentStatus
	CreatedAt time.Time
}

// ChargeResult is the outcome of an idempotent charge.
type ChargeResult struct {
	Status string
	Amount decimal.Decimal

	// WasNew is false when the payment_id had already been charged, in
	// which case Amount is the previously stored (authoritative) amount.
	WasNew bool
}

// Gateway executes typed SQL operations against the order store.
type Gateway struct {
	db      *sql.DB
	dialect Dialect
	tracer  trace.Tracer
}

// OpenMySQL opens the production MySQL gateway. Idle connections are not
// kept, so every operation acquires a fresh connection; this mirrors the
// unpooled discipline the activity scheduler expects.
func OpenMySQL(cfg config.Database) (*Gateway, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxIdleConns(0)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	return New(db, MySQL()), nil
}

// OpenSQLite opens a single-file gateway for tests and local development.
func OpenSQLite(path string) (*Gateway, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent activity tests.
	db.SetMaxOpenConns(1)
	return New(db, SQLite()), nil
}

// New wraps an existing database handle.
func New(db *sql.DB, dialect Dialect) *Gateway {
	return &Gateway{
		db:      db,
		dialect: dialect,
		tracer:  telemetry.Tracer("orderflow/store"),
	}
}

// Ping verifies connectivity.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

// Close releases the underlying handle.
func (g *Gateway) Close() error {
	return g.db.Close()
}

// EnsureSchema creates the four tables if they do not exist. Production
// deployments run versioned migrations instead (see Migrate); this path
// serves tests and throwaway local databases.
func (g *Gateway) EnsureSchema(ctx context.Context) error {
	for _, ddl := range g.dialect.SchemaDDL() {
		if _, err := g.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// UpsertOrderState inserts the order or advances its state. A nil address
// leaves any previously stored address untouched.
func (g *Gateway) UpsertOrderState(ctx context.Context, orderID string, state OrderState, address json.RawMessage) error {
	ctx, span := g.tracer.Start(ctx, "store.upsert_order_state",
		trace.WithAttributes(
			attribute.String("order_id", orderID),
			attribute.String("state", string(state)),
		))
	_, err := g.db.ExecContext(ctx, g.dialect.UpsertOrderSQL(), orderID, string(state), nullableJSON(address))
	telemetry.End(span, err)
	if err != nil {
		return fmt.Errorf("upsert order %s: %w", orderID, err)
	}
	return nil
}

// InsertEvent appends an audit event. Events are never mutated.
func (g *Gateway) InsertEvent(ctx context.Context, orderID, typ string, payload json.RawMessage) error {
	ctx, span := g.tracer.Start(ctx, "store.insert_event",
		trace.WithAttributes(
			attribute.String("order_id", orderID),
			attribute.String("type", typ),
		))
	_, err := g.db.ExecContext(ctx,
		`INSERT INTO events (order_id, type, payload_json) VALUES (?, ?, ?)`,
		orderID, typ, nullableJSON(payload))
	telemetry.End(span, err)
	if err != nil {
		return fmt.Errorf("insert event %s/%s: %w", orderID, typ, err)
	}
	return nil
}

// UpdateAddress replaces address_json without touching state. It is a plain
// row-level UPDATE, so it is safe to run concurrently with state upserts.
func (g *Gateway) UpdateAddress(ctx context.Context, orderID string, address json.RawMessage) error {
	ctx, span := g.tracer.Start(ctx, "store.update_address",
		trace.WithAttributes(attribute.String("order_id", orderID)))
	_, err := g.db.ExecContext(ctx,
		`UPDATE orders SET address_json = ? WHERE id = ?`,
		nullableJSON(address), orderID)
	telemetry.End(span, err)
	if err != nil {
		return fmt.Errorf("update address %s: %w", orderID, err)
	}
	return nil
}

// ChargePaymentIdempotent charges amount under paymentID exactly once.
// Within one transaction the payment row is locked (where the dialect
// supports it) and inspected: an existing 'charged' row wins, and its stored
// amount is returned unchanged. Two racing retries therefore serialize, and
// the loser observes the winner's charge.
func (g *Gateway) ChargePaymentIdempotent(ctx context.Context, paymentID, orderID string, amount decimal.Decimal) (ChargeResult, error) {
	ctx, span := g.tracer.Start(ctx, "store.charge_payment_idempotent",
		trace.WithAttributes(
			attribute.String("order_id", orderID),
			attribute.String("payment_id", paymentID),
		))

	res, err := g.chargeTx(ctx, paymentID, orderID, amount)
	telemetry.End(span, err)
	return res, err
}

func (g *Gateway) chargeTx(ctx context.Context, paymentID, orderID string, amount decimal.Decimal) (ChargeResult, error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("begin charge tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var (
		status    string
		amountStr string
	)
	err = tx.QueryRowContext(ctx, g.dialect.SelectPaymentSQL(), paymentID).Scan(&status, &amountStr)
	switch {
	case err == nil && status == "charged":
		stored, perr := decimal.NewFromString(amountStr)
		if perr != nil {
			return ChargeResult{}, fmt.Errorf("parse stored amount %q: %w", amountStr, perr)
		}
		if err := tx.Commit(); err != nil {
			return ChargeResult{}, fmt.Errorf("commit charge tx: %w", err)
		}
		return ChargeResult{Status: "charged", Amount: stored, WasNew: false}, nil
	case err != nil && err != sql.ErrNoRows:
		return ChargeResult{}, fmt.Errorf("select payment %s: %w", paymentID, err)
	}

	if _, err := tx.ExecContext(ctx, g.dialect.UpsertPaymentSQL(), paymentID, orderID, amount.StringFixed(2)); err != nil {
		return ChargeResult{}, fmt.Errorf("upsert payment %s: %w", paymentID, err)
	}
	if err := tx.Commit(); err != nil {
		return ChargeResult{}, fmt.Errorf("commit charge tx: %w", err)
	}
	return ChargeResult{Status: "charged", Amount: amount, WasNew: true}, nil
}

// InsertShipment appends a shipping-progress row. Repeated stages on retry
// are intentional; the table is an audit view.
func (g *Gateway) InsertShipment(ctx context.Context, orderID string, status ShipmentStatus) error {
	ctx, span := g.tracer.Start(ctx, "store.insert_shipment",
		trace.WithAttributes(
			attribute.String("order_id", orderID),
			attribute.String("status", string(status)),
		))
	_, err := g.db.ExecContext(ctx,
		`INSERT INTO shipments (order_id, status, payload_json) VALUES (?, ?, NULL)`,
		orderID, string(status))
	telemetry.End(span, err)
	if err != nil {
		return fmt.Errorf("insert shipment %s/%s: %w", orderID, status, err)
	}
	return nil
}

// GetOrder reads one order row. Returns ErrNotFound when absent.
func (g *Gateway) GetOrder(ctx context.Context, orderID string) (OrderRow, error) {
	var (
		row     OrderRow
		address sql.NullString
	)
	err := g.db.QueryRowContext(ctx,
		`SELECT id, state, address_json FROM orders WHERE id = ?`, orderID).
		Scan(&row.ID, &row.State, &address)
	if err == sql.ErrNoRows {
		return OrderRow{}, ErrNotFound
	}
	if err != nil {
		return OrderRow{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if address.Valid {
		row.Address = json.RawMessage(address.String)
	}
	return row, nil
}

// ListEvents returns the order's audit trail in append order.
func (g *Gateway) ListEvents(ctx context.Context, orderID string) ([]Event, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT order_id, type, payload_json, created_at FROM events WHERE order_id = ? ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("list events %s: %w", orderID, err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev      Event
			payload sql.NullString
		)
		if err := rows.Scan(&ev.OrderID, &ev.Type, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if payload.Valid {
			ev.Payload = json.RawMessage(payload.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ListShipments returns the order's shipping-progress rows in append order.
func (g *Gateway) ListShipments(ctx context.Context, orderID string) ([]Shipment, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT order_id, status, created_at FROM shipments WHERE order_id = ? ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("list shipments %s: %w", orderID, err)
	}
	defer rows.Close()

	var shipments []Shipment
	for rows.Next() {
		var sh Shipment
		if err := rows.Scan(&sh.OrderID, &sh.Status, &sh.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		shipments = append(shipments, sh)
	}
	return shipments, rows.Err()
}

// nullableJSON maps an empty raw message to SQL NULL.
func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return string(raw)
}
