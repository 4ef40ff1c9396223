package store

// Dialect abstracts the SQL differences between the production MySQL store
// and the SQLite store used for development and tests. Both use `?`
// placeholders; only upsert syntax and row locking differ.
type Dialect interface {
	// Name returns the driver-facing dialect name ("mysql" or "sqlite").
	Name() string

	// UpsertOrderSQL inserts an order row or advances its state. An explicit
	// NULL address must not clear an existing address (COALESCE semantics).
	UpsertOrderSQL() string

	// SelectPaymentSQL reads a payment row by payment_id, locking it for
	// update where the engine supports row locks.
	SelectPaymentSQL() string

	// UpsertPaymentSQL inserts or updates a payment row to status 'charged'.
	UpsertPaymentSQL() string

	// SchemaDDL returns the statements that create the four tables.
	SchemaDDL() []string
}

type mysqlDialect struct{}

// MySQL returns the production dialect.
func MySQL() Dialect { return mysqlDialect{} }

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) UpsertOrderSQL() string {
	return `
		INSERT INTO orders (id, state, address_json)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
		  state = VALUES(state),
		  address_json = COALESCE(VALUES(address_json), address_json)`
}

func (mysqlDialect) SelectPaymentSQL() string {
	// The row lock serializes concurrent retries on the same payment_id.
	return `SELECT status, amount FROM payments WHERE payment_id = ? FOR UPDATE`
}

func (mysqlDialect) UpsertPaymentSQL() string {
	return `
		INSERT INTO payments (payment_id, order_id, status, amount)
		VALUES (?, ?, 'charged', ?)
		ON DUPLICATE KEY UPDATE
		  order_id = VALUES(order_id),
		  status   = 'charged',
		  amount   = VALUES(amount)`
}

func (mysqlDialect) SchemaDDL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(255) NOT NULL PRIMARY KEY,
			state VARCHAR(32) NOT NULL,
			address_json JSON NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS events (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			order_id VARCHAR(255) NOT NULL,
			type VARCHAR(64) NOT NULL,
			payload_json JSON NULL,
			created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			INDEX idx_events_order (order_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS payments (
			payment_id VARCHAR(255) NOT NULL PRIMARY KEY,
			order_id VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			amount DECIMAL(18,2) NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS shipments (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			order_id VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			payload_json JSON NULL,
			created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			INDEX idx_shipments_order (order_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}
}

type sqliteDialect struct{}

// SQLite returns the single-file dialect used by tests and local runs.
// SQLite takes a database-level write lock inside a transaction, so the
// missing FOR UPDATE clause does not weaken the payment charge guarantee.
func SQLite() Dialect { return sqliteDialect{} }

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) UpsertOrderSQL() string {
	return `
		INSERT INTO orders (id, state, address_json)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  state = excluded.state,
		  address_json = COALESCE(excluded.address_json, address_json)`
}

func (sqliteDialect) SelectPaymentSQL() string {
	return `SELECT status, amount FROM payments WHERE payment_id = ?`
}

func (sqliteDialect) UpsertPaymentSQL() string {
	return `
		INSERT INTO payments (payment_id, order_id, status, amount)
		VALUES (?, ?, 'charged', ?)
		ON CONFLICT(payment_id) DO UPDATE SET
		  order_id = excluded.order_id,
		  status   = 'charged',
		  amount   = excluded.amount`
}

func (sqliteDialect) SchemaDDL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT NOT NULL PRIMARY KEY,
			state TEXT NOT NULL,
			address_json TEXT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			type TEXT NOT NULL,
			payload_json TEXT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			payment_id TEXT NOT NULL PRIMARY KEY,
			order_id TEXT NOT NULL,
			status TEXT NOT NULL,
			amount TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS shipments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			status TEXT NOT NULL,
			payload_json TEXT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
}
