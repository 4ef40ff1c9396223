// Package config defines the environment-driven configuration groups shared
// by the orderflow commands. Each group is a go-flags struct, so every knob
// is reachable both as a command-line flag and as an environment variable.
package config

import (
	"fmt"
	"time"
)

// Temporal configures the connection to the durable-execution engine and the
// task queues that route workflow and activity tasks to the worker hosts.
type Temporal struct {
	Target            string `long:"temporal-target" env:"TEMPORAL_TARGET" default:"localhost:7233" description:"Temporal frontend host:port"`
	Namespace         string `long:"temporal-namespace" env:"TEMPORAL_NAMESPACE" default:"default" description:"Temporal namespace"`
	OrdersTaskQueue   string `long:"orders-tq" env:"ORDERS_TQ" default:"orders-tq" description:"Task queue for the order workflow and its activities"`
	ShippingTaskQueue string `long:"shipping-tq" env:"SHIPPING_TQ" default:"shipping-tq" description:"Task queue for the shipping child workflow"`
}

// Database configures the MySQL connection used by the persistence gateway.
// Credentials are read from the process environment only.
type Database struct {
	Host     string `long:"db-host" env:"MYSQL_HOST" default:"localhost" description:"MySQL host"`
	Port     int    `long:"db-port" env:"MYSQL_PORT" default:"3307" description:"MySQL port"`
	Name     string `long:"db-name" env:"MYSQL_DB" default:"trellis" description:"MySQL database name"`
	User     string `long:"db-user" env:"MYSQL_USER" default:"trellis" description:"MySQL user"`
	Password string `long:"db-password" env:"MYSQL_PASSWORD" default:"trellisPW" description:"MySQL password"`

	// MaxOpenConns bounds concurrent connections. Idle connections are not
	// reused across activity executions; see store.OpenMySQL.
	MaxOpenConns int `long:"db-max-open-conns" env:"MYSQL_MAX_OPEN_CONNS" default:"50" description:"Maximum open database connections"`
}

// DSN renders the go-sql-driver/mysql data source name.
func (d Database) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// API configures the admission HTTP server.
type API struct {
	Listen          string        `long:"listen" env:"API_LISTEN" default:":8080" description:"HTTP listen address"`
	ShutdownTimeout time.Duration `long:"shutdown-timeout" env:"API_SHUTDOWN_TIMEOUT" default:"10s" description:"Graceful shutdown grace period"`
}

// Logging configures process logging.
type Logging struct {
	Level string `long:"log-level" env:"LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
	JSON  bool   `long:"log-json" env:"LOG_JSON" description:"Emit JSON log lines"`
}

// Worker configures per-host worker concurrency and observability.
type Worker struct {
	MaxConcurrentActivities    int    `long:"max-concurrent-activities" env:"WORKER_MAX_ACTIVITIES" default:"50" description:"Concurrent activity executions per host"`
	MaxConcurrentWorkflowTasks int    `long:"max-concurrent-workflow-tasks" env:"WORKER_MAX_WORKFLOW_TASKS" default:"20" description:"Concurrent workflow tasks per host"`
	MetricsListen              string `long:"metrics-listen" env:"WORKER_METRICS_LISTEN" description:"Optional listen address for the Prometheus /metrics endpoint"`
}

// Flaky toggles the failure injector used to exercise retry policies and
// activity timeouts. Off by default; never enable in production.
type Flaky struct {
	Enabled bool `long:"flaky" env:"FLAKY_ENABLED" description:"Enable the activity failure injector"`
}
