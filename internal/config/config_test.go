package config

import (
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/require"
)

func TestDatabaseDSN(t *testing.T) {
	d := Database{
		Host:     "db.internal",
		Port:     3307,
		Name:     "trellis",
		User:     "app",
		Password: "secret",
	}
	require.Equal(t,
		"app:secret@tcp(db.internal:3307)/trellis?parseTime=true&charset=utf8mb4",
		d.DSN())
}

func TestDefaults(t *testing.T) {
	var opts struct {
		Temporal Temporal `group:"temporal"`
		Database Database `group:"database"`
		Worker   Worker   `group:"worker"`
	}
	_, err := flags.NewParser(&opts, flags.None).ParseArgs(nil)
	require.NoError(t, err)

	require.Equal(t, "localhost:7233", opts.Temporal.Target)
	require.Equal(t, "orders-tq", opts.Temporal.OrdersTaskQueue)
	require.Equal(t, "shipping-tq", opts.Temporal.ShippingTaskQueue)
	require.Equal(t, 3307, opts.Database.Port)
	require.Equal(t, 50, opts.Worker.MaxConcurrentActivities)
	require.Equal(t, 20, opts.Worker.MaxConcurrentWorkflowTasks)
}

func TestFlagsOverrideDefaults(t *testing.T) {
	var opts struct {
		Database Database `group:"database"`
	}
	_, err := flags.NewParser(&opts, flags.None).ParseArgs([]string{
		"--db-host=mysql.prod", "--db-port=3306",
	})
	require.NoError(t, err)
	require.Equal(t, "mysql.prod", opts.Database.Host)
	require.Equal(t, 3306, opts.Database.Port)
}
