package main

import (
	"context"
	"database/sql"

	log "github.com/sirupsen/logrus"

	"github.com/trellislabs/orderflow/internal/config"
	"github.com/trellislabs/orderflow/internal/logging"
	"github.com/trellislabs/orderflow/internal/store"
)

type cmdMigrate struct {
	Database config.Database `group:"Database"`
	Logging  config.Logging  `group:"Logging"`
}

func (c *cmdMigrate) Execute(_ []string) error {
	logging.Configure(c.Logging)

	db, err := sql.Open("mysql", c.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(context.Background(), db); err != nil {
		return err
	}
	log.WithField("database", c.Database.Name).Info("migrations applied")
	return nil
}
