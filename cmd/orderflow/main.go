// orderflow is the single entrypoint for the order-processing system. It
// hosts the admission API, the two worker processes and the schema
// migrator as subcommands.
package main

import (
	"os"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
)

func main() {
	parser := flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)

	addCmd(parser, "serve-api", "Serve the admission HTTP API", `
Serve the HTTP surface that starts order workflows and forwards signals
and status queries to the engine.
`, &cmdServeAPI{})

	addCmd(parser, "worker-orders", "Run the orders worker host", `
Run the worker host that executes the order workflow and the order-side
activities on the orders task queue.
`, &cmdWorkerOrders{})

	addCmd(parser, "worker-shipping", "Run the shipping worker host", `
Run the worker host that executes the shipping child workflow and its
activities on the shipping task queue.
`, &cmdWorkerShipping{})

	addCmd(parser, "migrate", "Apply database migrations", `
Apply the embedded schema migrations to the configured MySQL database.
`, &cmdMigrate{})

	if _, err := parser.Parse(); err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		log.WithError(err).Fatal("command failed")
	}
}

func addCmd(parser *flags.Parser, name, short, long string, cmd interface{}) {
	if _, err := parser.AddCommand(name, short, long, cmd); err != nil {
		log.WithError(err).Fatalf("failed to add %s command", name)
	}
}
