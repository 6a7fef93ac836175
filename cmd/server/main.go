package main

import (
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/config"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/metrics"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/server"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/util"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/datasource"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/logger"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/logger/console"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/w7x"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	cfg, err := config.LoadReaderConfig()
	if err != nil {
		logger.Fatal("Failed to load MDSplus configuration", "err", err)
	}

	m := metrics.New()
	reader := &w7x.Reader{Config: cfg, Observer: m.ObserveNode}
	if err := reader.Register(datasource.Default); err != nil {
		logger.Fatal("Failed to register data source", "err", err)
	}

	server.Init(datasource.Default, m)
}
