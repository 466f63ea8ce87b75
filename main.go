package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/treegraph/tgraphd/infrastructure/config"
	"github.com/treegraph/tgraphd/infrastructure/logger"
	"github.com/treegraph/tgraphd/infrastructure/os/signal"
	"github.com/treegraph/tgraphd/version"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfg.DebugLevel == "show" {
		fmt.Printf("Supported subsystems: %s\n", strings.Join(logger.SupportedSubsystems(), ", "))
		os.Exit(0)
	}
	logger.InitLog(filepath.Join(cfg.LogDir, config.DefaultLogFilename),
		filepath.Join(cfg.LogDir, config.DefaultErrLogFilename))
	err = logger.ParseAndSetLogLevels(cfg.DebugLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.BackendLog.Close()

	interrupt := signal.InterruptListener()
	log.Infof("Version %s", version.Version())
	log.Infof("Network %s, data directory %s", cfg.NetParams().Name, cfg.DataDir)

	n, err := newNode(cfg)
	if err != nil {
		log.Criticalf("Failed starting tgraphd: %+v", err)
		logger.BackendLog.Close()
		os.Exit(1)
	}
	n.start()
	defer n.stop()

	<-interrupt
}
