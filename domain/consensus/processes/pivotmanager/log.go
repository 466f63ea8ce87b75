package pivotmanager

import (
	"github.com/treegraph/tgraphd/infrastructure/logger"
)

var log = logger.RegisterSubSystem("PIVT")
