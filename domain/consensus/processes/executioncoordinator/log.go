package executioncoordinator

import (
	"github.com/treegraph/tgraphd/infrastructure/logger"
)

var log = logger.RegisterSubSystem("EXEC")
