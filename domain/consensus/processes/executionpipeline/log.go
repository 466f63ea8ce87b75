package executionpipeline

import (
	"github.com/treegraph/tgraphd/infrastructure/logger"
	"github.com/treegraph/tgraphd/util/panics"
)

var log = logger.RegisterSubSystem("EXEC")
var spawn = panics.GoroutineWrapperFunc(log)
