package engine

import (
	"github.com/treegraph/tgraphd/infrastructure/logger"
	"github.com/treegraph/tgraphd/util/panics"
)

var log = logger.RegisterSubSystem("FINL")
var spawn = panics.GoroutineWrapperFunc(log)
