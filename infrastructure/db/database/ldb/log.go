package ldb

import "github.com/treegraph/tgraphd/infrastructure/logger"

var log = logger.RegisterSubSystem("LVDB")
