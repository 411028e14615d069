package main

import (
	. "github.com/streamingfast/cli"
	"github.com/streamingfast/logging"
	"go.uber.org/zap"
)

var zlog, _ = logging.PackageLogger("gatewaycore", "github.com/graphprotocol/gateway-core/cmd/gatewaycore")
var version = "dev"

func init() {
	logging.InstantiateLoggers(logging.WithDefaultLevel(zap.ErrorLevel))
}

func main() {
	Run(
		"gatewaycore",
		"Decentralized query-serving gateway core",
		ConfigureVersion(version),
		OnCommandErrorLogAndExit(zlog),

		serveCmd,
		queryCmd,
	)
}
