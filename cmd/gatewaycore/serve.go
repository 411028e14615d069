package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/streamingfast/cli"
	. "github.com/streamingfast/cli"
	"github.com/streamingfast/cli/sflags"
	"github.com/streamingfast/eth-go"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/graphprotocol/gateway-core/app"
	"github.com/graphprotocol/gateway-core/config"
	"github.com/graphprotocol/gateway-core/horizon"
	"github.com/graphprotocol/gateway-core/network"
	"github.com/graphprotocol/gateway-core/reporting"
	"github.com/graphprotocol/gateway-core/types"
)

var serveCmd = Command(
	runServe,
	"serve",
	"Run the gateway core's supervised tasks (horizon tracker, topology refresher, reporter)",
	Description(`
		Starts the three long-running gateway-core services:
		- the horizon tracker, polling trusted indexers for TAP Horizon activation
		- the topology refresher, periodically rebuilding and publishing the
		  network topology snapshot
		- the reporter, draining completed client requests to Kafka

		Indexer selection, cost-model evaluation, caching and the HTTP ingress
		server are external collaborators and are not started by this command.
	`),
	Flags(func(flags *pflag.FlagSet) {
		flags.String("config", "", "Path to the gateway core YAML config file (required)")
	}),
)

func runServe(cmd *cobra.Command, args []string) error {
	configPath := sflags.MustGetString(cmd, "config")
	cli.Ensure(configPath != "", "<config> is required")

	cfg, err := config.Load(configPath)
	cli.NoError(err, "failed to load config %q", configPath)

	signerKeyHex, err := os.ReadFile(cfg.SignerKeyPath)
	cli.NoError(err, "failed to read signer key from %q", cfg.SignerKeyPath)
	signerKey, err := eth.NewPrivateKey(strings.TrimSpace(string(signerKeyHex)))
	cli.NoError(err, "invalid signer key in %q", cfg.SignerKeyPath)

	cli.Ensure(cfg.VerifyingContract != "", "config.verifying_contract is required")
	verifyingContract, err := eth.NewAddress(cfg.VerifyingContract)
	cli.NoError(err, "invalid config.verifying_contract %q", cfg.VerifyingContract)

	signer := horizon.NewSigner(signerKey, cfg.ChainID, verifyingContract)
	zlog.Info("loaded receipt signer", zap.Stringer("payer", signer.PayerAddress()))

	trustedIndexers := make([]horizon.TrustedIndexer, 0, len(cfg.TrustedIndexers))
	for _, url := range cfg.TrustedIndexers {
		trustedIndexers = append(trustedIndexers, horizon.TrustedIndexer{URL: url})
	}
	tracker := horizon.NewTracker(zlog, nil, trustedIndexers, cfg.HorizonCheckInterval)
	horizonService := app.NewHorizonService(zlog, tracker)

	topologyService := app.NewTopologyService(zlog, noopUpstreamFetcher{}, cfg.TopologyRefreshInterval)

	cli.Ensure(len(cfg.KafkaBrokers) > 0, "config.kafka_brokers must list at least one broker")
	kafkaClient, err := kgo.NewClient(kgo.SeedBrokers(cfg.KafkaBrokers...))
	cli.NoError(err, "failed to construct kafka client")

	reporter := reporting.NewReporter(zlog, signer.PayerAddress(), cfg.GatewayEnvID,
		reporting.Topics{Queries: cfg.QueriesTopic, Attestations: cfg.AttestationsTopic},
		kafkaClient, 0)
	reporterService := app.NewReporterService(zlog, reporter)

	application := NewApplication(cmd.Context())
	application.SuperviseAndStart(horizonService)
	application.SuperviseAndStart(topologyService)
	application.SuperviseAndStart(reporterService)

	return application.WaitForTermination(zlog, 0*time.Second, 30*time.Second)
}

// noopUpstreamFetcher is the default UpstreamFetcher when no real
// network-subgraph/indexer-status integration has been wired up: it
// publishes an empty snapshot on every tick rather than fail the
// process outright. Operators replace this with a real fetcher that
// talks to their network subgraph deployment.
type noopUpstreamFetcher struct{}

func (noopUpstreamFetcher) FetchIndexersInfo(ctx context.Context) (map[types.Address]network.IndexerInfo, error) {
	return map[types.Address]network.IndexerInfo{}, nil
}

func (noopUpstreamFetcher) FetchSubgraphsInfo(ctx context.Context) (map[types.SubgraphId]network.SubgraphInfo, error) {
	return map[types.SubgraphId]network.SubgraphInfo{}, nil
}
