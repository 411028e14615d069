package main

import (
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/streamingfast/cli"
	. "github.com/streamingfast/cli"
	"github.com/streamingfast/cli/sflags"
	"github.com/streamingfast/eth-go"
	"go.uber.org/zap"

	"github.com/graphprotocol/gateway-core/horizon"
	"github.com/graphprotocol/gateway-core/indexerclient"
	"github.com/graphprotocol/gateway-core/types"
)

var queryCmd = Command(
	runQuery,
	"query",
	"Sign a single TAP receipt and send one query to an indexer",
	Description(`
		Exercises the receipt signer and indexer query client end to end: signs
		a TAP receipt (v1 or v2 depending on --strategy), issues a single
		signed query against an indexer's deployment endpoint, and prints the
		classified response.

		This is useful for smoke-testing an indexer or a signer key outside of
		the full gateway-core process.
	`),
	Flags(func(flags *pflag.FlagSet) {
		flags.String("indexer-url", "", "Indexer base URL (required)")
		flags.String("deployment", "", "Deployment id, hex-encoded content hash (required)")
		flags.String("query", `{"query":"{ _meta { block { number } } }"}`, "GraphQL query body")
		flags.String("signer-key", "", "Receipt signing private key, hex (required)")
		flags.Uint64("chain-id", 1337, "Chain id for the EIP-712 domain")
		flags.String("verifying-contract", "", "TAP/GraphTallyCollector contract address (required)")
		flags.String("strategy", "pre-horizon", `Receipt strategy, "pre-horizon" or "post-horizon"`)
		flags.String("collection-or-allocation", "", "32-byte collection id (post-horizon) or allocation address (pre-horizon), hex (required)")
		flags.String("data-service", "0x0000000000000000000000000000000000000000", "Data service address (post-horizon only)")
		flags.String("service-provider", "0x0000000000000000000000000000000000000000", "Service provider address (post-horizon only)")
		flags.Uint64("fee-atto-grt", 0, "Receipt fee, in attoGRT")
		flags.Duration("timeout", 5*time.Second, "Query timeout")
	}),
)

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	indexerURL := sflags.MustGetString(cmd, "indexer-url")
	cli.Ensure(indexerURL != "", "<indexer-url> is required")

	deploymentHex := sflags.MustGetString(cmd, "deployment")
	cli.Ensure(deploymentHex != "", "<deployment> is required")
	var deployment types.DeploymentId
	deploymentHash := eth.MustNewHash(deploymentHex)
	copy(deployment[:], deploymentHash)

	queryBody := sflags.MustGetString(cmd, "query")

	signerKeyHex := sflags.MustGetString(cmd, "signer-key")
	cli.Ensure(signerKeyHex != "", "<signer-key> is required")
	signerKey, err := eth.NewPrivateKey(signerKeyHex)
	cli.NoError(err, "invalid <signer-key>")

	chainID := sflags.MustGetUint64(cmd, "chain-id")

	verifyingContractHex := sflags.MustGetString(cmd, "verifying-contract")
	cli.Ensure(verifyingContractHex != "", "<verifying-contract> is required")
	verifyingContract, err := eth.NewAddress(verifyingContractHex)
	cli.NoError(err, "invalid <verifying-contract>")

	strategyFlag := sflags.MustGetString(cmd, "strategy")
	var strategy horizon.Strategy
	switch strings.ToLower(strategyFlag) {
	case "pre-horizon":
		strategy = horizon.PreHorizon
	case "post-horizon":
		strategy = horizon.PostHorizon
	default:
		cli.Ensure(false, "invalid <strategy> %q, must be pre-horizon or post-horizon", strategyFlag)
	}

	collectionHex := sflags.MustGetString(cmd, "collection-or-allocation")
	cli.Ensure(collectionHex != "", "<collection-or-allocation> is required")
	var collection types.CollectionId
	if strategy.ShouldGenerateV1() {
		allocation, err := eth.NewAddress(collectionHex)
		cli.NoError(err, "invalid <collection-or-allocation> as an allocation address")
		collection = types.CollectionFromAllocation(allocation)
	} else {
		collectionHash := eth.MustNewHash(collectionHex)
		copy(collection[:], collectionHash)
	}

	dataServiceHex := sflags.MustGetString(cmd, "data-service")
	dataService, err := eth.NewAddress(dataServiceHex)
	cli.NoError(err, "invalid <data-service>")

	serviceProviderHex := sflags.MustGetString(cmd, "service-provider")
	serviceProvider, err := eth.NewAddress(serviceProviderHex)
	cli.NoError(err, "invalid <service-provider>")

	feeAttoGRT := sflags.MustGetUint64(cmd, "fee-atto-grt")
	timeout := sflags.MustGetDuration(cmd, "timeout")

	signer := horizon.NewSigner(signerKey, chainID, verifyingContract)
	receipt, err := signer.SignWithStrategy(strategy, collection, new(big.Int).SetUint64(feeAttoGRT), dataService, serviceProvider)
	cli.NoError(err, "failed to sign receipt")

	scalarReceiptHeader, err := receipt.ScalarReceiptHeader()
	cli.NoError(err, "failed to build Scalar-Receipt header")

	queryID := uuid.New().String()
	zlog.Info("sending indexer query",
		zap.String("query_id", queryID),
		zap.String("indexer_url", indexerURL),
		zap.Stringer("deployment", deployment),
		zap.Stringer("strategy", strategy),
	)

	httpClient := &http.Client{Timeout: timeout}
	client := indexerclient.NewClient(httpClient)

	response, qerr := client.Query(ctx, indexerURL, deployment, queryBody, scalarReceiptHeader)
	if qerr != nil {
		zlog.Warn("indexer query failed",
			zap.String("query_id", queryID),
			zap.String("kind", qerr.Kind.String()),
			zap.Error(qerr),
		)
		return nil
	}

	zlog.Info("indexer query succeeded",
		zap.String("query_id", queryID),
		zap.Int("status", response.Status),
		zap.Bool("attested", response.Attestation != nil),
		zap.Int("body_bytes", len(response.Body)),
	)
	return nil
}
