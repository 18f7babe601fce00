package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/stratalabs/vestflow/internal/alert"
	"github.com/stratalabs/vestflow/internal/auth"
	"github.com/stratalabs/vestflow/internal/escrow"
	"github.com/stratalabs/vestflow/internal/holders"
	"github.com/stratalabs/vestflow/internal/ledger"
	"github.com/stratalabs/vestflow/internal/server"
	"github.com/stratalabs/vestflow/internal/store"
	"github.com/stratalabs/vestflow/internal/treasury"
	"github.com/stratalabs/vestflow/internal/vesting"
	"github.com/stratalabs/vestflow/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenFlag := flag.String("listen", ":8080", "HTTP listen address (or set VESTFLOW_LISTEN env var)")
	originsFlag := flag.String("allowed-origins", "", "comma-separated CORS origins (or set VESTFLOW_ALLOWED_ORIGINS env var)")

	holdersURLFlag := flag.String("holders-url", "", "holder enumeration service base URL (or set HOLDERS_URL env var)")
	escrowURLFlag := flag.String("escrow-url", "", "escrow provider base URL (or set ESCROW_URL env var)")
	escrowKeyFlag := flag.String("escrow-api-key", "", "escrow provider API key (or set ESCROW_API_KEY env var)")
	escrowTimeoutFlag := flag.Duration("escrow-timeout", 10*time.Second, "timeout for best-effort escrow calls")

	rpcURLFlag := flag.String("solana-rpc-url", "", "Solana RPC endpoint (or set SOLANA_RPC_URL env var)")
	treasuryAccountFlag := flag.String("treasury-account", "", "treasury token account address (or set TREASURY_ACCOUNT env var)")
	decimalsFlag := flag.Uint8("token-decimals", 9, "vested token mint decimals")

	adminWalletFlag := flag.String("admin-wallet", "", "administrator wallet public key (or set ADMIN_WALLET env var)")
	mergePolicyFlag := flag.String("merge-policy", "sum", "multi-rule merge policy: sum or highest")
	skipFailedRulesFlag := flag.Bool("skip-failed-rules", false, "skip rules whose holder enumeration fails instead of aborting")

	slackTokenFlag := flag.String("slack-bot-token", "", "Slack bot token for treasury alerts (or set SLACK_BOT_TOKEN env var)")
	slackChannelFlag := flag.String("slack-channel", "", "Slack channel for treasury alerts (or set SLACK_ALERT_CHANNEL env var)")

	migrateFlag := flag.Bool("migrate", false, "run database migrations and exit")

	flag.Parse()

	log := logger.New(*verboseFlag)

	// Override flags with environment variables if set.
	for env, target := range map[string]*string{
		"VESTFLOW_LISTEN":          listenFlag,
		"VESTFLOW_ALLOWED_ORIGINS": originsFlag,
		"HOLDERS_URL":              holdersURLFlag,
		"ESCROW_URL":               escrowURLFlag,
		"ESCROW_API_KEY":           escrowKeyFlag,
		"SOLANA_RPC_URL":           rpcURLFlag,
		"TREASURY_ACCOUNT":         treasuryAccountFlag,
		"ADMIN_WALLET":             adminWalletFlag,
		"SLACK_BOT_TOKEN":          slackTokenFlag,
		"SLACK_ALERT_CHANNEL":      slackChannelFlag,
	} {
		if v := os.Getenv(env); v != "" {
			*target = v
		}
	}

	dbCfg, err := store.ConfigFromEnv()
	if err != nil {
		return err
	}

	if *migrateFlag {
		return store.Migrate(dbCfg, log)
	}

	if *holdersURLFlag == "" {
		return fmt.Errorf("--holders-url is required")
	}
	if *rpcURLFlag == "" || *treasuryAccountFlag == "" {
		return fmt.Errorf("--solana-rpc-url and --treasury-account are required")
	}
	if *adminWalletFlag == "" {
		return fmt.Errorf("--admin-wallet is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.New(ctx, dbCfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	holderClient := holders.New(*holdersURLFlag, 30*time.Second, log)

	var escrowProvider vesting.EscrowProvider
	if *escrowURLFlag != "" {
		escrowProvider = escrow.New(*escrowURLFlag, *escrowKeyFlag, 30*time.Second, log)
	} else {
		log.Warn("no escrow provider configured, escrow integration disabled")
	}

	engine, err := vesting.NewEngine(vesting.Config{
		Store:           db,
		Holders:         holderClient,
		Escrow:          escrowProvider,
		Logger:          log,
		Merge:           vesting.MergePolicy(*mergePolicyFlag),
		SkipFailedRules: *skipFailedRulesFlag,
		EscrowTimeout:   *escrowTimeoutFlag,
		Decimals:        *decimalsFlag,
	})
	if err != nil {
		return err
	}

	balances, err := ledger.New(*rpcURLFlag, *treasuryAccountFlag, log)
	if err != nil {
		return err
	}

	var alerter treasury.Alerter
	if *slackTokenFlag != "" && *slackChannelFlag != "" {
		alerter = alert.NewSlack(*slackTokenFlag, *slackChannelFlag, log)
	}
	reconciler := treasury.New(db, balances, alerter, *decimalsFlag, log)

	authn := auth.New(*adminWalletFlag, nil)

	var origins []string
	if *originsFlag != "" {
		origins = strings.Split(*originsFlag, ",")
	}
	srv := server.New(server.Config{
		Addr:           *listenFlag,
		AllowedOrigins: origins,
	}, engine, db, reconciler, authn, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info("vestflowd started", "listen", *listenFlag)
	return g.Wait()
}
