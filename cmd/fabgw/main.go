package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/osdi23p228/fabgw/pkg/cryptosuite"
	"github.com/osdi23p228/fabgw/pkg/infra"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	fullCmd string
)

var (
	app        = kingpin.New("fabgw", "A client and load driver for the Hyperledger Fabric Gateway")
	configFile = app.Flag("config", "Path of config file").Short('c').String()

	run = app.Command("run", "Drive transactions through the gateway and report throughput").Default()

	evaluate     = app.Command("evaluate", "Evaluate a transaction and print its result")
	evaluateArgs = evaluate.Arg("args", "Transaction function followed by its arguments").Strings()

	submit     = app.Command("submit", "Submit a transaction and wait for it to commit")
	submitArgs = submit.Arg("args", "Transaction function followed by its arguments").Strings()

	events          = app.Command("events", "Stream chaincode events as JSON lines or to Kafka")
	eventsChaincode = events.Flag("chaincode", "Chaincode to listen to, defaults to the configured one").String()
	eventsStart     = events.Flag("start-block", "Block to start reading from, negative waits for the next commit").Default("-1").Int64()
	eventsAfterTx   = events.Flag("after-tx", "Skip events up to and including this transaction").String()
	eventsLimit     = events.Flag("limit", "Stop after this many events").Int()

	keygen          = app.Command("keygen", "Generate a key pair and a certificate signing request")
	keygenMSPID     = keygen.Flag("mspid", "MSP id put in the CSR subject").String()
	keygenCN        = keygen.Flag("cn", "Common name of the CSR subject").Default("fabgw").String()
	keygenKeySize   = keygen.Flag("key-size", "256 or 384").Default("256").Int()
	keygenAlgorithm = keygen.Flag("digest", "SHA256, SHA384 or SHA512").Default("SHA256").String()

	version = app.Command("version", "Show version information")
)

func setLogLevel(logger *log.Logger) {
	logger.SetLevel(log.InfoLevel)
	if value, ok := os.LookupEnv("FABGW_LOGLEVEL"); ok {
		if level, err := log.ParseLevel(value); err == nil {
			logger.SetLevel(level)
		}
	}
}

func getLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	setLogLevel(logger)
	return logger
}

func getConfig() (*infra.Config, error) {
	if *configFile == "" {
		return nil, errors.New("required flag --config not provided")
	}
	config, err := infra.LoadConfigFromFile(*configFile)
	if err != nil {
		return nil, errors.WithMessage(err, "fail to load config")
	}
	return config, nil
}

func main() {
	logger := getLogger()

	fullCmd = kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, logger); err != nil {
		logger.Errorln(err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, logger *log.Logger) error {
	switch fullCmd {
	case version.FullCommand():
		fmt.Print(infra.GetVersionInfo())
		return nil
	case keygen.FullCommand():
		return runKeygen()
	}

	config, err := getConfig()
	if err != nil {
		return err
	}

	switch fullCmd {
	case run.FullCommand():
		return infra.Process(config, logger)
	case evaluate.FullCommand():
		result, err := infra.Evaluate(ctx, config, logger, *evaluateArgs)
		if err != nil {
			return err
		}
		fmt.Println(string(result))
		return nil
	case submit.FullCommand():
		return runSubmit(ctx, config, logger)
	case events.FullCommand():
		return runEvents(ctx, config, logger)
	default:
		return errors.Errorf("Invalid command: %s", fullCmd)
	}
}

func runSubmit(ctx context.Context, config *infra.Config, logger *log.Logger) error {
	result, err := infra.Submit(ctx, config, logger, *submitArgs)
	if result != nil {
		logger.WithField("txid", result.TransactionID).Infof("Submitted transaction")
		if result.Status != nil {
			logger.WithField("txid", result.TransactionID).Infof("Committed in block %d with %s", result.Status.BlockNumber, result.Status.Code)
		}
	}
	if err != nil {
		return err
	}
	fmt.Println(string(result.Result))
	return nil
}

func runEvents(ctx context.Context, config *infra.Config, logger *log.Logger) error {
	sink, err := infra.NewEventSink(config, os.Stdout)
	if err != nil {
		return err
	}
	defer sink.Close()

	opts := infra.EventsOptions{
		AfterTxID:     *eventsAfterTx,
		Limit:         *eventsLimit,
		ChaincodeName: *eventsChaincode,
	}
	if *eventsStart >= 0 {
		start := uint64(*eventsStart)
		opts.StartBlock = &start
	}

	count, err := infra.Events(ctx, config, logger, sink, opts)
	logger.Infof("Read %d chaincode events", count)
	return err
}

func runKeygen() error {
	suite, err := cryptosuite.New(cryptosuite.Options{KeySize: *keygenKeySize, DigestAlgorithm: *keygenAlgorithm})
	if err != nil {
		return err
	}

	info, err := infra.Keygen(suite, *keygenMSPID, *keygenCN)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return errors.Wrap(err, "fail to encode key")
	}
	fmt.Println(string(out))
	return nil
}
