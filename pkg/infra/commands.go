package infra

import (
	"context"
	"crypto/x509/pkix"
	"io"

	"github.com/osdi23p228/fabgw/pkg/cryptosuite"
	"github.com/osdi23p228/fabgw/pkg/gateway"
	"github.com/osdi23p228/fabgw/pkg/identity"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// transactionArgs falls back to the configured args when none are given on the command line
func transactionArgs(c *Config, args []string) (string, []string, error) {
	if len(args) == 0 {
		args = c.Args
	}
	if len(args) == 0 {
		return "", nil, errors.New("no transaction function given")
	}
	return args[0], args[1:], nil
}

func proposalOptions(c *Config, args []string) []gateway.ProposalOption {
	return []gateway.ProposalOption{
		gateway.WithArguments(args...),
		gateway.WithTransient(c.TransientData()),
		gateway.WithEndorsingOrganizations(c.EndorsingOrgs...),
	}
}

// Evaluate runs a query against the gateway peer and returns the chaincode result
func Evaluate(ctx context.Context, c *Config, l *log.Logger, args []string) ([]byte, error) {
	function, fnArgs, err := transactionArgs(c, args)
	if err != nil {
		return nil, err
	}

	contract, conn, err := CreateContract(c, l)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return contract.Evaluate(ctx, function, proposalOptions(c, fnArgs)...)
}

// SubmitResult is what Submit learned about one transaction.
type SubmitResult struct {
	TransactionID string
	Result        []byte
	Status        *gateway.Status
}

// Submit endorses, submits and waits for the commit of one transaction. A transaction that
// commits with a code other than VALID is reported through the returned status and a
// *gateway.CommitError.
func Submit(ctx context.Context, c *Config, l *log.Logger, args []string) (*SubmitResult, error) {
	function, fnArgs, err := transactionArgs(c, args)
	if err != nil {
		return nil, err
	}

	contract, conn, err := CreateContract(c, l)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	tx, err := contract.SubmitAsync(ctx, function, proposalOptions(c, fnArgs)...)
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{TransactionID: tx.TransactionID()}
	if result.Result, err = tx.Result(ctx, false); err != nil {
		return result, err
	}

	if result.Status, err = tx.Status(ctx); err != nil {
		return result, err
	}
	if !result.Status.Successful {
		return result, &gateway.CommitError{Status: result.Status}
	}
	return result, nil
}

// EventsOptions selects where Events starts reading and when it stops.
type EventsOptions struct {
	StartBlock    *uint64
	AfterTxID     string
	Limit         int // stop after this many events, zero reads until ctx ends
	ChaincodeName string
}

// Events copies chaincode events from the gateway into sink
func Events(ctx context.Context, c *Config, l *log.Logger, sink EventSink, opts EventsOptions) (int, error) {
	if l == nil {
		l = logger
	}
	chaincode := opts.ChaincodeName
	if chaincode == "" {
		chaincode = c.Chaincode
	}

	conn, err := DialConnection(c.Gateway, c, l)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	gw, err := CreateGateway(conn, c, l)
	if err != nil {
		return 0, err
	}

	var eventsOpts []gateway.EventsOption
	if opts.StartBlock != nil {
		eventsOpts = append(eventsOpts, gateway.WithStartBlock(*opts.StartBlock))
	}
	if opts.AfterTxID != "" {
		eventsOpts = append(eventsOpts, gateway.WithAfterTransactionID(opts.AfterTxID))
	}

	stream, err := gw.Network(c.Channel).ChaincodeEvents(ctx, chaincode, eventsOpts...)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	count := 0
	for opts.Limit == 0 || count < opts.Limit {
		event, err := stream.Next()
		if err == io.EOF || status.Code(err) == codes.Canceled || ctx.Err() != nil {
			return count, nil
		}
		if err != nil {
			return count, errors.Wrap(err, "fail to read chaincode events")
		}

		if err := sink.Write(ctx, event); err != nil {
			return count, err
		}
		count++
		l.WithField("txid", event.TransactionID).Debugf("Event %s in block %d", event.EventName, event.BlockNumber)
	}
	return count, nil
}

// KeyInfo is a freshly generated key pair together with a certificate signing request.
type KeyInfo struct {
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
	Address    string `json:"address"`
	CSR        string `json:"csr"`
}

// Keygen creates a new identity and the CSR to enroll it under commonName
func Keygen(suite *cryptosuite.Suite, mspID, commonName string) (*KeyInfo, error) {
	id, err := identity.New(identity.Options{MspID: mspID, Suite: suite})
	if err != nil {
		return nil, err
	}

	subject := pkix.Name{CommonName: commonName}
	if mspID != "" {
		subject.Organization = []string{mspID}
	}
	csr, err := id.GenerateCSR(subject)
	if err != nil {
		return nil, err
	}

	return &KeyInfo{
		PrivateKey: id.PrivateKey(),
		PublicKey:  id.PublicKey(),
		Address:    id.Address(),
		CSR:        string(csr),
	}, nil
}
