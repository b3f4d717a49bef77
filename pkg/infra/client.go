package infra

import (
	"time"

	"github.com/osdi23p228/fabgw/pkg/comm"
	"github.com/osdi23p228/fabgw/pkg/gateway"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

func newGRPCClient(node Node, c *Config, l *log.Logger) (*comm.GRPCClient, error) {
	clientConfig := generateClientConfig(node, c, l)

	grpcClient, err := comm.NewGRPCClient(clientConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "error connecting to %s", node.Address)
	}

	return grpcClient, nil
}

func generateClientConfig(node Node, c *Config, l *log.Logger) comm.ClientConfig {
	clientConfig := comm.ClientConfig{
		Timeout:    30 * time.Second,
		MaxRetries: c.MaxRetries,
		KeepAliveConfig: &comm.KeepAliveConfig{
			Time:    time.Minute,
			Timeout: 20 * time.Second,
		},
		SecOpts: comm.SecureOptions{
			UseTLS:             false,
			RequireClientCert:  false,
			ServerNameOverride: node.ServerNameOverride,
			InsecureSkipVerify: node.TLSInsecureSkipVerify,
		},
	}
	if l != nil && l.IsLevelEnabled(log.DebugLevel) {
		clientConfig.Logger = log.NewEntry(l).WithField("peer", node.Address)
	}

	if node.TLSCACertByte != nil {
		clientConfig.SecOpts.UseTLS = true
		clientConfig.SecOpts.ServerRootCAs = [][]byte{node.TLSCACertByte}
		if len(node.TLSClientCertByte) > 0 && len(node.TLSClientKeyByte) > 0 {
			clientConfig.SecOpts.RequireClientCert = true
			clientConfig.SecOpts.Certificate = node.TLSClientCertByte
			clientConfig.SecOpts.Key = node.TLSClientKeyByte
		}
	}

	return clientConfig
}

// DialConnection opens a connection to node, retrying comm.MaxTry times.
func DialConnection(node Node, c *Config, l *log.Logger) (*grpc.ClientConn, error) {
	gRPCClient, err := newGRPCClient(node, c, l)
	if err != nil {
		return nil, err
	}
	return gRPCClient.Dial(node.Address)
}

func defaultCallOptions(c *Config) gateway.DefaultCallOptions {
	return gateway.DefaultCallOptions{
		Evaluate:        gateway.WithTimeout(c.EvaluateTimeout),
		Endorse:         gateway.WithTimeout(c.EndorseTimeout),
		Submit:          gateway.WithTimeout(c.SubmitTimeout),
		CommitStatus:    gateway.WithTimeout(c.CommitStatusTimeout),
		ChaincodeEvents: gateway.WithTimeout(c.ChaincodeEventsTimeout),
	}
}

// CreateGateway connects the configured identity to the gateway over conn.
func CreateGateway(conn *grpc.ClientConn, c *Config, l *log.Logger) (*gateway.Gateway, error) {
	client, err := gateway.NewClient(conn, gateway.WithDefaultCallOptions(defaultCallOptions(c)))
	if err != nil {
		return nil, err
	}

	suite, err := c.CryptoSuite()
	if err != nil {
		return nil, err
	}

	opts := []gateway.Option{gateway.WithCryptoSuite(suite)}
	if l != nil {
		opts = append(opts, gateway.WithLogger(l))
	}
	return gateway.New(client, c.Identity, opts...)
}

// CreateContract dials the gateway peer and returns the configured contract along with
// the connection backing it.
func CreateContract(c *Config, l *log.Logger) (*gateway.Contract, *grpc.ClientConn, error) {
	conn, err := DialConnection(c.Gateway, c, l)
	if err != nil {
		return nil, nil, err
	}

	gw, err := CreateGateway(conn, c, l)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	return gw.Network(c.Channel).Contract(c.Chaincode, c.Contract), conn, nil
}
