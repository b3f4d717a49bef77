// Package comm dials gRPC connections to Fabric peers.
package comm

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_logrus "github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus"
	grpc_retry "github.com/grpc-ecosystem/go-grpc-middleware/retry"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

type GRPCClient struct {
	tlsConfig *tls.Config
	dialOpts  []grpc.DialOption
	timeout   time.Duration
}

// TLSOption adjusts the TLS configuration of a single connection.
type TLSOption func(tlsConfig *tls.Config)

func ServerNameOverride(name string) TLSOption {
	return func(tlsConfig *tls.Config) {
		tlsConfig.ServerName = name
	}
}

func NewGRPCClient(config ClientConfig) (*GRPCClient, error) {
	client := &GRPCClient{timeout: config.Timeout}
	if client.timeout <= 0 {
		client.timeout = DefaultConnectionTimeout
	}

	if err := client.parseSecureOptions(config.SecOpts); err != nil {
		return nil, err
	}

	if config.KeepAliveConfig != nil {
		client.dialOpts = append(client.dialOpts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                config.KeepAliveConfig.Time,
			Timeout:             config.KeepAliveConfig.Timeout,
			PermitWithoutStream: config.KeepAliveConfig.PermitWithoutStream,
		}))
	}

	var unary []grpc.UnaryClientInterceptor
	var stream []grpc.StreamClientInterceptor
	if config.Logger != nil {
		unary = append(unary, grpc_logrus.UnaryClientInterceptor(config.Logger))
		stream = append(stream, grpc_logrus.StreamClientInterceptor(config.Logger))
	}
	if config.MaxRetries > 0 {
		unary = append(unary, grpc_retry.UnaryClientInterceptor(
			grpc_retry.WithMax(config.MaxRetries),
			grpc_retry.WithCodes(codes.Unavailable, codes.ResourceExhausted),
			grpc_retry.WithBackoff(grpc_retry.BackoffLinear(100*time.Millisecond)),
		))
	}
	if len(unary) > 0 {
		client.dialOpts = append(client.dialOpts, grpc.WithUnaryInterceptor(grpc_middleware.ChainUnaryClient(unary...)))
	}
	if len(stream) > 0 {
		client.dialOpts = append(client.dialOpts, grpc.WithStreamInterceptor(grpc_middleware.ChainStreamClient(stream...)))
	}

	client.dialOpts = append(client.dialOpts, grpc.WithDefaultCallOptions(
		grpc.MaxCallRecvMsgSize(MaxRecvMsgSize),
		grpc.MaxCallSendMsgSize(MaxSendMsgSize),
	))

	return client, nil
}

func (client *GRPCClient) parseSecureOptions(opts SecureOptions) error {
	if !opts.UseTLS {
		return nil
	}

	client.tlsConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         opts.ServerNameOverride,
		InsecureSkipVerify: opts.InsecureSkipVerify,
	}

	if len(opts.ServerRootCAs) > 0 {
		client.tlsConfig.RootCAs = x509.NewCertPool()
		for _, certBytes := range opts.ServerRootCAs {
			if !client.tlsConfig.RootCAs.AppendCertsFromPEM(certBytes) {
				return errors.New("error adding root certificate")
			}
		}
	}

	if opts.RequireClientCert {
		if opts.Key == nil || opts.Certificate == nil {
			return errors.New("both Key and Certificate are required when using mutual TLS")
		}
		cert, err := tls.X509KeyPair(opts.Certificate, opts.Key)
		if err != nil {
			return errors.WithMessage(err, "failed to load client certificate")
		}
		client.tlsConfig.Certificates = append(client.tlsConfig.Certificates, cert)
	}
	return nil
}

// TLSEnabled reports whether connections are made over TLS.
func (client *GRPCClient) TLSEnabled() bool {
	return client.tlsConfig != nil
}

// NewConnection dials address and blocks until the connection is ready or the client
// timeout passes.
func (client *GRPCClient) NewConnection(address string, tlsOptions ...TLSOption) (*grpc.ClientConn, error) {
	dialOpts := append([]grpc.DialOption{grpc.WithBlock()}, client.dialOpts...)

	if client.tlsConfig != nil {
		tlsConfig := client.tlsConfig.Clone()
		for _, opt := range tlsOptions {
			opt(tlsConfig)
		}
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), client.timeout)
	defer cancel()
	conn, err := grpc.DialContext(ctx, address, dialOpts...)
	if err != nil {
		return nil, errors.WithMessage(errors.WithStack(err), "failed to create new connection")
	}
	return conn, nil
}

// Dial tries NewConnection up to MaxTry times.
func (client *GRPCClient) Dial(address string, tlsOptions ...TLSOption) (*grpc.ClientConn, error) {
	var err error
	for i := 1; i <= MaxTry; i++ {
		var conn *grpc.ClientConn
		conn, err = client.NewConnection(address, tlsOptions...)
		if err == nil {
			return conn, nil
		}
	}
	return nil, errors.Wrapf(err, "failed to dial %s", address)
}
