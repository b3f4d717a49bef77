package comm

import (
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultConnectionTimeout = 30 * time.Second
	// MaxTry is how often a connection is dialed before giving up.
	MaxTry = 3

	MaxRecvMsgSize = 100 * 1024 * 1024
	MaxSendMsgSize = 100 * 1024 * 1024
)

// ClientConfig defines the parameters for configuring a GRPCClient
type ClientConfig struct {
	// SecOpts defines the security parameters
	SecOpts SecureOptions
	// KeepAliveConfig defines the keepalive parameters, nil disables keepalive pings
	KeepAliveConfig *KeepAliveConfig
	// Timeout specifies how long the client will block when attempting to
	// establish a connection
	Timeout time.Duration
	// MaxRetries is how often a call failing with Unavailable or ResourceExhausted is
	// retried. Zero disables retries.
	MaxRetries uint
	// Logger receives one entry per call when set
	Logger *logrus.Entry
}

type KeepAliveConfig struct {
	Time                time.Duration
	Timeout             time.Duration
	PermitWithoutStream bool
}

// SecureOptions defines the TLS parameters of a client
type SecureOptions struct {
	// PEM-encoded X509 certificate presented for mutual TLS
	Certificate []byte
	// PEM-encoded private key of Certificate
	Key []byte
	// PEM-encoded CA certificates used to verify the server
	ServerRootCAs [][]byte
	UseTLS        bool
	// Whether the client must present Certificate
	RequireClientCert  bool
	ServerNameOverride string
	InsecureSkipVerify bool
}
