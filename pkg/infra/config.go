package infra

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/osdi23p228/fabgw/pkg/cryptosuite"
	"github.com/osdi23p228/fabgw/pkg/identity"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

var (
	itemNotProvidedError = errors.New("No such item")
)

type Node struct {
	Address               string `yaml:"address"`
	TLSCACert             string `yaml:"tlsCACert"`     // CA certificate of the gateway peer
	TLSClientCert         string `yaml:"tlsClientCert"` // client certificate for mutual TLS
	TLSClientKey          string `yaml:"tlsClientKey"`  // client key for mutual TLS
	ServerNameOverride    string `yaml:"serverNameOverride"`
	TLSInsecureSkipVerify bool   `yaml:"tlsInsecureSkipVerify"`
	TLSCACertByte         []byte `yaml:"-"`
	TLSClientCertByte     []byte `yaml:"-"`
	TLSClientKeyByte      []byte `yaml:"-"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type Config struct {
	// Network
	Gateway Node   `yaml:"gateway"` // the peer running the gateway service
	Channel string `yaml:"channel"` // name of the channel to be operated on

	// Chaincode
	Chaincode     string            `yaml:"chaincode"`     // chaincode name
	Contract      string            `yaml:"contract"`      // contract name inside the chaincode, optional
	Args          []string          `yaml:"args"`          // function name followed by its arguments
	Transient     map[string]string `yaml:"transient"`     // private data passed with every proposal
	EndorsingOrgs []string          `yaml:"endorsingOrgs"` // MSP ids that must endorse, optional

	// Client identity
	MSPID           string             `yaml:"mspid"`           // the MSP the client belongs
	PrivateKey      string             `yaml:"privateKey"`      // client's private key
	SignCert        string             `yaml:"signCert"`        // client's certificate
	KeySize         int                `yaml:"keySize"`         // 256 or 384
	DigestAlgorithm string             `yaml:"digestAlgorithm"` // SHA256, SHA384 or SHA512
	Identity        *identity.Identity `yaml:"-"`               // client's identity

	Rate  int `yaml:"rate"`  // average speed of transaction generation
	Burst int `yaml:"burst"` // maximum speed of transaction generation

	TxNum           int     `yaml:"txNum"`           // number of transactions
	TxType          string  `yaml:"txType"`          // transaction type ['put', 'conflict'], empty sends args
	Session         string  `yaml:"session"`         // session name
	HotAccountRatio float64 `yaml:"hotAccountRatio"` // percentage of hot accounts
	ConflictRatio   float64 `yaml:"conflictRatio"`   // Percentage of conflict

	ConnNum          int `yaml:"connNum"`          // number of connection
	ClientPerConnNum int `yaml:"clientPerConnNum"` // number of endorsing clients per connection
	SignerNum        int `yaml:"signerNum"`        // number of signers
	SubmitterNum     int `yaml:"submitterNum"`     // number of submitters
	ObserverNum      int `yaml:"observerNum"`      // number of concurrent commit status waiters

	EvaluateTimeout        time.Duration `yaml:"evaluateTimeout"`
	EndorseTimeout         time.Duration `yaml:"endorseTimeout"`
	SubmitTimeout          time.Duration `yaml:"submitTimeout"`
	CommitStatusTimeout    time.Duration `yaml:"commitStatusTimeout"`
	ChaincodeEventsTimeout time.Duration `yaml:"chaincodeEventsTimeout"`
	IdleTimeout            time.Duration `yaml:"idleTimeout"` // give up when nothing commits for this long
	MaxRetries             uint          `yaml:"maxRetries"`  // retries of calls failing with Unavailable

	LogPath     string      `yaml:"logPath"`     // path of the log file
	ReportPath  string      `yaml:"reportPath"`  // path of the report file
	MetricsAddr string      `yaml:"metricsAddr"` // address of the metrics endpoint, empty disables it
	Kafka       KafkaConfig `yaml:"kafka"`       // sink for chaincode events, empty prints them

	Seed int `yaml:"seed"` // random seed
}

func (c *Config) loadRawConfigFromFile(filename string) error {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrapf(err, "fail to load %s", filename)
	}

	if err = yaml.UnmarshalStrict(raw, c); err != nil {
		return errors.Wrapf(err, "fail to unmarshal %s", filename)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.ConnNum <= 0 {
		c.ConnNum = 1
	}
	if c.ClientPerConnNum <= 0 {
		c.ClientPerConnNum = 1
	}
	if c.SignerNum <= 0 {
		c.SignerNum = 1
	}
	if c.SubmitterNum <= 0 {
		c.SubmitterNum = 1
	}
	if c.ObserverNum <= 0 {
		c.ObserverNum = c.Burst
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.LogPath == "" {
		c.LogPath = "log.transactions"
	}
	if c.ReportPath == "" {
		c.ReportPath = "report.txt"
	}
	if c.Session == "" {
		c.Session = uuid.New().String()
	}
}

// validForRun checks the settings the load driver depends on.
func (c *Config) validForRun() error {
	c.setDefaults()

	if c.TxNum <= 0 {
		return errors.Errorf("TxNum %d is not a positive number", c.TxNum)
	}

	if c.Rate < 0 {
		return errors.Errorf("Rate %d is not a zero (unlimited) or positive number", c.Rate)
	}

	if c.Burst < 1 {
		return errors.Errorf("Burst %d is not greater than 1", c.Burst)
	}

	if c.Rate > c.Burst {
		logger.Infof("Rate %d is bigger than burst %d, so let rate equal to burst", c.Rate, c.Burst)
		c.Rate = c.Burst
	}

	if c.ConflictRatio < 0 || c.ConflictRatio > 1 {
		return errors.Errorf("Conflict ratio %f is not within the range of [0, 1]", c.ConflictRatio)
	}

	if c.HotAccountRatio < 0 || c.HotAccountRatio > 1 {
		return errors.Errorf("Hot account ratio %f is not within the range of [0, 1]", c.HotAccountRatio)
	}

	switch c.TxType {
	case "put", "conflict":
	case "":
		if len(c.Args) == 0 {
			return errors.New("args must name the transaction function when no txType is set")
		}
	default:
		return errors.Errorf("unknown txType %s", c.TxType)
	}

	if c.ObserverNum <= 0 {
		c.ObserverNum = c.Burst
	}

	logger.Infof("Conflict ratio %f", c.ConflictRatio)
	logger.Infof("Hot account ratio %f", c.HotAccountRatio)
	return nil
}

func (c *Config) valid() error {
	if c.Gateway.Address == "" {
		return errors.New("gateway address is required")
	}
	if c.Channel == "" {
		return errors.New("channel is required")
	}
	if c.Chaincode == "" {
		return errors.New("chaincode is required")
	}
	return nil
}

func LoadConfigFromFile(filename string) (*Config, error) {
	c := &Config{}

	if err := c.loadRawConfigFromFile(filename); err != nil {
		return nil, err
	}
	if err := c.valid(); err != nil {
		return nil, err
	}
	if err := c.Gateway.loadConfig(); err != nil {
		return nil, err
	}
	if err := c.loadClientIdentity(); err != nil {
		return nil, err
	}
	c.setDefaults()

	return c, nil
}

// CryptoSuite returns the suite selected by KeySize and DigestAlgorithm.
func (c *Config) CryptoSuite() (*cryptosuite.Suite, error) {
	if c.KeySize == 0 && c.DigestAlgorithm == "" {
		return cryptosuite.Default(), nil
	}
	return cryptosuite.New(cryptosuite.Options{KeySize: c.KeySize, DigestAlgorithm: c.DigestAlgorithm})
}

// TransientData converts the configured transient map to the wire form.
func (c *Config) TransientData() map[string][]byte {
	if len(c.Transient) == 0 {
		return nil
	}
	transient := make(map[string][]byte, len(c.Transient))
	for k, v := range c.Transient {
		transient[k] = []byte(v)
	}
	return transient
}

// loadClientIdentity loads the client specified in the configuration file
func (c *Config) loadClientIdentity() error {
	suite, err := c.CryptoSuite()
	if err != nil {
		return err
	}

	keyPEM, err := os.ReadFile(c.PrivateKey)
	if err != nil {
		return errors.Wrapf(err, "fail to load private key %s", c.PrivateKey)
	}

	certPEM, err := os.ReadFile(c.SignCert)
	if err != nil {
		return errors.Wrapf(err, "fail to load certificate %s", c.SignCert)
	}

	id, err := identity.FromPEM(c.MSPID, keyPEM, certPEM, suite)
	if err != nil {
		return errors.Wrap(err, "fail to load client identity")
	}
	c.Identity = id
	return nil
}

func readOptionalFile(file string) ([]byte, error) {
	if file == "" {
		return nil, itemNotProvidedError
	}

	in, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to load %s", file)
	}

	return in, nil
}

func (n *Node) loadConfig() error {
	certByte, err := readOptionalFile(n.TLSCACert)
	if err != nil && err != itemNotProvidedError {
		return errors.WithMessagef(err, "Fail to load TLS CA Cert %s", n.TLSCACert)
	}

	clientCertByte, err := readOptionalFile(n.TLSClientCert)
	if err != nil && err != itemNotProvidedError {
		return errors.WithMessagef(err, "Fail to load TLS client cert %s", n.TLSClientCert)
	}

	clientKeyByte, err := readOptionalFile(n.TLSClientKey)
	if err != nil && err != itemNotProvidedError {
		return errors.WithMessagef(err, "Fail to load TLS client key %s", n.TLSClientKey)
	}

	n.TLSCACertByte = certByte
	n.TLSClientCertByte = clientCertByte
	n.TLSClientKeyByte = clientKeyByte
	return nil
}
