package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	c, err := LoadConfigFromFile("testdata/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "localhost:7051", c.Gateway.Address)
	assert.Equal(t, "peer0.org1.example.com", c.Gateway.ServerNameOverride)
	assert.Nil(t, c.Gateway.TLSCACertByte)
	assert.Equal(t, "mychannel", c.Channel)
	assert.Equal(t, "assets", c.Contract)
	assert.Equal(t, []string{"Org1MSP", "Org2MSP"}, c.EndorsingOrgs)
	assert.Equal(t, map[string][]byte{"asset_properties": []byte(`{"color":"blue"}`)}, c.TransientData())

	assert.Equal(t, 5*time.Second, c.EvaluateTimeout)
	assert.Equal(t, 15*time.Second, c.EndorseTimeout)
	assert.Equal(t, time.Minute, c.CommitStatusTimeout)
	assert.Equal(t, time.Duration(0), c.ChaincodeEventsTimeout)
	assert.EqualValues(t, 2, c.MaxRetries)

	assert.Equal(t, []string{"localhost:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "chaincode-events", c.Kafka.Topic)

	require.NotNil(t, c.Identity)
	assert.Equal(t, "Org1MSP", c.Identity.MspID())

	// defaults
	assert.Equal(t, 100, c.ObserverNum)
	assert.Equal(t, 30*time.Second, c.IdleTimeout)
	assert.Equal(t, "log.transactions", c.LogPath)
	assert.Equal(t, "report.txt", c.ReportPath)
	assert.NotEmpty(t, c.Session)
}

func TestLoadConfigFromFileErrors(t *testing.T) {
	_, err := LoadConfigFromFile("testdata/missing.yaml")
	assert.Error(t, err)

	_, err = LoadConfigFromFile("testdata/unknown_key.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endorserNum")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("channel: mychannel\nchaincode: basic\n"), 0o600))
	_, err = LoadConfigFromFile(path)
	assert.EqualError(t, err, "gateway address is required")

	require.NoError(t, os.WriteFile(path, []byte(`
gateway:
  address: localhost:7051
  tlsCACert: testdata/missing_ca.pem
channel: mychannel
chaincode: basic
`), 0o600))
	_, err = LoadConfigFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Fail to load TLS CA Cert")
}

func TestCryptoSuiteFromConfig(t *testing.T) {
	c := &Config{}
	suite, err := c.CryptoSuite()
	require.NoError(t, err)
	assert.Equal(t, 256, suite.KeySize())

	c = &Config{KeySize: 384, DigestAlgorithm: "SHA384"}
	suite, err = c.CryptoSuite()
	require.NoError(t, err)
	assert.Equal(t, 384, suite.KeySize())
	assert.Equal(t, "SHA384", suite.DigestAlgorithm())

	c = &Config{KeySize: 512}
	_, err = c.CryptoSuite()
	assert.Error(t, err)
}

func TestValidForRun(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "no transactions", config: Config{Burst: 10}, wantErr: "TxNum 0 is not a positive number"},
		{name: "negative rate", config: Config{TxNum: 1, Rate: -1, Burst: 10}, wantErr: "Rate -1 is not a zero (unlimited) or positive number"},
		{name: "no burst", config: Config{TxNum: 1}, wantErr: "Burst 0 is not greater than 1"},
		{name: "conflict ratio", config: Config{TxNum: 1, Burst: 1, ConflictRatio: 2, TxType: "put"}, wantErr: "Conflict ratio 2.000000 is not within the range of [0, 1]"},
		{name: "unknown type", config: Config{TxNum: 1, Burst: 1, TxType: "scan"}, wantErr: "unknown txType scan"},
		{name: "no args", config: Config{TxNum: 1, Burst: 1}, wantErr: "args must name the transaction function when no txType is set"},
		{name: "put", config: Config{TxNum: 1, Burst: 1, TxType: "put"}},
		{name: "args", config: Config{TxNum: 1, Burst: 1, Args: []string{"ReadAsset"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.config
			err := c.validForRun()
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidForRunCapsRate(t *testing.T) {
	c := &Config{TxNum: 1, Rate: 100, Burst: 10, TxType: "put"}
	require.NoError(t, c.validForRun())
	assert.Equal(t, 10, c.Rate)
	assert.Equal(t, 10, c.ObserverNum)
}
