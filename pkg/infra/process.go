package infra

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/osdi23p228/fabgw/pkg/gateway"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

const (
	CH_MAX_CAPACITY = 1e6
)

var (
	txid2id map[string]int
	config  *Config
	logger  = log.New()
)

var (
	logCh         chan string
	reportCh      chan string
	unsignedCh    chan *Element
	signedCh      chan *Element
	endorsedCh    chan *Element
	submittedCh   chan *Element
	observerEndCh chan struct{}
	doneCh        chan struct{}
)

// Process drives TxNum transactions through the gateway at the configured rate and
// writes the log and report files
func Process(c *Config, l *log.Logger) error {
	txid2id = make(map[string]int)
	config = c
	if l != nil {
		logger = l
	}

	if err := config.validForRun(); err != nil {
		return err
	}

	logger.Infof("Session %s: %d transactions to %s", config.Session, config.TxNum, config.Gateway.Address)
	return End2End()
}

// WriteLogToFile receives and write the following types of log to file:
//
//	Proposed: timestamp txid-index txid connection-id client-id
//	Endorsed: timestamp txid-index txid connection-id client-id
//	Broadcast: timestamp txid-index txid submitter-id
//	Observed: timestamp txid-index txid [VALID/MVCC_READ_CONFLICT/...]
//
// and the report lines sent to reportCh.
func WriteLogToFile(printWG *sync.WaitGroup, logFile, reportFile *os.File) {
	defer printWG.Done()
	defer logFile.Close()
	defer reportFile.Close()

	for {
		select {
		case s := <-logCh:
			logFile.WriteString(s + "\n")
		case s := <-reportCh:
			reportFile.WriteString(s + "\n")
		case <-doneCh:
			for len(logCh) > 0 {
				logFile.WriteString(<-logCh + "\n")
			}
			for len(reportCh) > 0 {
				reportFile.WriteString(<-reportCh + "\n")
			}
			return
		}
	}
}

func NewLogChannel() chan string {
	logCh := make(chan string, CH_MAX_CAPACITY)
	return logCh
}

func NewReportChannel() chan string {
	reportCh := make(chan string, CH_MAX_CAPACITY)
	return reportCh
}

func NewUnsignedChannel() chan *Element {
	// unsignedCh stores all unsigned proposals
	// Sender: initiator
	// Receiver: signers
	unsignedCh := make(chan *Element, config.TxNum+config.SignerNum)
	return unsignedCh
}

func NewSignedChannel() chan *Element {
	// signedCh stores all signed but not yet endorsed proposals
	// Sender: signers
	// Receiver: proposers
	signedCh := make(chan *Element, config.TxNum)
	return signedCh
}

func NewEndorsedChannel() chan *Element {
	// endorsedCh stores all endorsed but not yet submitted transactions
	// Sender: proposers
	// Receiver: broadcasters
	endorsedCh := make(chan *Element, config.Burst)
	return endorsedCh
}

func NewSubmittedChannel() chan *Element {
	// submittedCh stores all submitted transactions waiting for their commit status
	// Sender: broadcasters
	// Receiver: observers
	submittedCh := make(chan *Element, config.Burst)
	return submittedCh
}

func NewObserverEndChannel() chan struct{} {
	observerEndCh := make(chan struct{})
	return observerEndCh
}

func initDoneChannel() chan struct{} {
	doneCh := make(chan struct{})
	return doneCh
}

func initChannels() {
	logCh = NewLogChannel()
	reportCh = NewReportChannel()
	unsignedCh = NewUnsignedChannel()
	signedCh = NewSignedChannel()
	endorsedCh = NewEndorsedChannel()
	submittedCh = NewSubmittedChannel()
	observerEndCh = NewObserverEndChannel()
	doneCh = initDoneChannel()
	observerEndOnce = sync.Once{}
}

// WaitObserverEnd blocks until every transaction is accounted for, then writes the report
// and stops the pipeline
func WaitObserverEnd(startTime time.Time, printWG *sync.WaitGroup) {
	<-observerEndCh
	duration := time.Since(startTime)
	logger.Infof("Finish processing transactions")

	writeReport(duration)

	// Closing 'doneCh', a channel which is never sent an element, is a common technique to notify ending in Golang
	// More information: https://go101.org/article/channel-use-cases.html#check-closed-status
	close(doneCh)

	// Wait for WriteLogToFile() to return
	printWG.Wait()
}

func writeReport(duration time.Duration) {
	valid := Metric.Valid.Load()
	abort := Metric.Abort.Load()
	failed := Metric.Failed.Load()
	seconds := duration.Seconds()

	reportCh <- fmt.Sprintf("Session: %s", config.Session)
	reportCh <- fmt.Sprintf("ALL Transactions: %d", config.TxNum)
	reportCh <- fmt.Sprintf("VALID Transactions: %d", valid)
	reportCh <- fmt.Sprintf("ABORTED Transactions: %d", abort)
	reportCh <- fmt.Sprintf("FAILED Transactions: %d", failed)
	reportCh <- fmt.Sprintf("Duration: %.3fs", seconds)
	reportCh <- fmt.Sprintf("TPS: %.3f", float64(valid+abort)/seconds)
	reportCh <- fmt.Sprintf("Effective TPS: %.3f", float64(valid)/seconds)
	reportCh <- fmt.Sprintf("Abort Rate: %.3f%%", float64(abort)/float64(config.TxNum)*100)
	reportCh <- fmt.Sprintf("Average Commit Latency: %.3fs", timeKeepers.getAverageTotalLatency())
	reportCh <- fmt.Sprintf("Average Endorse Latency: %.3fs", timeKeepers.getAverageEndorseLatency())
	reportCh <- fmt.Sprintf("Average Order&Commit Latency: %.3fs", timeKeepers.getAverageCommitLatency())

	percentiles := []int{50, 55, 60, 65, 70, 75, 80, 85, 90, 91, 92, 93, 94, 95, 96, 97, 98, 99, 100}
	for _, i := range percentiles {
		reportCh <- fmt.Sprintf("Commit Latency [%d%%]: %.3fs", i, timeKeepers.getTotalLatencyOfPercentile(i))
	}

	reportCh <- fmt.Sprintf("id    endorse(ms) submit(ms) order&commit(ms)")
	for i := 0; i < config.TxNum; i++ {
		endorse, submit, commit := timeKeepers.breakdown(i)
		reportCh <- fmt.Sprintf("%-5d %11.2f %10.2f %16.2f", i, endorse, submit, commit)
	}

	logger.Infof("%d valid, %d aborted, %d failed in %.3fs", valid, abort, failed, seconds)
}

// dialContracts opens ConnNum connections to the gateway peer and binds the configured
// contract to each of them
func dialContracts() ([]*gateway.Contract, []*grpc.ClientConn, error) {
	contracts := make([]*gateway.Contract, 0, config.ConnNum)
	conns := make([]*grpc.ClientConn, 0, config.ConnNum)

	for i := 0; i < config.ConnNum; i++ {
		contract, conn, err := CreateContract(config, logger)
		if err != nil {
			closeConnections(conns)
			return nil, nil, errors.WithMessagef(err, "fail to open connection %d", i)
		}
		contracts = append(contracts, contract)
		conns = append(conns, conn)
	}

	return contracts, conns, nil
}

func closeConnections(conns []*grpc.ClientConn) {
	for _, conn := range conns {
		conn.Close()
	}
}

// End2End executes end-to-end benchmark through the gateway
// An Element (i.e. a transaction) will go through the following channels
// unsignedCh -> signedCh -> endorsedCh -> submittedCh
func End2End() error {
	Metric = NewMetricInstance()
	initChannels()
	initTimeKeepers()

	logFile, err := os.Create(config.LogPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create log file %s", config.LogPath)
	}
	reportFile, err := os.Create(config.ReportPath)
	if err != nil {
		logFile.Close()
		return errors.Wrapf(err, "failed to create report file %s", config.ReportPath)
	}

	printWG := &sync.WaitGroup{}
	printWG.Add(1)
	go WriteLogToFile(printWG, logFile, reportFile)

	contracts, conns, err := dialContracts()
	if err != nil {
		close(doneCh)
		printWG.Wait()
		return err
	}
	defer closeConnections(conns)

	if config.MetricsAddr != "" {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go ServeMetrics(ctx, config.MetricsAddr, Metric)
	}

	initiator, err := NewInitiator(contracts, unsignedCh)
	if err != nil {
		close(doneCh)
		printWG.Wait()
		return err
	}
	signers := NewSigners(unsignedCh, signedCh)
	proposers := NewProposers(signedCh, endorsedCh)
	broadcasters := NewBroadcasters(endorsedCh, submittedCh)
	observers := NewObservers(submittedCh)

	broadcasters.StartAsync()
	observers.StartAsync()
	initiator.StartSync() // Block until all raw transactions are ready
	signers.StartSync()   // Block until all transactions are signed

	startTime := time.Now()
	Metric.progress()
	proposers.StartAsync()
	go watchIdle(config.IdleTimeout)

	WaitObserverEnd(startTime, printWG)
	return nil
}
