package infra

import (
	"context"
	"time"
)

type Proposers struct {
	proposers [][]*Proposer
	tokenCh   chan struct{}
	inCh      chan *Element
}

// NewProposers creates ClientPerConnNum endorsing clients for each connection. A
// proposal is always endorsed over the connection it was created on.
func NewProposers(inCh chan *Element, outCh chan *Element) *Proposers {
	proposers := make([][]*Proposer, config.ConnNum)
	tokenCh := make(chan struct{}, config.Burst)
	expectTPS := float64(config.Rate) / float64(config.ConnNum*config.ClientPerConnNum)

	for j := 0; j < config.ConnNum; j++ {
		proposers[j] = make([]*Proposer, config.ClientPerConnNum)
		for k := 0; k < config.ClientPerConnNum; k++ {
			proposers[j][k] = &Proposer{
				connIndex:   j,
				clientIndex: k,
				expectTPS:   expectTPS,
				address:     config.Gateway.Address,
				inCh:        make(chan *Element, config.TxNum),
				outCh:       outCh,
				tokenCh:     tokenCh,
			}
		}
	}

	return &Proposers{
		proposers: proposers,
		tokenCh:   tokenCh,
		inCh:      inCh,
	}
}

// StartAsync starts a goroutine as proposer per client per connection
func (ps *Proposers) StartAsync() {
	logger.Infof("Start sending transactions")

	// Use a token bucket to throttle the sending of proposals
	go generateTokens(ps.tokenCh, config.Rate)

	go ps.dispatchElements()

	for j := range ps.proposers {
		for k := range ps.proposers[j] {
			go ps.proposers[j][k].Start()
		}
	}
}

// generateTokens fills tokenCh at rate tokens per second, or as fast as they are taken
// when rate is zero
func generateTokens(tokenCh chan struct{}, rate int) {
	var interval time.Duration
	if rate > 0 {
		interval = time.Duration(1e9 / float64(rate))
	}
	for {
		select {
		case tokenCh <- struct{}{}:
		case <-doneCh:
			return
		}
		if interval > 0 {
			time.Sleep(interval)
		}
	}
}

func (ps *Proposers) dispatchElements() {
	for {
		select {
		case e := <-ps.inCh:
			connIndex, clientIndex := elementIndexes(txid2id[e.Txid])
			ps.proposers[connIndex][clientIndex].inCh <- e
		case <-doneCh:
			return
		}
	}
}

func elementIndexes(sequence int) (int, int) {
	connIndex := (sequence / config.ClientPerConnNum) % config.ConnNum
	clientIndex := sequence % config.ClientPerConnNum
	return connIndex, clientIndex
}

type Proposer struct {
	connIndex   int
	clientIndex int
	expectTPS   float64
	address     string
	inCh        chan *Element
	outCh       chan *Element
	tokenCh     chan struct{}
}

func (p *Proposer) getToken() bool {
	select {
	case <-p.tokenCh:
		return true
	case <-doneCh:
		return false
	}
}

// Start serves as the k-th client of the j-th connection to the gateway.
// It collects signed proposals and has them endorsed
func (p *Proposer) Start() {
	for {
		select {
		case element := <-p.inCh:
			if !p.getToken() {
				return
			}

			timeKeepers.keepProposedTime(element.Txid, p.connIndex, p.clientIndex)

			tx, err := element.Proposal.Endorse(context.Background())
			if err != nil {
				logger.Errorf("Error endorsing transaction %s: %v, address: %s", element.Txid, err, p.address)
				Metric.AddFailure("endorse")
				continue
			}
			element.Transaction = tx
			Metric.AddStage("endorse")

			timeKeepers.keepEndorsedTime(element.Txid, p.connIndex, p.clientIndex)
			p.outCh <- element

		case <-doneCh:
			return
		}
	}
}
