package infra

import (
	"context"
)

type Broadcasters struct {
	broadcasters []*Broadcaster
	tokenCh      chan struct{}
}

// NewBroadcasters creates the submitters that hand endorsed transactions to the ordering
// service through the gateway.
func NewBroadcasters(inCh <-chan *Element, outCh chan<- *Element) *Broadcasters {
	bs := &Broadcasters{
		broadcasters: make([]*Broadcaster, config.SubmitterNum),
		tokenCh:      make(chan struct{}, config.Burst),
	}

	// The expect throughput for each broadcaster
	expectTPS := float64(config.Rate) / float64(config.SubmitterNum)

	for i := 0; i < config.SubmitterNum; i++ {
		bs.broadcasters[i] = &Broadcaster{
			broadcasterIndex: i,
			expectTPS:        expectTPS,
			inCh:             inCh,
			outCh:            outCh,
			tokenCh:          bs.tokenCh,
		}
	}

	return bs
}

// StartAsync starts a goroutine for every broadcaster
func (bs *Broadcasters) StartAsync() {
	// Use a token bucket to throttle the sending of envelopes
	go generateTokens(bs.tokenCh, config.Rate)

	for _, b := range bs.broadcasters {
		go b.send()
	}
}

type Broadcaster struct {
	broadcasterIndex int
	expectTPS        float64
	inCh             <-chan *Element
	outCh            chan<- *Element
	tokenCh          chan struct{}
}

func (b *Broadcaster) getToken() bool {
	select {
	case <-b.tokenCh:
		return true
	case <-doneCh:
		return false
	}
}

// send signs and submits endorsed transactions
func (b *Broadcaster) send() {
	logger.Infof("Start broadcasting")

	for {
		select {
		case element := <-b.inCh:
			if !b.getToken() {
				return
			}

			timeKeepers.keepBroadcastTime(element.Txid, b.broadcasterIndex)

			if _, err := element.Transaction.Submit(context.Background()); err != nil {
				logger.Errorf("Error submitting transaction %s: %v", element.Txid, err)
				Metric.AddFailure("submit")
				continue
			}
			Metric.AddStage("submit")
			b.outCh <- element

		case <-doneCh:
			return
		}
	}
}
