package infra

import (
	"context"
	"sync"
	"time"

	"github.com/hyperledger/fabric-protos-go/peer"
)

type Observers struct {
	observers []*Observer
}

// NewObservers creates ObserverNum waiters. Each blocks on the commit status of one
// submitted transaction at a time.
func NewObservers(inCh <-chan *Element) *Observers {
	observers := make([]*Observer, config.ObserverNum)
	for i := range observers {
		observers[i] = &Observer{inCh: inCh}
	}
	return &Observers{observers: observers}
}

// StartAsync starts observing
func (obs *Observers) StartAsync() {
	logger.Infof("Start observers")

	for _, o := range obs.observers {
		go o.start()
	}
}

type Observer struct {
	inCh <-chan *Element
}

func (o *Observer) start() {
	for {
		select {
		case element := <-o.inCh:
			status, err := element.Transaction.Status(context.Background())
			if err != nil {
				logger.Errorf("Error waiting for commit of transaction %s: %v", element.Txid, err)
				Metric.AddFailure("commit_status")
				continue
			}
			element.Status = status

			timeKeepers.keepObservedTime(element.Txid, status.Code)

			if status.Code == peer.TxValidationCode_VALID {
				Metric.AddValid()
			} else {
				Metric.AddAbort(status.Code)
			}

		case <-doneCh:
			return
		}
	}
}

var observerEndOnce sync.Once

// checkObserverEnd closes observerEndCh once every transaction has either committed or
// failed on its way.
func checkObserverEnd() {
	if config == nil || observerEndCh == nil {
		return
	}
	if Metric.Finished() >= int64(config.TxNum) {
		observerEndOnce.Do(func() { close(observerEndCh) })
	}
}

// watchIdle ends the run when no transaction made progress for timeout.
func watchIdle(timeout time.Duration) {
	ticker := time.NewTicker(timeout / 10)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if time.Since(Metric.LastProgress()) > timeout {
				logger.Warnf("No transaction finished in %s, giving up", timeout)
				observerEndOnce.Do(func() { close(observerEndCh) })
				return
			}
		case <-observerEndCh:
			return
		case <-doneCh:
			return
		}
	}
}
