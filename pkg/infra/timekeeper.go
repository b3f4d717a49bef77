package infra

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hyperledger/fabric-protos-go/peer"
)

var (
	timeKeepers *TimeKeepers
)

type TimeKeepers struct {
	mu                  sync.Mutex
	transactions        []*TimeKeeper
	endorseLatency      []int64
	commitLatency       []int64
	totalLatency        []int64
	totalLatencySorted  []int64
	observedTransaction int
}

// TimeKeeper holds the unix nano timestamps of one transaction
type TimeKeeper struct {
	ProposedTime  int64
	EndorsedTime  int64
	BroadcastTime int64
	ObservedTime  int64
}

func initTimeKeepers() {
	timeKeepers = newTimeKeepers(config.TxNum)
}

func newTimeKeepers(txNum int) *TimeKeepers {
	tks := &TimeKeepers{
		transactions:   make([]*TimeKeeper, txNum),
		endorseLatency: make([]int64, txNum),
		commitLatency:  make([]int64, txNum),
		totalLatency:   make([]int64, txNum),
	}
	for i := range tks.transactions {
		tks.transactions[i] = &TimeKeeper{}
	}
	return tks
}

func (tks *TimeKeepers) keepProposedTime(txid string, connIndex int, clientIndex int) {
	proposedTime := time.Now().UnixNano()

	tks.mu.Lock()
	id := txid2id[txid]
	tks.transactions[id].ProposedTime = proposedTime
	tks.mu.Unlock()

	logCh <- fmt.Sprintf("%-10s %d %4d %s %d %d", "Proposed", proposedTime, id, txid, connIndex, clientIndex)
}

func (tks *TimeKeepers) keepEndorsedTime(txid string, connIndex int, clientIndex int) {
	endorsedTime := time.Now().UnixNano()

	tks.mu.Lock()
	id := txid2id[txid]
	tk := tks.transactions[id]
	tk.EndorsedTime = endorsedTime
	tks.endorseLatency[id] = endorsedTime - tk.ProposedTime
	tks.mu.Unlock()

	logCh <- fmt.Sprintf("%-10s %d %4d %s %d %d", "Endorsed", endorsedTime, id, txid, connIndex, clientIndex)
}

func (tks *TimeKeepers) keepBroadcastTime(txid string, broadcasterIndex int) {
	broadcastTime := time.Now().UnixNano()

	tks.mu.Lock()
	id := txid2id[txid]
	tks.transactions[id].BroadcastTime = broadcastTime
	tks.mu.Unlock()

	logCh <- fmt.Sprintf("%-10s %d %4d %s %d", "Broadcast", broadcastTime, id, txid, broadcasterIndex)
}

func (tks *TimeKeepers) keepObservedTime(txid string, validationCode peer.TxValidationCode) {
	observedTime := time.Now().UnixNano()

	tks.mu.Lock()
	id := txid2id[txid]
	tk := tks.transactions[id]
	tk.ObservedTime = observedTime
	tks.totalLatency[id] = observedTime - tk.ProposedTime
	tks.commitLatency[id] = observedTime - tk.BroadcastTime
	tks.observedTransaction++
	total := tks.totalLatency[id]
	tks.mu.Unlock()

	Metric.ObserveCommitLatency(time.Duration(total))
	logCh <- fmt.Sprintf("%-10s %d %4d %s %s", "Observed", observedTime, id, txid, validationCode)
}

// getAverageTotalLatency averages over the transactions that reached the ledger
func (tks *TimeKeepers) getAverageTotalLatency() float64 {
	return tks.getAverageLatencyFromSlice(tks.totalLatency)
}

func (tks *TimeKeepers) getAverageEndorseLatency() float64 {
	return tks.getAverageLatencyFromSlice(tks.endorseLatency)
}

func (tks *TimeKeepers) getAverageCommitLatency() float64 {
	return tks.getAverageLatencyFromSlice(tks.commitLatency)
}

func (tks *TimeKeepers) getAverageLatencyFromSlice(slice []int64) float64 {
	tks.mu.Lock()
	defer tks.mu.Unlock()

	var result int64
	var n int
	for _, l := range slice {
		if l > 0 {
			result += l
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(result) / float64(n) / 1e9
}

// getTotalLatencyOfPercentile reports the p-th percentile of the observed transactions'
// end to end latency in seconds
func (tks *TimeKeepers) getTotalLatencyOfPercentile(p int) float64 {
	tks.mu.Lock()
	defer tks.mu.Unlock()

	if tks.totalLatencySorted == nil {
		tks.sortTotalLatency()
	}
	if len(tks.totalLatencySorted) == 0 {
		return 0
	}

	index := int(float64(p) / 100.0 * float64(len(tks.totalLatencySorted)))
	if index < 0 {
		index = 0
	} else if index >= len(tks.totalLatencySorted) {
		index = len(tks.totalLatencySorted) - 1
	}

	return float64(tks.totalLatencySorted[index]) / 1e9
}

func (tks *TimeKeepers) sortTotalLatency() {
	tks.totalLatencySorted = make([]int64, 0, tks.observedTransaction)
	for i, tk := range tks.transactions {
		if tk.ObservedTime > 0 {
			tks.totalLatencySorted = append(tks.totalLatencySorted, tks.totalLatency[i])
		}
	}
	sort.Slice(tks.totalLatencySorted, func(i, j int) bool {
		return tks.totalLatencySorted[i] < tks.totalLatencySorted[j]
	})
}

// breakdown returns the endorse, submit and commit durations of transaction id in ms
func (tks *TimeKeepers) breakdown(id int) (float64, float64, float64) {
	tks.mu.Lock()
	tk := *tks.transactions[id]
	tks.mu.Unlock()

	return durationMs(tk.ProposedTime, tk.EndorsedTime),
		durationMs(tk.EndorsedTime, tk.BroadcastTime),
		durationMs(tk.BroadcastTime, tk.ObservedTime)
}

func durationMs(from, to int64) float64 {
	if from == 0 || to < from {
		return 0
	}
	return float64(to-from) / 1e6
}
