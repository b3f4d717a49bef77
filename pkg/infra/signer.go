package infra

import "sync"

type Signers struct {
	signers []*Signer
}

func NewSigners(inCh chan *Element, outCh chan *Element) *Signers {
	signers := make([]*Signer, config.SignerNum)
	for i := range signers {
		signers[i] = NewSigner(inCh, outCh)
	}
	return &Signers{signers: signers}
}

// StartSync runs all signers and blocks until the initiator's transactions are signed
func (ss *Signers) StartSync() {
	wg := &sync.WaitGroup{}
	for _, s := range ss.signers {
		wg.Add(1)
		go func(s *Signer) {
			defer wg.Done()
			s.StartSync()
		}(s)
	}
	wg.Wait()
}

type Signer struct {
	inCh  chan *Element
	outCh chan *Element
}

func NewSigner(inCh chan *Element, outCh chan *Element) *Signer {
	return &Signer{
		inCh:  inCh,
		outCh: outCh,
	}
}

// StartSync collects unsigned transactions from the 'raw' channel,
// signs them, then sends them to the 'signed' channel of the endorsers
func (s *Signer) StartSync() {
	for {
		select {
		case e := <-s.inCh:
			if e == nil { // End
				return
			}

			// sign the raw transaction
			if err := s.SignElement(e); err != nil {
				logger.Errorf("Fail to sign transaction %s: %v", e.Txid, err)
				Metric.AddFailure("sign")
				continue
			}

			s.outCh <- e

		case <-doneCh:
			return
		}
	}
}

// SignElement signs a proposal with the client's identity
func (s *Signer) SignElement(e *Element) error {
	return e.Proposal.Sign()
}
