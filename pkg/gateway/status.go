package gateway

import (
	"fmt"

	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/pkg/errors"
)

// Status of a transaction that is committed to the ledger.
type Status struct {
	TransactionID string
	BlockNumber   uint64
	Code          peer.TxValidationCode
	Successful    bool
}

func NewStatus(transactionID string, blockNumber uint64, code peer.TxValidationCode) *Status {
	return &Status{
		TransactionID: transactionID,
		BlockNumber:   blockNumber,
		Code:          code,
		Successful:    code == peer.TxValidationCode_VALID,
	}
}

func (s *Status) String() string {
	return fmt.Sprintf("txid=%s block=%d code=%s", s.TransactionID, s.BlockNumber, s.Code)
}

// ValidationCode looks a validation code up by its symbolic name, e.g. MVCC_READ_CONFLICT.
func ValidationCode(name string) (peer.TxValidationCode, error) {
	code, ok := peer.TxValidationCode_value[name]
	if !ok {
		return 0, errors.Errorf("unknown validation code %s", name)
	}
	return peer.TxValidationCode(code), nil
}
