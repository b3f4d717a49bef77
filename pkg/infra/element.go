package infra

import (
	"github.com/osdi23p228/fabgw/pkg/gateway"
)

// Element contains the data for the whole lifecycle of a transaction
type Element struct {
	Proposal    *gateway.Proposal
	Transaction *gateway.Transaction
	Status      *gateway.Status
	Txid        string
}
