package exception

import "github.com/yanun0323/errors"

// Ledger errors
var (
	ErrLedgerUnknownOrder    = errors.New("ledger: fill references no open order")
	ErrLedgerInstrumentHalt  = errors.New("ledger: instrument halted")
	ErrLedgerInvalidQuantity = errors.New("ledger: invalid fill quantity")
)
