package model

import "main/internal/model/enum"

// OrderIntent is an approved signal ready for submission.
// SignalID and TransitionID keep the audit chain intact: every order traces
// back to exactly one signal and one VI transition.
type OrderIntent struct {
	ClientRef    string
	SignalID     string
	TransitionID uint64
	Instrument   Instrument
	Side         enum.OrderSide
	Type         enum.OrderType
	Price        Price
	Quantity     Quantity
	Forced       bool
	CreatedAt    int64
}

// OrderAck is an asynchronous broker acknowledgment.
type OrderAck struct {
	OrderID     string
	Instrument  Instrument
	Status      enum.OrderStatus
	Reason      enum.RejectReason
	FilledQty   Quantity
	FillPrice   Price
	EventTsNano int64
}

// Fill is the ledger-facing view of an execution.
type Fill struct {
	OrderID    string
	Instrument Instrument
	Side       enum.OrderSide
	Quantity   Quantity
	Price      Price
	TsNano     int64
}
