package model

import "main/internal/model/enum"

// Instrument is the exchange-assigned stock code, e.g. "005930".
type Instrument string

// Quote is the latest trade snapshot for an instrument.
type Quote struct {
	Instrument  Instrument
	Bid         Price
	Ask         Price
	Last        Price
	Open        Price
	High        Price
	TradeVolume Quantity
	TotalVolume Quantity
	EventTsNano int64
	RecvTsNano  int64
}

// ViReport is a raw VI status report from the feed.
type ViReport struct {
	Instrument   Instrument
	Status       enum.ViStatus
	TriggerPrice Price
	EventTsNano  int64
	RecvTsNano   int64
}

// ViTransition is an observed legal change of VI status.
// Immutable once created; consumed exactly once by the signal generator.
type ViTransition struct {
	ID           uint64
	Instrument   Instrument
	From         enum.ViStatus
	To           enum.ViStatus
	TriggerPrice Price
	EventTsNano  int64
}

// IsActivation reports entry into a VI interruption.
func (t ViTransition) IsActivation() bool {
	return !t.From.IsActivated() && t.To.IsActivated()
}

// IsDeactivation reports exit from a VI interruption.
func (t ViTransition) IsDeactivation() bool {
	return t.From.IsActivated() && !t.To.IsActivated()
}
