package model

// Price is an integer amount of won.
type Price int64

// Quantity is an integer number of shares.
type Quantity int64

func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// Notional is an integer amount of won.
type Notional int64

const maxInt64 = int64(^uint64(0) >> 1)

// NotionalOf multiplies price by quantity, reporting overflow.
func NotionalOf(price Price, qty Quantity) (Notional, bool) {
	p, q := int64(price), int64(qty)
	if p == 0 || q == 0 {
		return 0, false
	}
	if p < 0 {
		p = -p
	}
	if q < 0 {
		q = -q
	}
	if p > maxInt64/q {
		return 0, true
	}
	return Notional(int64(price) * int64(qty)), false
}
