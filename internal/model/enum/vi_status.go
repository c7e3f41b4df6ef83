package enum

// ViStatus is the volatility interruption state of an instrument.
type ViStatus uint16

const (
	_vi_status_beg ViStatus = iota
	ViStatusNormal
	ViStatusStaticActivated
	ViStatusDynamicActivated
	ViStatusBothActivated
	ViStatusDeactivated
	_vi_status_end
)

func (s ViStatus) IsAvailable() bool {
	return s > _vi_status_beg && s < _vi_status_end
}

// IsActivated reports whether the instrument is inside a VI interruption.
func (s ViStatus) IsActivated() bool {
	switch s {
	case ViStatusStaticActivated, ViStatusDynamicActivated, ViStatusBothActivated:
		return true
	default:
		return false
	}
}

func (s ViStatus) String() string {
	switch s {
	case ViStatusNormal:
		return "normal"
	case ViStatusStaticActivated:
		return "static_activated"
	case ViStatusDynamicActivated:
		return "dynamic_activated"
	case ViStatusBothActivated:
		return "both_activated"
	case ViStatusDeactivated:
		return "deactivated"
	default:
		return "unknown"
	}
}

// ParseViCode maps the exchange vi_gubun code to a status.
// "0" release, "1" static, "2" dynamic, "3" static & dynamic.
func ParseViCode(code string) (ViStatus, bool) {
	switch code {
	case "0":
		return ViStatusDeactivated, true
	case "1":
		return ViStatusStaticActivated, true
	case "2":
		return ViStatusDynamicActivated, true
	case "3":
		return ViStatusBothActivated, true
	default:
		return 0, false
	}
}
