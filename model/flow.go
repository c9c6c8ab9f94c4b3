package model

// FlowSession carries a completed form to its payment outcome and contract
// within a single browser tab.
type FlowSession struct {
	FormData        *FormData `json:"formData"`
	PaymentComplete bool      `json:"paymentComplete"`
	ContractID      string    `json:"contractId,omitempty"`
}

// SigningReady reports whether signing setup may proceed.
func (s FlowSession) SigningReady(requireContract bool) bool {
	if s.FormData == nil || !s.PaymentComplete {
		return false
	}
	if requireContract && s.ContractID == "" {
		return false
	}
	return true
}
