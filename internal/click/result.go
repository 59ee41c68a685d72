package click

// Result is the decoded gateway reply. Fields absent from a given
// operation's reply keep their zero value.
type Result struct {
	ErrorCode     int    `json:"error_code"`
	ErrorNote     string `json:"error_note"`
	CardToken     string `json:"card_token,omitempty"`
	PhoneNumber   string `json:"phone_number,omitempty"`
	Temporary     int    `json:"temporary,omitempty"`
	PaymentID     int64  `json:"payment_id,omitempty"`
	PaymentStatus int    `json:"payment_status,omitempty"`
}

// OK reports a gateway-side success (error_code 0).
func (r Result) OK() bool { return r.ErrorCode == 0 }

// wireResult mirrors Result but detects a missing error_code.
type wireResult struct {
	ErrorCode     *int   `json:"error_code"`
	ErrorNote     string `json:"error_note"`
	CardToken     string `json:"card_token"`
	PhoneNumber   string `json:"phone_number"`
	Temporary     int    `json:"temporary"`
	PaymentID     int64  `json:"payment_id"`
	PaymentStatus int    `json:"payment_status"`
}

func (w wireResult) result() Result {
	r := Result{
		ErrorNote:     w.ErrorNote,
		CardToken:     w.CardToken,
		PhoneNumber:   w.PhoneNumber,
		Temporary:     w.Temporary,
		PaymentID:     w.PaymentID,
		PaymentStatus: w.PaymentStatus,
	}
	if w.ErrorCode != nil {
		r.ErrorCode = *w.ErrorCode
	}
	return r
}
