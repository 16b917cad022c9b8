package flutterwave

import "encoding/json"

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    *chargeMeta     `json:"meta,omitempty"`
}

type customer struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phonenumber,omitempty"`
	Name        string `json:"name,omitempty"`
}

type customizations struct {
	Title string `json:"title,omitempty"`
}

type paymentRequest struct {
	TxRef          string            `json:"tx_ref"`
	Amount         json.Number       `json:"amount"`
	Currency       string            `json:"currency"`
	RedirectURL    string            `json:"redirect_url"`
	Customer       customer          `json:"customer"`
	Meta           map[string]string `json:"meta,omitempty"`
	Customizations customizations    `json:"customizations"`
}

type paymentData struct {
	Link string `json:"link"`
}

type transactionData struct {
	ID              int64       `json:"id"`
	TxRef           string      `json:"tx_ref"`
	FlwRef          string      `json:"flw_ref"`
	Reference       string      `json:"reference"`
	Amount          json.Number `json:"amount"`
	Currency        string      `json:"currency"`
	Status          string      `json:"status"`
	ProcessorReason string      `json:"processor_response"`
}

type refundRequest struct {
	Amount   json.Number `json:"amount,omitempty"`
	Comments string      `json:"comments,omitempty"`
}

type refundData struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type mobileMoneyRequest struct {
	TxRef       string            `json:"tx_ref"`
	Amount      json.Number       `json:"amount"`
	Currency    string            `json:"currency"`
	Email       string            `json:"email"`
	PhoneNumber string            `json:"phone_number"`
	FullName    string            `json:"fullname,omitempty"`
	Network     string            `json:"network,omitempty"`
	Country     string            `json:"country,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

type chargeMeta struct {
	Authorization struct {
		Mode     string `json:"mode"`
		Redirect string `json:"redirect"`
		Note     string `json:"note"`
	} `json:"authorization"`
}

type network struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type amountCurrency struct {
	Currency string      `json:"currency"`
	Amount   json.Number `json:"amount"`
}

type rateData struct {
	Rate        json.Number    `json:"rate"`
	Source      amountCurrency `json:"source"`
	Destination amountCurrency `json:"destination"`
}

type webhookPayload struct {
	Event string          `json:"event"`
	Data  transactionData `json:"data"`
}
