package models

// Requests for the scan HTTP endpoints. Defined in domain for consistency and reuse.

type StartScanRequest struct {
	Date    string `json:"date" validate:"omitempty,datetime=01/02/2006"`
	Workers int    `json:"workers" default:"0" validate:"gte=0,lte=64"`
	Batched bool   `json:"batched"`
}

type RecentScansRequest struct {
	Limit int `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=100"`
}

type AnalyzeRequest struct {
	Symbol  string `param:"symbol" json:"symbol" validate:"required,alphanum,uppercase,max=10"`
	IronFly bool   `query:"iron_fly" json:"iron_fly"`
}
