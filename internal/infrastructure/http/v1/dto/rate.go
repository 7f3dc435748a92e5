package dto

// ResolveTaxRequest asks for the tax of a quantity of an item.
type ResolveTaxRequest struct {
	ItemCode string `json:"itemCode" binding:"required"`
	// QuantityLitres is the quantity already converted to litres
	QuantityLitres string `json:"quantityLitres"`
	// Quantity plus Unit lets the caller send commercial units instead
	Quantity string `json:"quantity"`
	Unit     string `json:"unit"`
}

// ResolveTaxResponse is the rate engine's answer.
type ResolveTaxResponse struct {
	ItemCode       string `json:"itemCode"`
	Category       string `json:"category"`
	QuantityLitres string `json:"quantityLitres"`
	Rate           string `json:"rate"`
	RateSource     string `json:"rateSource"`
	TaxAmount      string `json:"taxAmount"`
}
