package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SubscriptionResponse struct {
	Status string `json:"status"`
	Data   struct {
		Subscriber        string `json:"subscriber"`
		Tier              string `json:"tier,omitempty"`
		LastTransactionID uint64 `json:"last_transaction_id"`
		ExpiresAt         string `json:"expires_at,omitempty"`
	} `json:"data"`
}

type AuthorizeRequest struct {
	Principal string `json:"principal"`
	Role      string `json:"role"`
}

type AuthorizeResponse struct {
	Status string `json:"status"`
	Data   struct {
		Principal string `json:"principal"`
		Role      string `json:"role"`
	} `json:"data"`
}

type AuthorizedResponse struct {
	Status string `json:"status"`
	Data   struct {
		Principal string `json:"principal"`
		Role      string `json:"role"`
	} `json:"data"`
}
