package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type VerifySubscriptionRequest struct {
	Payer         string `json:"payer"`
	TransactionID uint64 `json:"transaction_id"`
	Tier          string `json:"tier"`
	GasPrice      uint64 `json:"gas_price"`
	GasLimit      uint64 `json:"gas_limit"`
	Payment       uint64 `json:"payment"`
}

type VerificationRequestResponse struct {
	Status string `json:"status"`
	Data   struct {
		RequestID     string `json:"request_id"`
		TransactionID uint64 `json:"transaction_id"`
		Tier          string `json:"tier"`
		Payer         string `json:"payer"`
		Payment       uint64 `json:"payment"`
		OracleCost    uint64 `json:"oracle_cost"`
		Retained      uint64 `json:"retained"`
		State         string `json:"state"`
		RequestedAt   string `json:"requested_at"`
		CompletedAt   string `json:"completed_at,omitempty"`
	} `json:"data"`
}

type OracleCallbackRequest struct {
	RequestID string `json:"request_id"`
	Verified  bool   `json:"verified"`
}

type OracleCallbackResponse struct {
	Status string `json:"status"`
}

type SetBeneficiaryRequest struct {
	Account string `json:"account"`
}

type SetBeneficiaryResponse struct {
	Status string `json:"status"`
	Data   struct {
		Account string `json:"account"`
	} `json:"data"`
}

type WithdrawResponse struct {
	Status string `json:"status"`
	Data   struct {
		Beneficiary string `json:"beneficiary"`
		Amount      uint64 `json:"amount"`
	} `json:"data"`
}

type ForceSubscriptionRequest struct {
	Subscriber    string `json:"subscriber"`
	TransactionID uint64 `json:"transaction_id"`
	Tier          string `json:"tier"`
}

type ForceSubscriptionResponse struct {
	Status string `json:"status"`
	Data   struct {
		Subscriber    string `json:"subscriber"`
		TransactionID uint64 `json:"transaction_id"`
		Tier          string `json:"tier"`
	} `json:"data"`
}

type ChangeEndpointRequest struct {
	Endpoint string `json:"endpoint"`
}

type ChangeEndpointResponse struct {
	Status string `json:"status"`
	Data   struct {
		Endpoint string `json:"endpoint"`
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
