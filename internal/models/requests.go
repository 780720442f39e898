package models

// APIResponse is the envelope used by the admin listing endpoints.
type APIResponse struct {
	Status bool        `json:"status"`
	Msg    string      `json:"msg"`
	Obj    interface{} `json:"obj"`
}

// PaginatedResponse wraps list results with pagination info.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// PaymentRequest is the inbound payment request body.
type PaymentRequest struct {
	Email         string `json:"email" validate:"required"`
	Amount        string `json:"amount" validate:"required"`
	LsDocumentNo  string `json:"lsDocumentNo" validate:"required"`
	PayPortalName string `json:"payPortalName" validate:"required"`
	TerminalID    string `json:"terminalId,omitempty"`
}

// PaymentResponse is the normalized result returned for every payment request.
// Error carries the failure kind when the request did not produce an order.
type PaymentResponse struct {
	ReturnCode     int                    `json:"returnCode"`
	Message        string                 `json:"message"`
	SubCode        int                    `json:"subCode,omitempty"`
	SubMessage     string                 `json:"subMessage,omitempty"`
	PayPortalOrder string                 `json:"payPortalOrder,omitempty"`
	Attempt        string                 `json:"attempt,omitempty"`
	OrderURL       string                 `json:"orderUrl,omitempty"`
	Error          string                 `json:"error,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
}

// StatusQueryRequest is the POS bridge status query.
type StatusQueryRequest struct {
	DocumentNo string `json:"documentNo" validate:"required"`
	PortalName string `json:"portalName" validate:"required"`
}

// StatusQueryResponse is the POS bridge answer. ResponseCode follows the
// bridge code table, Checksum lets the POS detect tampering in transit.
type StatusQueryResponse struct {
	ResponseCode    string `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
	DocumentNo      string `json:"documentNo"`
	Amount          string `json:"amount"`
	PayPortalOrder  string `json:"payPortalOrder"`
	Status          string `json:"status"`
	Checksum        string `json:"checksum"`
}

// TerminalTransactionsRequest lists transactions for a batch of terminals.
type TerminalTransactionsRequest struct {
	TerminalIDs []string `json:"terminalIds" validate:"required,min=1,dive,required"`
	Limit       int      `json:"limit"`
	Page        int      `json:"page"`
}
