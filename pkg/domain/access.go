package domain

type AccessRequest struct {
	Code string `json:"code"`
}

type AccessResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
