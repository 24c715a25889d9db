package client

type TextMessageRequest struct {
	Content string `json:"content"`
	Type    string `json:"type"`
	Device  string `json:"device"`
}

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type UserResponse struct {
	ID       any    `json:"id,omitempty"`
	Username string `json:"username"`
}
