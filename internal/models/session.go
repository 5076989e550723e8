package models

// Token is the response of the password grant.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// Identity is the account behind a bearer token.
type Identity struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
}

// SignUp is the account creation payload.
type SignUp struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is the authenticated state of the client. An empty Token means
// no session.
type Session struct {
	Token    string `json:"-"`
	UserID   int    `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// Active reports whether a token is held.
func (s Session) Active() bool {
	return s.Token != ""
}
