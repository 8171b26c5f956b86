package core

import "fmt"

// Credentials is the credential material attached to a connection. Each
// variant carries only the fields its auth method needs.
type Credentials interface {
	// Method returns the auth method this credential variant serves.
	Method() AuthMethod
	sealed()
}

// APIKeyCredentials carries an API key sent as a bearer token.
type APIKeyCredentials struct {
	Key string
}

// BearerCredentials carries a bearer token.
type BearerCredentials struct {
	Token string
}

// BasicCredentials carries a username and password.
type BasicCredentials struct {
	Username string
	Password string
}

// OAuthCredentials carries an already-obtained access token.
type OAuthCredentials struct {
	AccessToken string
}

// CustomCredentials carries an arbitrary header set.
type CustomCredentials struct {
	Headers map[string]string
}

func (APIKeyCredentials) Method() AuthMethod { return AuthAPIKey }
func (BearerCredentials) Method() AuthMethod { return AuthBearer }
func (BasicCredentials) Method() AuthMethod  { return AuthBasic }
func (OAuthCredentials) Method() AuthMethod  { return AuthOAuth }
func (CustomCredentials) Method() AuthMethod { return AuthCustom }

func (APIKeyCredentials) sealed() {}
func (BearerCredentials) sealed() {}
func (BasicCredentials) sealed()  {}
func (OAuthCredentials) sealed()  {}
func (CustomCredentials) sealed() {}

func (APIKeyCredentials) String() string { return "api_key(redacted)" }
func (BearerCredentials) String() string { return "bearer(redacted)" }
func (c BasicCredentials) String() string {
	return fmt.Sprintf("basic(%s:redacted)", c.Username)
}
func (OAuthCredentials) String() string { return "oauth(redacted)" }
func (c CustomCredentials) String() string {
	return fmt.Sprintf("custom(%d headers, redacted)", len(c.Headers))
}

// CredentialsMatch reports whether creds may be attached to a connection
// using method. Nil credentials always match.
func CredentialsMatch(method AuthMethod, creds Credentials) bool {
	if creds == nil {
		return true
	}
	switch method {
	case AuthAPIKey, AuthBearer:
		// api_key and bearer share the Authorization: Bearer wire format.
		m := creds.Method()
		return m == AuthAPIKey || m == AuthBearer
	case AuthOAuth:
		m := creds.Method()
		return m == AuthOAuth || m == AuthBearer
	case AuthNone:
		return false
	default:
		return creds.Method() == method
	}
}
