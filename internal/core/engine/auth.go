package engine

import (
	"encoding/base64"

	"github.com/apilens/apilens/internal/core"
)

// ApplyAuth returns a copy of headers with the connection's credential
// material applied. Keys are canonicalized, so credentials replace a
// caller-set header of any case. Neither the input headers nor the stored credentials
// are modified.
func ApplyAuth(headers map[string]string, conn *core.ConnectionConfig) map[string]string {
	out := make(map[string]string, len(headers)+1)
	mergeHeaders(out, headers)
	if conn == nil || conn.Credentials == nil {
		return out
	}

	switch conn.AuthMethod {
	case core.AuthAPIKey, core.AuthBearer, core.AuthOAuth:
		if token := bearerToken(conn.Credentials); token != "" {
			out["Authorization"] = "Bearer " + token
		}
	case core.AuthBasic:
		if creds, ok := conn.Credentials.(core.BasicCredentials); ok {
			raw := creds.Username + ":" + creds.Password
			out["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
		}
	case core.AuthCustom:
		if creds, ok := conn.Credentials.(core.CustomCredentials); ok {
			mergeHeaders(out, creds.Headers)
		}
	}

	return out
}

func bearerToken(creds core.Credentials) string {
	switch c := creds.(type) {
	case core.APIKeyCredentials:
		return c.Key
	case core.BearerCredentials:
		return c.Token
	case core.OAuthCredentials:
		return c.AccessToken
	default:
		return ""
	}
}
