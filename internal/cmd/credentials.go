package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apilens/apilens/internal/core"
)

// Credential environment variables. Values may come from a .env file loaded
// at startup.
const (
	envToken    = "APILENS_TOKEN"
	envAPIKey   = "APILENS_API_KEY"
	envUsername = "APILENS_USERNAME"
	envPassword = "APILENS_PASSWORD"
)

type credentialOptions struct {
	Token       string
	APIKey      string
	Username    string
	Password    string
	AuthHeaders []string
}

func addCredentialFlags(cmd *cobra.Command) {
	cmd.Flags().String("token", "", "Bearer or OAuth access token (env "+envToken+")")
	cmd.Flags().String("api-key", "", "API key (env "+envAPIKey+")")
	cmd.Flags().String("username", "", "Basic auth username (env "+envUsername+")")
	cmd.Flags().String("password", "", "Basic auth password (env "+envPassword+")")
	cmd.Flags().StringArray("auth-header", nil, "Custom auth header as Name=Value (repeatable)")
}

func credentialOptionsFromFlags(cmd *cobra.Command) (credentialOptions, error) {
	var (
		opts credentialOptions
		err  error
	)
	if opts.Token, err = cmd.Flags().GetString("token"); err != nil {
		return opts, err
	}
	if opts.APIKey, err = cmd.Flags().GetString("api-key"); err != nil {
		return opts, err
	}
	if opts.Username, err = cmd.Flags().GetString("username"); err != nil {
		return opts, err
	}
	if opts.Password, err = cmd.Flags().GetString("password"); err != nil {
		return opts, err
	}
	if opts.AuthHeaders, err = cmd.Flags().GetStringArray("auth-header"); err != nil {
		return opts, err
	}
	return opts.withEnv(), nil
}

func (o credentialOptions) withEnv() credentialOptions {
	if strings.TrimSpace(o.Token) == "" {
		o.Token = strings.TrimSpace(os.Getenv(envToken))
	}
	if strings.TrimSpace(o.APIKey) == "" {
		o.APIKey = strings.TrimSpace(os.Getenv(envAPIKey))
	}
	if strings.TrimSpace(o.Username) == "" {
		o.Username = strings.TrimSpace(os.Getenv(envUsername))
	}
	if o.Password == "" {
		o.Password = os.Getenv(envPassword)
	}
	return o
}

// buildCredentials selects the credential variant for method. Missing
// material yields nil credentials, which the connection accepts.
func buildCredentials(method core.AuthMethod, opts credentialOptions) (core.Credentials, error) {
	token := strings.TrimSpace(opts.Token)
	apiKey := strings.TrimSpace(opts.APIKey)

	switch method {
	case core.AuthNone, "":
		return nil, nil
	case core.AuthAPIKey:
		if apiKey == "" {
			apiKey = token
		}
		if apiKey == "" {
			return nil, nil
		}
		return core.APIKeyCredentials{Key: apiKey}, nil
	case core.AuthBearer:
		if token == "" {
			token = apiKey
		}
		if token == "" {
			return nil, nil
		}
		return core.BearerCredentials{Token: token}, nil
	case core.AuthOAuth:
		if token == "" {
			return nil, nil
		}
		return core.OAuthCredentials{AccessToken: token}, nil
	case core.AuthBasic:
		username := strings.TrimSpace(opts.Username)
		if username == "" && opts.Password == "" {
			return nil, nil
		}
		if username == "" || opts.Password == "" {
			return nil, fmt.Errorf("basic auth needs both --username and --password")
		}
		return core.BasicCredentials{Username: username, Password: opts.Password}, nil
	case core.AuthCustom:
		if len(opts.AuthHeaders) == 0 {
			return nil, nil
		}
		headers, err := parseKeyValues(opts.AuthHeaders)
		if err != nil {
			return nil, fmt.Errorf("invalid --auth-header: %w", err)
		}
		return core.CustomCredentials{Headers: headers}, nil
	default:
		return nil, fmt.Errorf("unsupported auth method: %s", method)
	}
}

// parseKeyValues parses Name=Value or "Name: Value" pairs.
func parseKeyValues(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, raw := range values {
		key, value, ok := strings.Cut(raw, "=")
		if !ok {
			key, value, ok = strings.Cut(raw, ":")
		}
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected Name=Value, got %q", raw)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}
