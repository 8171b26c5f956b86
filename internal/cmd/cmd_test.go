package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apilens/apilens/internal/catalog"
	"github.com/apilens/apilens/internal/config"
	"github.com/apilens/apilens/internal/core"
	"github.com/apilens/apilens/internal/output"
)

func TestParseKeyValues(t *testing.T) {
	values, err := parseKeyValues([]string{"X-Team=core", "Accept: text/plain", "Empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"X-Team": "core",
		"Accept": "text/plain",
		"Empty":  "",
	}, values)

	values, err = parseKeyValues(nil)
	require.NoError(t, err)
	assert.Nil(t, values)

	_, err = parseKeyValues([]string{"no-separator"})
	require.Error(t, err)

	_, err = parseKeyValues([]string{"=value"})
	require.Error(t, err)
}

func TestBuildCredentials(t *testing.T) {
	tests := []struct {
		name    string
		method  core.AuthMethod
		opts    credentialOptions
		want    core.Credentials
		wantErr bool
	}{
		{name: "none ignores material", method: core.AuthNone, opts: credentialOptions{Token: "t"}, want: nil},
		{name: "api key", method: core.AuthAPIKey, opts: credentialOptions{APIKey: "k"}, want: core.APIKeyCredentials{Key: "k"}},
		{name: "api key falls back to token", method: core.AuthAPIKey, opts: credentialOptions{Token: "t"}, want: core.APIKeyCredentials{Key: "t"}},
		{name: "bearer", method: core.AuthBearer, opts: credentialOptions{Token: "t"}, want: core.BearerCredentials{Token: "t"}},
		{name: "bearer missing", method: core.AuthBearer, want: nil},
		{name: "oauth", method: core.AuthOAuth, opts: credentialOptions{Token: "t"}, want: core.OAuthCredentials{AccessToken: "t"}},
		{name: "basic", method: core.AuthBasic, opts: credentialOptions{Username: "u", Password: "p"}, want: core.BasicCredentials{Username: "u", Password: "p"}},
		{name: "basic missing password", method: core.AuthBasic, opts: credentialOptions{Username: "u"}, wantErr: true},
		{name: "custom", method: core.AuthCustom, opts: credentialOptions{AuthHeaders: []string{"X-Key=abc"}}, want: core.CustomCredentials{Headers: map[string]string{"X-Key": "abc"}}},
		{name: "custom invalid header", method: core.AuthCustom, opts: credentialOptions{AuthHeaders: []string{"bad"}}, wantErr: true},
		{name: "unknown method", method: core.AuthMethod("digest"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := buildCredentials(tt.method, tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, creds)
		})
	}
}

func TestCredentialOptionsWithEnv(t *testing.T) {
	t.Setenv(envToken, "env-token")
	t.Setenv(envPassword, "env-pass")

	opts := credentialOptions{Username: "flag-user"}.withEnv()
	assert.Equal(t, "env-token", opts.Token)
	assert.Equal(t, "flag-user", opts.Username)
	assert.Equal(t, "env-pass", opts.Password)

	opts = credentialOptions{Token: "flag-token"}.withEnv()
	assert.Equal(t, "flag-token", opts.Token)
}

func TestParseRateLimit(t *testing.T) {
	spec, err := parseRateLimit("60/1m")
	require.NoError(t, err)
	assert.Equal(t, core.RateLimitSpec{Requests: 60, PeriodSeconds: 60}, *spec)

	spec, err = parseRateLimit(" 5000 / 3600 ")
	require.NoError(t, err)
	assert.Equal(t, core.RateLimitSpec{Requests: 5000, PeriodSeconds: 3600}, *spec)

	for _, bad := range []string{"60", "0/1m", "x/1m", "10/soon", "10/500ms", "10/0"} {
		_, err := parseRateLimit(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseBatchLine(t *testing.T) {
	req, err := parseBatchLine("get /users")
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/users", req.Endpoint)

	req, err = parseBatchLine(`{"method":"post","endpoint":"/items","body":{"name":"a"},"query":{"dry":"1"}}`)
	require.NoError(t, err)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/items", req.Endpoint)
	assert.Equal(t, map[string]any{"name": "a"}, req.Body)
	assert.Equal(t, map[string]string{"dry": "1"}, req.Query)

	req, err = parseBatchLine(`{"endpoint":"/health"}`)
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)

	_, err = parseBatchLine("GET")
	require.Error(t, err)
	_, err = parseBatchLine(`{"method":"GET"}`)
	require.Error(t, err)
	_, err = parseBatchLine(`{"method":`)
	require.Error(t, err)
}

func TestReadBatchRequests(t *testing.T) {
	content := "# users\nGET /users\n\nPOST /users\n{\"method\":\"DELETE\",\"endpoint\":\"/users/1\"}\n"

	path := filepath.Join(t.TempDir(), "requests.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	requests, err := readBatchRequests(nil, path)
	require.NoError(t, err)
	require.Len(t, requests, 3)
	assert.Equal(t, "DELETE", requests[2].Method)

	requests, err = readBatchRequests(strings.NewReader(content), "-")
	require.NoError(t, err)
	assert.Len(t, requests, 3)

	_, err = readBatchRequests(strings.NewReader("GET /a\nbroken\n"), "-")
	require.ErrorContains(t, err, "line 2")

	_, err = readBatchRequests(nil, filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestParseRequestBody(t *testing.T) {
	body, err := parseRequestBody("")
	require.NoError(t, err)
	assert.Nil(t, body)

	body, err = parseRequestBody(` {"name":"widget"} `)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`{"name":"widget"}`), body)

	body, err = parseRequestBody("plain text")
	require.NoError(t, err)
	assert.Equal(t, "plain text", body)

	path := filepath.Join(t.TempDir(), "body.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1,2]`), 0o600))
	body, err = parseRequestBody("@" + path)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`[1,2]`), body)

	_, err = parseRequestBody("@")
	require.Error(t, err)
}

func TestSuggestionQuery(t *testing.T) {
	assert.Equal(t, "stripe", suggestionQuery("https://api.stripe.com/v1"))
	assert.Equal(t, "example", suggestionQuery("www.example.co"))
	assert.Equal(t, "localhost", suggestionQuery("http://localhost:8080"))
}

func TestFilterCatalog(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)

	assert.Len(t, filterCatalog(cat, nil, ""), cat.Len())

	for _, entry := range filterCatalog(cat, []string{"marketing"}, "") {
		assert.Equal(t, "marketing", entry.Category)
	}

	matches := filterCatalog(cat, nil, "sendgrid")
	require.NotEmpty(t, matches)
	assert.Equal(t, "sendgrid", matches[0].ID)

	assert.Empty(t, filterCatalog(cat, []string{"database"}, "sendgrid"))
}

func TestConnectionDefinitionFromFlags(t *testing.T) {
	sess := &session{cfg: &config.Config{}}

	newCmd := func(t *testing.T, flags map[string]string) *cobra.Command {
		t.Helper()
		cmd := &cobra.Command{Use: "add"}
		addDefinitionFlags(cmd)
		for name, value := range flags {
			require.NoError(t, cmd.Flags().Set(name, value))
		}
		return cmd
	}

	t.Run("CatalogWithOverrides", func(t *testing.T) {
		cmd := newCmd(t, map[string]string{
			"catalog":    "sendgrid",
			"name":       "mail",
			"rate-limit": "10/1s",
			"retries":    "0",
			"header":     "X-Team=core",
		})
		def, err := connectionDefinitionFromFlags(cmd, sess)
		require.NoError(t, err)
		assert.Equal(t, "mail", def.Name)
		assert.Equal(t, core.OriginPredefined, def.Origin)
		assert.Equal(t, core.AuthBearer, def.AuthMethod)
		assert.Equal(t, "https://api.sendgrid.com/v3", def.BaseURL)
		assert.Equal(t, &core.RateLimitSpec{Requests: 10, PeriodSeconds: 1}, def.RateLimit)
		require.NotNil(t, def.RetryCount)
		assert.Equal(t, 0, *def.RetryCount)
		assert.Equal(t, "core", def.Headers["X-Team"])
	})

	t.Run("Custom", func(t *testing.T) {
		cmd := newCmd(t, map[string]string{
			"base-url": "https://api.internal.example",
			"auth":     "apikey",
			"timeout":  "2s",
		})
		def, err := connectionDefinitionFromFlags(cmd, sess)
		require.NoError(t, err)
		assert.Equal(t, core.OriginCustom, def.Origin)
		assert.Equal(t, core.AuthAPIKey, def.AuthMethod)
		assert.Equal(t, 2*time.Second, def.Timeout)
		assert.Nil(t, def.RetryCount)
	})

	t.Run("MissingBaseURL", func(t *testing.T) {
		_, err := connectionDefinitionFromFlags(newCmd(t, nil), sess)
		require.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("UnknownCatalogEntry", func(t *testing.T) {
		_, err := connectionDefinitionFromFlags(newCmd(t, map[string]string{"catalog": "nope"}), sess)
		require.Error(t, err)
	})

	t.Run("UnsupportedAuth", func(t *testing.T) {
		cmd := newCmd(t, map[string]string{"base-url": "https://x.example", "auth": "digest"})
		_, err := connectionDefinitionFromFlags(cmd, sess)
		require.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestWriteRendered(t *testing.T) {
	newCmd := func(t *testing.T, flags map[string]string) (*cobra.Command, *bytes.Buffer) {
		t.Helper()
		cmd := &cobra.Command{Use: "test"}
		addOutputFlags(cmd)
		for name, value := range flags {
			require.NoError(t, cmd.Flags().Set(name, value))
		}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		return cmd, &buf
	}

	render := func(f output.Formatter) (string, error) {
		return f.FormatCatalog(nil)
	}

	cmd, buf := newCmd(t, map[string]string{"output-format": "json"})
	require.NoError(t, writeRendered(cmd, "catalog", render))
	assert.Equal(t, "[]\n", buf.String())

	dir := t.TempDir()
	cmd, buf = newCmd(t, map[string]string{"output-format": "json", "out-dir": dir})
	require.NoError(t, writeRendered(cmd, "Catalog List", render))
	assert.Empty(t, buf.String())
	data, err := os.ReadFile(filepath.Join(dir, "catalog-list.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))

	cmd, _ = newCmd(t, map[string]string{"out": "a.json", "out-dir": dir})
	require.Error(t, writeRendered(cmd, "catalog", render))

	cmd, _ = newCmd(t, map[string]string{"output-format": "yaml"})
	require.Error(t, writeRendered(cmd, "catalog", render))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "connection.my-api", sanitizeFilename("connection.My API"))
	assert.Equal(t, "output", sanitizeFilename("  ..  "))
}

func TestWriteRateLimitResetResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRateLimitResetResult(output.FormatTable, &buf, 3, 0, true))
	assert.Equal(t, "Would reset 3 connection rate limit(s)\n", buf.String())

	buf.Reset()
	require.NoError(t, writeRateLimitResetResult(output.FormatTable, &buf, 3, 2, false))
	assert.Equal(t, "Reset 2/3 connection rate limit(s)\n", buf.String())

	buf.Reset()
	require.NoError(t, writeRateLimitResetResult(output.FormatJSON, &buf, 1, 1, false))
	var result map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, float64(1), result["deleted"])
	assert.Equal(t, false, result["dry_run"])
}

func TestWriteVersion(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-01-15")
	t.Cleanup(func() { SetVersionInfo("", "", "") })

	var buf bytes.Buffer
	writeVersion(&buf, false)
	assert.Equal(t, "apilens 1.2.3\n", buf.String())

	buf.Reset()
	writeVersion(&buf, true)
	assert.Contains(t, buf.String(), "Commit: abc123")
	assert.Contains(t, buf.String(), "Gofulmen: ")
}

func TestSetDefaultsFrom(t *testing.T) {
	setDefaults()

	assert.Equal(t, 5, viper.GetInt("connector.batch_concurrency"))
	assert.Equal(t, 24*time.Hour, viper.GetDuration("discovery.cache_ttl"))
	assert.Equal(t, "libsql", viper.GetString("store.driver"))
}

func TestRuntimeOverrides(t *testing.T) {
	verbose, metricsFlag = true, true
	t.Cleanup(func() { verbose, metricsFlag = false, false })

	overrides := runtimeOverrides()
	assert.Equal(t, map[string]any{"level": "debug"}, overrides["logging"])
	assert.Equal(t, map[string]any{"enabled": true}, overrides["metrics"])
}
