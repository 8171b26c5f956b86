package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// buildBinary compiles cmd/apilens and copies it outside the repository.
func buildBinary(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("standalone binary copy/exec test is unix-focused")
	}
	goModPathBytes, err := exec.Command("go", "env", "GOMOD").Output()
	if err != nil {
		t.Fatalf("go env GOMOD: %v", err)
	}
	goModPath := strings.TrimSpace(string(goModPathBytes))
	if goModPath == "" {
		t.Fatalf("go env GOMOD returned empty")
	}
	repoRoot := filepath.Dir(goModPath)

	buildDir := t.TempDir()
	binaryPath := filepath.Join(buildDir, "apilens")

	build := exec.Command("go", "build", "-o", binaryPath, "./cmd/apilens")
	build.Dir = repoRoot
	build.Env = os.Environ()
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("go build: %v\n%s", err, string(out))
	}

	outside := t.TempDir()
	copiedBinary := filepath.Join(outside, "apilens")

	// Use a direct file copy to avoid relying on platform-specific tools.
	data, err := os.ReadFile(binaryPath)
	if err != nil {
		t.Fatalf("read built binary: %v", err)
	}
	if err := os.WriteFile(copiedBinary, data, 0o755); err != nil {
		t.Fatalf("write copied binary: %v", err)
	}
	return copiedBinary
}

// isolatedEnv points config, data and the database at a temp directory.
func isolatedEnv(t *testing.T) []string {
	t.Helper()
	home := t.TempDir()
	return append(os.Environ(),
		"HOME="+home,
		"XDG_CONFIG_HOME="+filepath.Join(home, "config"),
		"XDG_DATA_HOME="+filepath.Join(home, "data"),
		"APILENS_DB_PATH="+filepath.Join(home, "apilens.db"),
	)
}

func run(t *testing.T, binary string, env []string, args ...string) string {
	t.Helper()
	command := exec.Command(binary, args...)
	command.Dir = filepath.Dir(binary)
	command.Env = env
	out, err := command.Output()
	if err != nil {
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = string(exitErr.Stderr)
		}
		t.Fatalf("%s failed: %v\n%s\n%s", strings.Join(args, " "), err, string(out), stderr)
	}
	return string(out)
}

func TestStandaloneBinaryVersionAndHelpWorkOutsideRepo(t *testing.T) {
	binary := buildBinary(t)
	env := isolatedEnv(t)

	if out := run(t, binary, env, "version"); !strings.HasPrefix(out, "apilens ") {
		t.Fatalf("unexpected version output: %q", out)
	}
	run(t, binary, env, "--help")
}

func TestStandaloneBinaryConnectionRoundTrip(t *testing.T) {
	binary := buildBinary(t)
	env := isolatedEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-RateLimit-Remaining", "41")
		w.Header().Set("X-RateLimit-Limit", "42")
		_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
	}))
	defer server.Close()

	run(t, binary, env, "connection", "add", "--name", "local", "--base-url", server.URL, "--auth", "bearer", "--output-format", "json")

	listed := run(t, binary, env, "connection", "list", "--output-format", "json")
	if strings.Contains(listed, "secret-token") {
		t.Fatalf("connection list leaked credentials: %s", listed)
	}
	var records []map[string]any
	if err := json.Unmarshal([]byte(listed), &records); err != nil {
		t.Fatalf("decode connection list: %v\n%s", err, listed)
	}
	if len(records) != 1 || records[0]["name"] != "local" {
		t.Fatalf("unexpected connections: %s", listed)
	}

	callEnv := append(append([]string{}, env...), "APILENS_TOKEN=secret-token")
	called := run(t, binary, callEnv, "call", "local", "GET", "/ping", "--output-format", "json")
	var response map[string]any
	if err := json.Unmarshal([]byte(called), &response); err != nil {
		t.Fatalf("decode call response: %v\n%s", err, called)
	}
	if response["status_code"] != float64(200) {
		t.Fatalf("unexpected response: %s", called)
	}

	limits := run(t, binary, env, "rate-limit", "list", "--output-format", "json")
	if !strings.Contains(limits, `"remaining": 41`) {
		t.Fatalf("rate limit state not persisted: %s", limits)
	}
}
