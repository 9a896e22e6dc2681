package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pay2run/pay2run"
	"github.com/pay2run/pay2run/manage"
	"github.com/pay2run/pay2run/sandbox"
)

const testAPIKey = "sk_cli_test"

func startSandbox(t *testing.T, autoComplete time.Duration) *httptest.Server {
	t.Helper()
	box := sandbox.New(sandbox.Config{
		APIKey:       testAPIKey,
		AutoComplete: autoComplete,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	server := httptest.NewServer(box.Handler())
	t.Cleanup(server.Close)
	return server
}

// runCLI executes the CLI with isolated config resolution and captured
// streams.
func runCLI(t *testing.T, stdin string, args ...string) (string, string, int) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("PAY2RUN_API_KEY", "")
	t.Setenv("PAY2RUN_BASE_URL", "")
	t.Setenv("PAY2RUN_OUTPUT", "")

	var stdout, stderr bytes.Buffer
	runner := NewRunnerWithStreams(&stdout, &stderr, strings.NewReader(stdin))
	code := runner.Run(args)
	return stdout.String(), stderr.String(), code
}

func createTestAction(t *testing.T, baseURL string) pay2run.ActionConfig {
	t.Helper()
	client, err := manage.New(testAPIKey, manage.WithBaseURL(baseURL))
	if err != nil {
		t.Fatalf("manage.New: %v", err)
	}
	created, err := client.Create(context.Background(), pay2run.ActionInput{
		Name:      "Weather API",
		TargetURL: "https://api.example.com/weather",
		Method:    "POST",
		Price:     "0.05",
		Currency:  "USDC",
		Payment: pay2run.CreatorPaymentConfig{
			EVM: &pay2run.EVMPaymentConfig{
				ChainID:   "8453",
				Recipient: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
				Token:     "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return *created
}

func TestVersionCommand(t *testing.T) {
	stdout, _, code := runCLI(t, "", "version")
	if code != 0 {
		t.Fatalf("exit code = %d; want 0", code)
	}
	if !strings.Contains(stdout, "pay2run 0.1.0") {
		t.Errorf("stdout = %q; want version line", stdout)
	}
}

func TestActionsLifecycle(t *testing.T) {
	server := startSandbox(t, 0)

	stdout, stderr, code := runCLI(t, "",
		"actions", "create",
		"--api-key", testAPIKey, "--base-url", server.URL,
		"--name", "Weather API",
		"--target-url", "https://api.example.com/weather",
		"--price", "0.05",
		"--network", "evm", "--chain-id", "8453",
		"--recipient", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"--token", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	)
	if code != 0 {
		t.Fatalf("create exit code = %d, stderr: %s", code, stderr)
	}
	var created pay2run.ActionConfig
	if err := json.Unmarshal([]byte(stdout), &created); err != nil {
		t.Fatalf("decode create output %q: %v", stdout, err)
	}
	if !strings.HasPrefix(created.ID, "act_") {
		t.Errorf("created ID = %q; want act_ prefix", created.ID)
	}

	stdout, stderr, code = runCLI(t, "",
		"actions", "update", created.ID,
		"--api-key", testAPIKey, "--base-url", server.URL,
		"--price", "0.10",
	)
	if code != 0 {
		t.Fatalf("update exit code = %d, stderr: %s", code, stderr)
	}
	var updated pay2run.ActionConfig
	if err := json.Unmarshal([]byte(stdout), &updated); err != nil {
		t.Fatalf("decode update output: %v", err)
	}
	if updated.Payment.Price != "0.10" {
		t.Errorf("updated price = %q; want 0.10", updated.Payment.Price)
	}

	stdout, stderr, code = runCLI(t, "",
		"actions", "list", "--api-key", testAPIKey, "--base-url", server.URL,
	)
	if code != 0 {
		t.Fatalf("list exit code = %d, stderr: %s", code, stderr)
	}
	var actions []pay2run.ActionConfig
	if err := json.Unmarshal([]byte(stdout), &actions); err != nil {
		t.Fatalf("decode list output: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("list returned %d actions; want 1", len(actions))
	}

	stdout, stderr, code = runCLI(t, "",
		"actions", "delete", created.ID,
		"--api-key", testAPIKey, "--base-url", server.URL,
	)
	if code != 0 {
		t.Fatalf("delete exit code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "deleted "+created.ID) {
		t.Errorf("delete output = %q", stdout)
	}
}

func TestActionsListPlainOutput(t *testing.T) {
	server := startSandbox(t, 0)
	createTestAction(t, server.URL)

	stdout, stderr, code := runCLI(t, "",
		"actions", "list", "--plain",
		"--api-key", testAPIKey, "--base-url", server.URL,
	)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	line := strings.TrimSpace(stdout)
	if strings.Count(line, "\n") != 0 {
		t.Fatalf("plain list output = %q; want a single line", stdout)
	}
	if !strings.Contains(line, "name=Weather API") {
		t.Errorf("plain output %q missing name field", line)
	}
}

func TestActionsUpdateRequiresFields(t *testing.T) {
	server := startSandbox(t, 0)
	action := createTestAction(t, server.URL)

	_, stderr, code := runCLI(t, "",
		"actions", "update", action.ID,
		"--api-key", testAPIKey, "--base-url", server.URL,
	)
	if code == 0 {
		t.Fatal("update with no fields succeeded; want failure")
	}
	if !strings.Contains(stderr, "no fields to update") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRunCommandConfirm(t *testing.T) {
	server := startSandbox(t, 20*time.Millisecond)
	action := createTestAction(t, server.URL)

	stdout, stderr, code := runCLI(t, "\n",
		"run", action.ID,
		"--base-url", server.URL,
		"--poll-interval", "10ms",
		"--body", `{"city":"Lisbon"}`,
		"--no-qr",
	)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stderr, "Payment required") {
		t.Errorf("stderr = %q; want payment prompt", stderr)
	}
	if !strings.Contains(stdout, "Lisbon") {
		t.Errorf("stdout = %q; want echoed body", stdout)
	}
	if !strings.Contains(stdout, action.ID) {
		t.Errorf("stdout = %q; want action id in result", stdout)
	}
}

func TestRunCommandCancel(t *testing.T) {
	server := startSandbox(t, 0)
	action := createTestAction(t, server.URL)

	_, stderr, code := runCLI(t, "cancel\n",
		"run", action.ID,
		"--base-url", server.URL,
		"--no-qr",
	)
	if code == 0 {
		t.Fatal("cancelled run exited 0; want failure")
	}
	if !strings.Contains(stderr, "cancelled") {
		t.Errorf("stderr = %q; want cancellation notice", stderr)
	}
}

func TestRunCommandRejectsBadBody(t *testing.T) {
	_, stderr, code := runCLI(t, "", "run", "act_1", "--body", "{broken")
	if code == 0 {
		t.Fatal("run with invalid body succeeded; want failure")
	}
	if !strings.Contains(stderr, "parse --body") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestTokenInspectCommand(t *testing.T) {
	claims := jwt.MapClaims{
		"actionId":         "act_42",
		"paymentRequestId": "pr_42",
		"iss":              "pay2run",
		"exp":              time.Now().Add(time.Hour).Unix(),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	stdout, stderr, code := runCLI(t, "", "token", "inspect", raw)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(stdout), &decoded); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if decoded["actionId"] != "act_42" {
		t.Errorf("actionId = %v; want act_42", decoded["actionId"])
	}
	if decoded["paymentRequestId"] != "pr_42" {
		t.Errorf("paymentRequestId = %v; want pr_42", decoded["paymentRequestId"])
	}
	if decoded["expired"] != false {
		t.Errorf("expired = %v; want false", decoded["expired"])
	}
}

func TestTokenInspectRejectsGarbage(t *testing.T) {
	_, stderr, code := runCLI(t, "", "token", "inspect", "not-a-credential")
	if code == 0 {
		t.Fatal("inspect of garbage succeeded; want failure")
	}
	if !strings.Contains(stderr, "malformed") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestToolName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Weather API", "weather_api"},
		{"  GPT-4 Turbo! ", "gpt_4_turbo"},
		{"already_fine", "already_fine"},
		{"---", "action"},
		{"", "action"},
	}
	for _, tc := range cases {
		if got := toolName(tc.in); got != tc.want {
			t.Errorf("toolName(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestCreateFromFile(t *testing.T) {
	server := startSandbox(t, 0)

	input := pay2run.ActionInput{
		Name:      "File Action",
		TargetURL: "https://api.example.com/file",
		Method:    "GET",
		Price:     "0.01",
		Currency:  "USDC",
		Payment: pay2run.CreatorPaymentConfig{
			Solana: &pay2run.SolanaPaymentConfig{
				Cluster:   "mainnet-beta",
				Recipient: "9B5XszUGdMaxCZ7uSQhPzdks5ZQSmWxrmzCSvtJ6Ns6g",
			},
		},
	}
	buf, err := json.Marshal(input)
	if err != nil {
		t.Fatalf("marshal input: %v", err)
	}
	path := filepath.Join(t.TempDir(), "action.json")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write action file: %v", err)
	}

	stdout, stderr, code := runCLI(t, "",
		"actions", "create", "--file", path,
		"--api-key", testAPIKey, "--base-url", server.URL,
	)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	var created pay2run.ActionConfig
	if err := json.Unmarshal([]byte(stdout), &created); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if created.Name != "File Action" {
		t.Errorf("Name = %q; want File Action", created.Name)
	}
	if created.Payment.Network != pay2run.NetworkSolana {
		t.Errorf("Network = %q; want solana", created.Payment.Network)
	}
}

func TestSchemaCommand(t *testing.T) {
	stdout, stderr, code := runCLI(t, "", "schema")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	var root commandSchema
	if err := json.Unmarshal([]byte(stdout), &root); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if root.Path != "pay2run" {
		t.Errorf("Path = %q; want pay2run", root.Path)
	}
	if len(root.Subcommands) == 0 {
		t.Fatal("expected subcommands in root schema")
	}

	stdout, stderr, code = runCLI(t, "", "schema", "actions", "create")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	var create commandSchema
	if err := json.Unmarshal([]byte(stdout), &create); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if create.Path != "pay2run actions create" {
		t.Errorf("Path = %q; want pay2run actions create", create.Path)
	}
	found := false
	for _, f := range create.Flags {
		if f.Name == "price" {
			found = true
		}
	}
	if !found {
		t.Error("expected --price flag in actions create schema")
	}
}

func TestSchemaCommandUnknownPath(t *testing.T) {
	_, stderr, code := runCLI(t, "", "schema", "nope")
	if code == 0 {
		t.Fatal("expected nonzero exit for unknown command path")
	}
	if !strings.Contains(stderr, "command not found") {
		t.Errorf("stderr = %q; want command not found message", stderr)
	}
}
