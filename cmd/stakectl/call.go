package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

func runCall(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return fail(stderr, "usage: stakectl call <METHOD> <path> [--data <json>]")
	}
	method := strings.ToUpper(strings.TrimSpace(args[0]))
	path := args[1]
	fs := newFlagSet("call", stderr)
	data := fs.String("data", "", "JSON request body")
	idemKey := fs.String("idempotency-key", "", "Idempotency-Key header (generated for POST when empty)")
	if err := fs.Parse(args[2:]); err != nil {
		return 1
	}
	if method != http.MethodGet && method != http.MethodPost {
		return fail(stderr, "method must be GET or POST")
	}
	if *data != "" && !json.Valid([]byte(*data)) {
		return fail(stderr, "--data is not valid JSON")
	}

	base := strings.TrimRight(envOr(rpcURLEnv, defaultRPCURL), "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequest(method, base+path, bytes.NewBufferString(*data))
	if err != nil {
		return fail(stderr, "%v", err)
	}
	if *data != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := strings.TrimSpace(os.Getenv(rpcTokenEnv)); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method == http.MethodPost {
		key := strings.TrimSpace(*idemKey)
		if key == "" {
			key = uuid.NewString()
		}
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fail(stderr, "%v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(stderr, "%v", err)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, body, "", "  ") == nil {
		body = pretty.Bytes()
	}
	if resp.StatusCode >= 300 {
		fmt.Fprintf(stderr, "%s\n%s\n", resp.Status, body)
		return 1
	}
	fmt.Fprintf(stdout, "%s\n", body)
	return 0
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
