package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TestContext carries per-scenario state: the agents minted so far, the
// last response and named resources created along the way.
type TestContext struct {
	baseURL string
	client  *http.Client

	agents map[string]agent
	saved  map[string]string

	status int
	body   map[string]any
	raw    []byte
}

type agent struct {
	ID    string
	Token string
}

// NewTestContext targets the server at baseURL.
func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset clears scenario state.
func (tc *TestContext) Reset() {
	tc.agents = map[string]agent{}
	tc.saved = map[string]string{}
	tc.status, tc.body, tc.raw = 0, nil, nil
}

// Agent mints a dev token for name once per scenario.
func (tc *TestContext) Agent(name string, roles ...string) error {
	if _, ok := tc.agents[name]; ok {
		return nil
	}
	if err := tc.Request(http.MethodPost, "/dev/token", "", map[string]any{"roles": roles}); err != nil {
		return err
	}
	if tc.status != http.StatusOK {
		return fmt.Errorf("dev token for %s: status %d: %s", name, tc.status, tc.raw)
	}
	tc.agents[name] = agent{ID: fmt.Sprint(tc.body["agent_id"]), Token: fmt.Sprint(tc.body["access_token"])}
	return nil
}

// AgentID returns the id minted for name.
func (tc *TestContext) AgentID(name string) (string, error) {
	a, ok := tc.agents[name]
	if !ok {
		return "", fmt.Errorf("unknown agent %q", name)
	}
	return a.ID, nil
}

// Request sends body as JSON on behalf of the named agent. An empty name
// sends no Authorization header.
func (tc *TestContext) Request(method, path, as string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, tc.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		a, ok := tc.agents[as]
		if !ok {
			return fmt.Errorf("unknown agent %q", as)
		}
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tc.status = resp.StatusCode
	tc.raw, err = io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.body = nil
	if len(tc.raw) > 0 && tc.raw[0] == '{' {
		if err := json.Unmarshal(tc.raw, &tc.body); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Status returns the last response status.
func (tc *TestContext) Status() int { return tc.status }

// Raw returns the last response body.
func (tc *TestContext) Raw() string { return string(tc.raw) }

// Field reads a dotted path such as "status.remaining" from the last response.
func (tc *TestContext) Field(path string) (any, error) {
	var cur any = tc.body
	for part := range strings.SplitSeq(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", path, part)
		}
		if cur, ok = m[part]; !ok {
			return nil, fmt.Errorf("field %q not found in %s", path, tc.raw)
		}
	}
	return cur, nil
}

// Save remembers value under name for later steps.
func (tc *TestContext) Save(name, value string) { tc.saved[name] = value }

// Saved returns a value stored by Save.
func (tc *TestContext) Saved(name string) (string, error) {
	v, ok := tc.saved[name]
	if !ok {
		return "", fmt.Errorf("nothing saved as %q", name)
	}
	return v, nil
}
