// Package client talks to a taskbroker server on behalf of the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vasilii314/taskbroker/account"
	"github.com/vasilii314/taskbroker/task"
	"github.com/vasilii314/taskbroker/utils"
)

// Client is an HTTP client for the broker API. Credentials are sent as a
// bearer token when Token is set, otherwise as HTTP Basic.
type Client struct {
	BaseURL  string
	Username string
	Password string
	Token    string
	HTTP     *http.Client
	// Retry applies to GET requests only.
	Retry utils.Retry
}

// New returns a client for server, given as "host:port" or a full URL.
func New(server string) *Client {
	base := strings.TrimRight(strings.TrimSpace(server), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Retry:   utils.DefaultRetry,
	}
}

// Error is a non-successful answer from the server.
type Error struct {
	StatusCode int
	Detail     string
	Fields     map[string][]string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d: %s", e.StatusCode, e.Detail)
	}
	if len(e.Fields) > 0 {
		names := make([]string, 0, len(e.Fields))
		for name := range e.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, name+": "+strings.Join(e.Fields[name], " "))
		}
		return fmt.Sprintf("%d: %s", e.StatusCode, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.Token)
	case c.Username != "":
		req.SetBasicAuth(c.Username, c.Password)
	}
	return req, nil
}

// do sends the request and decodes a 2xx body into out. GET requests are
// retried on transport and gateway errors.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.exchange(ctx, method, path, body, out, method == http.MethodGet)
}

func (c *Client) exchange(ctx context.Context, method, path string, body, out any, retry bool) error {
	send := func(string) (*http.Response, error) {
		req, err := c.newRequest(ctx, method, path, body)
		if err != nil {
			return nil, err
		}
		return c.HTTP.Do(req)
	}
	var (
		resp *http.Response
		err  error
	)
	if retry {
		resp, err = c.Retry.Do(ctx, send, c.BaseURL+path)
	} else {
		resp, err = send(c.BaseURL + path)
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	e := &Error{StatusCode: status}
	var detail struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(data, &detail) == nil && detail.Detail != "" {
		e.Detail = detail.Detail
		return e
	}
	var fields map[string][]string
	if json.Unmarshal(data, &fields) == nil && len(fields) > 0 {
		e.Fields = fields
		return e
	}
	e.Detail = strings.TrimSpace(string(data))
	return e
}

type detailResponse struct {
	Detail string `json:"detail"`
}

func (c *Client) ListTasks(ctx context.Context, filters url.Values) ([]task.Task, error) {
	path := "/tasks"
	if len(filters) > 0 {
		path += "?" + filters.Encode()
	}
	var tasks []task.Task
	if err := c.do(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) GetTask(ctx context.Context, id uuid.UUID) (task.Task, error) {
	var t task.Task
	err := c.do(ctx, http.MethodGet, "/tasks/"+id.String(), nil, &t)
	return t, err
}

// CreateTask posts raw, the JSON task payload, and returns the stored task.
func (c *Client) CreateTask(ctx context.Context, raw json.RawMessage) (task.Task, error) {
	var t task.Task
	err := c.do(ctx, http.MethodPost, "/tasks", raw, &t)
	return t, err
}

// RequestTask returns the server's confirmation detail. The GET changes
// state, so it is sent once.
func (c *Client) RequestTask(ctx context.Context, id uuid.UUID) (string, error) {
	var d detailResponse
	err := c.exchange(ctx, http.MethodGet, "/tasks/"+id.String()+"/request", nil, &d, false)
	return d.Detail, err
}

func (c *Client) RespondTask(ctx context.Context, id uuid.UUID, response string) (string, error) {
	var d detailResponse
	err := c.do(ctx, http.MethodPost, "/tasks/"+id.String()+"/response", map[string]string{"response": response}, &d)
	return d.Detail, err
}

func (c *Client) CompleteTask(ctx context.Context, id uuid.UUID) (string, error) {
	var d detailResponse
	err := c.do(ctx, http.MethodPost, "/tasks/"+id.String()+"/done", nil, &d)
	return d.Detail, err
}

func (c *Client) TaskHistory(ctx context.Context, id uuid.UUID) ([]task.Event, error) {
	var events []task.Event
	if err := c.do(ctx, http.MethodGet, "/tasks/"+id.String()+"/events", nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// register posts body to a registration endpoint. Those answer 200 with
// either the created record or a field error mapping under "message".
func (c *Client) register(ctx context.Context, path string, body, out any) error {
	var resp struct {
		Message json.RawMessage `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return err
	}
	var fields map[string][]string
	if json.Unmarshal(resp.Message, &fields) == nil && len(fields) > 0 {
		return &Error{StatusCode: http.StatusOK, Fields: fields}
	}
	if err := json.Unmarshal(resp.Message, out); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// RegisterUser returns the server's confirmation message.
func (c *Client) RegisterUser(ctx context.Context, reg account.Registration) (string, error) {
	var msg string
	err := c.register(ctx, "/accounts/register", reg, &msg)
	return msg, err
}

func (c *Client) RegisterCharity(ctx context.Context, reg account.CharityRegistration) (account.Charity, error) {
	var ch account.Charity
	err := c.register(ctx, "/charities", reg, &ch)
	return ch, err
}

func (c *Client) RegisterBenefactor(ctx context.Context, reg account.BenefactorRegistration) (account.Benefactor, error) {
	var b account.Benefactor
	err := c.register(ctx, "/benefactors", reg, &b)
	return b, err
}
