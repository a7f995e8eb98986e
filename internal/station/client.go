// Package station is the typed client for the vendor upper-computer
// HTTP JSON service that fronts the synthesis workstation.
//
// Every response arrives in a {code, msg, data} envelope. Non-success
// codes surface as *APIError except where a method documents a softer
// contract (resource checks, shortages, duplicate task names).
package station

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/orchidlab/synthctl/internal/amount"
	"github.com/orchidlab/synthctl/internal/chem"
	"github.com/orchidlab/synthctl/internal/taskgraph"
)

// Config carries the client's environment knobs. Zero values get safe
// defaults.
type Config struct {
	BaseURL       string
	Timeout       time.Duration // default 30s
	SkipTLSVerify bool
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL    string
	httpClient *http.Client

	tokenKind string
	token     string
}

var _ API = (*Client)(nil)

// NewClient builds a client for the given upper computer.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("station base URL not configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport
	if cfg.SkipTLSVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}, nil
}

// envelope is the vendor response wrapper.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// doRequest executes one authenticated request and returns the parsed
// envelope. HTTP 401 maps to ErrUnauthorized so the coordinator can
// re-auth; other transport-level failures surface with the endpoint.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*envelope, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", path, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		kind := c.tokenKind
		if kind == "" {
			kind = "Bearer"
		}
		req.Header.Set("Authorization", kind+" "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("station %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("station %s: read response: %w", path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("station %s: %w", path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &envelope{Code: resp.StatusCode, Msg: strings.TrimSpace(string(respBody))},
			&APIError{Endpoint: path, Code: resp.StatusCode, Msg: strings.TrimSpace(string(respBody))}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("station %s: parse response: %w", path, err)
	}
	return &env, nil
}

// call runs a request and decodes data, mapping any non-success code
// to *APIError.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	env, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if env.Code != codeOK {
		return &APIError{Endpoint: path, Code: env.Code, Msg: env.Msg}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("station %s: parse data: %w", path, err)
		}
	}
	return nil
}

// Login exchanges credentials for a token and caches it.
func (c *Client) Login(ctx context.Context, user, pass string) error {
	var data struct {
		TokenKind   string `json:"token_kind"`
		AccessToken string `json:"access_token"`
	}
	err := c.call(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"username": user,
		"password": pass,
	}, &data)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if data.AccessToken == "" {
		return fmt.Errorf("login: empty access token")
	}
	c.tokenKind, c.token = data.TokenKind, data.AccessToken
	return nil
}

// ClearToken drops the cached session token.
func (c *Client) ClearToken() { c.tokenKind, c.token = "", "" }

// Authenticated reports whether a token is cached.
func (c *Client) Authenticated() bool { return c.token != "" }

// StationState polls the station's overall status.
func (c *Client) StationState(ctx context.Context) (State, error) {
	var data struct {
		Status int `json:"status"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/station/state", nil, &data); err != nil {
		return StateUnknown, err
	}
	return State(data.Status), nil
}

// ResourceInfo enumerates the station inventory. The filter is usually
// empty.
func (c *Client) ResourceInfo(ctx context.Context, filter string) ([]InventoryRow, error) {
	var data struct {
		Items []InventoryRow `json:"items"`
	}
	body := map[string]string{"filter": filter}
	if err := c.call(ctx, http.MethodPost, "/api/resource/info", body, &data); err != nil {
		return nil, err
	}
	return data.Items, nil
}

// BatchInTray submits material load-in requests.
func (c *Client) BatchInTray(ctx context.Context, reqs []TrayLoad) error {
	return c.call(ctx, http.MethodPost, "/api/resource/batch_in", map[string]any{"items": reqs}, nil)
}

// BatchOutTray submits a discharge plan.
func (c *Client) BatchOutTray(ctx context.Context, items []TrayDischarge, mode string) error {
	return c.call(ctx, http.MethodPost, "/api/resource/batch_out", map[string]any{
		"items": items,
		"mode":  mode,
	}, nil)
}

// GloveboxEnv reads the glovebox atmosphere.
func (c *Client) GloveboxEnv(ctx context.Context) (*GloveboxEnv, error) {
	var data GloveboxEnv
	if err := c.call(ctx, http.MethodGet, "/api/environment/glovebox", nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// remoteChemical is the registry wire record.
type remoteChemical struct {
	ID    int64  `json:"chemical_id"`
	Name  string `json:"chemical_name"`
	CAS   string `json:"cas"`
	State string `json:"physical_state"`
}

// ChemicalList pages through the station chemical registry.
func (c *Client) ChemicalList(ctx context.Context, query string, offset, limit int) ([]chem.RemoteChemical, int, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("offset", fmt.Sprintf("%d", offset))
	q.Set("limit", fmt.Sprintf("%d", limit))
	var data struct {
		Items []remoteChemical `json:"items"`
		Total int              `json:"total"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/chemical/list?"+q.Encode(), nil, &data); err != nil {
		return nil, 0, err
	}
	out := make([]chem.RemoteChemical, len(data.Items))
	for i, rc := range data.Items {
		out[i] = chem.RemoteChemical{
			ID:    rc.ID,
			Name:  rc.Name,
			CAS:   rc.CAS,
			State: amount.State(rc.State),
		}
	}
	return out, data.Total, nil
}

func chemicalBody(cc *chem.Chemical) map[string]any {
	return map[string]any{
		"chemical_name":    cc.Name,
		"cas":              cc.CAS,
		"physical_state":   string(cc.State),
		"physical_form":    string(cc.Form),
		"molecular_weight": cc.MolecularWeight,
		"density":          cc.Density,
		"active_content":   cc.ActiveContent,
	}
}

// AddChemical creates a registry entry and returns its station id.
func (c *Client) AddChemical(ctx context.Context, cc *chem.Chemical) (int64, error) {
	var data struct {
		ID int64 `json:"chemical_id"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/chemical/add", chemicalBody(cc), &data); err != nil {
		return 0, err
	}
	return data.ID, nil
}

// UpdateChemical overwrites a registry entry.
func (c *Client) UpdateChemical(ctx context.Context, id int64, cc *chem.Chemical) error {
	body := chemicalBody(cc)
	body["chemical_id"] = id
	return c.call(ctx, http.MethodPost, "/api/chemical/update", body, nil)
}

// DeleteChemical removes a registry entry.
func (c *Client) DeleteChemical(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodPost, "/api/chemical/delete", map[string]int64{"chemical_id": id}, nil)
}

// AddTask posts a built payload. A 409 means the task name is taken and
// comes back as *DuplicateTaskError.
func (c *Client) AddTask(ctx context.Context, payload *taskgraph.Payload) (int64, error) {
	var data struct {
		TaskID int64 `json:"task_id"`
	}
	err := c.call(ctx, http.MethodPost, "/api/task/add", payload, &data)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
			return 0, &DuplicateTaskError{TaskName: payload.TaskName}
		}
		return 0, err
	}
	return data.TaskID, nil
}

// StartTask starts a submitted task. Code 1200 comes back as
// *NotReadyError.
func (c *Client) StartTask(ctx context.Context, taskID int64) error {
	err := c.call(ctx, http.MethodPost, "/api/task/start", map[string]int64{"task_id": taskID}, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == CodeResourceShortage {
			return &NotReadyError{TaskID: taskID, Msg: apiErr.Msg}
		}
		return err
	}
	return nil
}

// TaskInfo fetches a task's current record.
func (c *Client) TaskInfo(ctx context.Context, taskID int64) (*TaskInfo, error) {
	var data TaskInfo
	path := fmt.Sprintf("/api/task/info?task_id=%d", taskID)
	if err := c.call(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// TaskOpInfo fetches a task's step trace.
func (c *Client) TaskOpInfo(ctx context.Context, taskID int64) (*TaskOpInfo, error) {
	var data TaskOpInfo
	path := fmt.Sprintf("/api/task/op_info?task_id=%d", taskID)
	if err := c.call(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// TaskList pages the station task list.
func (c *Client) TaskList(ctx context.Context, opts TaskListOptions) ([]TaskInfo, int, error) {
	q := url.Values{}
	if opts.Sort != "" {
		q.Set("sort", opts.Sort)
	}
	q.Set("offset", fmt.Sprintf("%d", opts.Offset))
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	q.Set("limit", fmt.Sprintf("%d", limit))
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	var data struct {
		Items []TaskInfo `json:"items"`
		Total int        `json:"total"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/task/list?"+q.Encode(), nil, &data); err != nil {
		return nil, 0, err
	}
	return data.Items, data.Total, nil
}

// CheckTaskResource runs the station-side readiness check. Server
// codes, 1200 included, come back in the result rather than as errors;
// only transport failures error.
func (c *Client) CheckTaskResource(ctx context.Context, taskID int64) (*ResourceCheck, error) {
	path := fmt.Sprintf("/api/task/check_resource?task_id=%d", taskID)
	env, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return &ResourceCheck{Code: apiErr.Code, Msg: apiErr.Msg}, nil
		}
		return nil, err
	}
	check := &ResourceCheck{Code: env.Code, Msg: env.Msg}
	if len(env.Data) > 0 {
		var data struct {
			PromptMsg string `json:"prompt_msg"`
		}
		if err := json.Unmarshal(env.Data, &data); err == nil {
			check.PromptMsg = data.PromptMsg
		}
	}
	return check, nil
}

// DeviceInit commands the station to initialize its subsystems.
func (c *Client) DeviceInit(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/api/device/init", nil, nil)
}

// ShelfHome homes the shelf controlling the given W-zone position.
func (c *Client) ShelfHome(ctx context.Context, position string) error {
	return c.call(ctx, http.MethodPost, "/api/device/shelf_home", map[string]string{"position": position}, nil)
}
