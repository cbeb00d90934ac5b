package permitsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal permit HTTP API client.
type Client struct {
	BaseURL     string
	Role        string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client acting as role. An empty role uses the server's session role.
func New(baseURL, role string) *Client {
	return &Client{
		BaseURL: baseURL,
		Role:    role,
		Timeout: 10 * time.Second,
	}
}

// Header mirrors the permit header.
type Header struct {
	PermitRequester    string `json:"permitRequester"`
	PermitApprover1    string `json:"permitApprover1"`
	PermitApprover2    string `json:"permitApprover2"`
	SafetyManager      string `json:"safetyManager"`
	PermitIssueDate    string `json:"permitIssueDate"`
	ExpectedReturnDate string `json:"expectedReturnDate"`
	CertificateNumber  string `json:"certificateNumber"`
	PermitNumber       string `json:"permitNumber"`
	PermitDocType      string `json:"permitDocType"`
}

// Closure is the closure sub-record of an approved permit.
type Closure struct {
	Status       string `json:"status"`
	Decision     string `json:"decision,omitempty"`
	Comments     string `json:"comments,omitempty"`
	SignatureRef string `json:"signatureRef,omitempty"`
	DecidedBy    string `json:"decidedBy,omitempty"`
	RequestedAt  string `json:"requestedAt,omitempty"`
	DecidedAt    string `json:"decidedAt,omitempty"`
}

// Permit represents the API permit model (partial).
type Permit struct {
	PermitID  string          `json:"permitId"`
	DocType   string          `json:"docType"`
	Status    string          `json:"status"`
	Header    Header          `json:"header"`
	StepData  json.RawMessage `json:"stepData"`
	Closure   *Closure        `json:"closure,omitempty"`
	CreatedAt string          `json:"createdAt"`
	UpdatedAt string          `json:"updatedAt"`
}

type Flags struct {
	Urgent                        bool   `json:"urgent"`
	SafetyManagerApprovalRequired bool   `json:"safetyManagerApprovalRequired"`
	PlannedShutdown               bool   `json:"plannedShutdown"`
	PlannedShutdownDate           string `json:"plannedShutdownDate,omitempty"`
}

type Comment struct {
	Text    string `json:"text"`
	Checked bool   `json:"checked"`
}

type CommentThread struct {
	Flags          Flags     `json:"flags"`
	CustomComments []Comment `json:"customComments"`
}

// Thread is one comment channel with its stored version.
type Thread struct {
	Source  string        `json:"source"`
	Target  string        `json:"target"`
	Thread  CommentThread `json:"thread"`
	Version int64         `json:"version"`
}

// ClosureChecklist holds the seven completion items.
type ClosureChecklist struct {
	WorkCompleted       bool `json:"workCompleted"`
	AreaCleaned         bool `json:"areaCleaned"`
	ToolsRemoved        bool `json:"toolsRemoved"`
	IsolationsRemoved   bool `json:"isolationsRemoved"`
	GuardsRestored      bool `json:"guardsRestored"`
	PersonnelWithdrawn  bool `json:"personnelWithdrawn"`
	EquipmentHandedOver bool `json:"equipmentHandedOver"`
}

// ClosureDecision is the body of a closure decision.
type ClosureDecision struct {
	Checklist      ClosureChecklist `json:"checklist"`
	Decision       string           `json:"decision"`
	Comments       string           `json:"comments,omitempty"`
	SignatureImage string           `json:"signatureImage,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreatePermit creates a draft permit of docType.
func (c *Client) CreatePermit(ctx context.Context, docType string) (Permit, error) {
	var resp Permit
	err := c.do(ctx, http.MethodPost, "permits", map[string]any{"docType": docType}, &resp)
	return resp, err
}

// GetPermit fetches a permit by id.
func (c *Client) GetPermit(ctx context.Context, id string) (Permit, error) {
	var resp Permit
	err := c.do(ctx, http.MethodGet, c.permitPath(id, ""), nil, &resp)
	return resp, err
}

// ListPermits lists permits, newest first. An empty docType lists every type.
func (c *Client) ListPermits(ctx context.Context, docType string) ([]Permit, error) {
	endpoint := "permits"
	if docType != "" {
		endpoint += "?docType=" + url.QueryEscape(docType)
	}
	var resp []Permit
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UpdateHeader patches header fields; only keys present in fields change.
func (c *Client) UpdateHeader(ctx context.Context, id string, fields map[string]string) (Permit, error) {
	var resp Permit
	err := c.do(ctx, http.MethodPatch, c.permitPath(id, "header"), fields, &resp)
	return resp, err
}

// SetAnswer records a checklist answer.
func (c *Client) SetAnswer(ctx context.Context, id, section, rowID, answer string) (Permit, error) {
	body := map[string]any{
		"section": section,
		"rowId":   rowID,
		"answer":  answer,
	}
	var resp Permit
	err := c.do(ctx, http.MethodPut, c.permitPath(id, "answers"), body, &resp)
	return resp, err
}

// Act applies a lifecycle action such as submit or approve.
func (c *Client) Act(ctx context.Context, id, action string) (Permit, error) {
	var resp Permit
	err := c.do(ctx, http.MethodPost, c.permitPath(id, "actions"), map[string]any{"action": action}, &resp)
	return resp, err
}

// AvailableActions lists what the client's role may do next.
func (c *Client) AvailableActions(ctx context.Context, id string) ([]string, error) {
	var resp struct {
		Actions []string `json:"actions"`
	}
	err := c.do(ctx, http.MethodGet, c.permitPath(id, "actions"), nil, &resp)
	return resp.Actions, err
}

// RequestClosure opens closure review on an approved permit.
func (c *Client) RequestClosure(ctx context.Context, id string) (Permit, error) {
	var resp Permit
	err := c.do(ctx, http.MethodPost, c.permitPath(id, "closure/request"), nil, &resp)
	return resp, err
}

// DecideClosure submits a closure decision.
func (c *Client) DecideClosure(ctx context.Context, id string, decision ClosureDecision) (Permit, error) {
	var resp Permit
	err := c.do(ctx, http.MethodPost, c.permitPath(id, "closure/decision"), decision, &resp)
	return resp, err
}

// Thread reads one comment channel.
func (c *Client) Thread(ctx context.Context, id, source, target string) (Thread, error) {
	var resp Thread
	err := c.do(ctx, http.MethodGet, c.threadPath(id, source, target, ""), nil, &resp)
	return resp, err
}

// AddComment appends to the client role's channel towards target.
func (c *Client) AddComment(ctx context.Context, id, target, text string) (Thread, error) {
	var resp Thread
	err := c.do(ctx, http.MethodPost, c.threadPath(id, c.Role, target, "comments"), map[string]any{"text": text}, &resp)
	return resp, err
}

// ToggleComment checks or unchecks comment index on the source→target channel.
func (c *Client) ToggleComment(ctx context.Context, id, source, target string, index int, checked bool) (Thread, error) {
	var resp Thread
	endpoint := c.threadPath(id, source, target, fmt.Sprintf("comments/%d", index))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"checked": checked}, &resp)
	return resp, err
}

// DeleteComment removes comment index from the client role's channel towards target.
func (c *Client) DeleteComment(ctx context.Context, id, target string, index int) (Thread, error) {
	var resp Thread
	endpoint := c.threadPath(id, c.Role, target, fmt.Sprintf("comments/%d", index))
	err := c.do(ctx, http.MethodDelete, endpoint, nil, &resp)
	return resp, err
}

// WriteThread replaces the client role's thread towards target. A non-zero
// version fails with 409 when the stored thread has moved on.
func (c *Client) WriteThread(ctx context.Context, id, target string, th CommentThread, version int64) (Thread, error) {
	if th.CustomComments == nil {
		th.CustomComments = []Comment{}
	}
	body := map[string]any{"thread": th, "version": version}
	var resp Thread
	err := c.do(ctx, http.MethodPut, c.threadPath(id, c.Role, target, ""), body, &resp)
	return resp, err
}

// SwitchForm resumes or creates a draft of docType.
func (c *Client) SwitchForm(ctx context.Context, docType string) (Permit, bool, error) {
	var resp struct {
		Permit  Permit `json:"permit"`
		Created bool   `json:"created"`
	}
	err := c.do(ctx, http.MethodPost, "forms/switch", map[string]any{"docType": docType}, &resp)
	return resp.Permit, resp.Created, err
}

// SetSessionRole changes the server's stored session role.
func (c *Client) SetSessionRole(ctx context.Context, role string) error {
	return c.do(ctx, http.MethodPut, "session/role", map[string]any{"role": role}, nil)
}

// Preview returns the printable document as html or pdf.
func (c *Client) Preview(ctx context.Context, id, format string) ([]byte, error) {
	return c.raw(ctx, c.permitPath(id, "preview")+"?format="+url.QueryEscape(format))
}

// Register downloads the permit register spreadsheet.
func (c *Client) Register(ctx context.Context) ([]byte, error) {
	return c.raw(ctx, "register.xlsx")
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.Role != "":
		req.Header.Set("X-Role", c.Role)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) raw(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp)
	}
	return io.ReadAll(resp.Body)
}

func decodeAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

func (c *Client) permitPath(id, p string) string {
	endpoint := "permits/" + url.PathEscape(id)
	if p != "" {
		endpoint += "/" + strings.TrimLeft(p, "/")
	}
	return endpoint
}

func (c *Client) threadPath(id, source, target, p string) string {
	endpoint := c.permitPath(id, fmt.Sprintf("threads/%s/%s", url.PathEscape(source), url.PathEscape(target)))
	if p != "" {
		endpoint += "/" + p
	}
	return endpoint
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
