package sinks

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

// contactProperties are the CRM contact properties this service reads back.
// hs_analytics_source_data_2 carries the form GUID the contact originated
// from, used by the webhook path to filter foreign contacts.
var contactProperties = []string{
	"email", "firstname", "lastname", "phone", "company", "jobtitle",
	"visitor_id", "hs_analytics_source_data_2",
}

// CRMOptions configures a CRMClient. Zero values pick production defaults.
type CRMOptions struct {
	BaseURL      string // CRM objects API
	FormsBaseURL string // forms submission API
	Token        string
	HTTPClient   *http.Client
	UserAgent    string
}

// CRMClient talks to the CRM's contacts and forms APIs.
type CRMClient struct {
	baseURL      string
	formsBaseURL string
	token        string
	httpClient   *http.Client
	userAgent    string
}

// NewCRMClient builds a client with bounded-timeout HTTP defaults.
func NewCRMClient(opts CRMOptions) *CRMClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.hubapi.com"
	}
	formsBaseURL := strings.TrimRight(strings.TrimSpace(opts.FormsBaseURL), "/")
	if formsBaseURL == "" {
		formsBaseURL = "https://api.hsforms.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}
	return &CRMClient{
		baseURL:      baseURL,
		formsBaseURL: formsBaseURL,
		token:        strings.TrimSpace(opts.Token),
		httpClient:   httpClient,
		userAgent:    strings.TrimSpace(opts.UserAgent),
	}
}

// SubmitForm posts one projected form submission to the CRM forms API.
func (c *CRMClient) SubmitForm(ctx context.Context, portalID, formID string, sub FormSubmission) error {
	payload := map[string]any{
		"fields":  sub.Fields,
		"context": sub.Context,
	}
	if sub.Consent {
		payload["legalConsentOptions"] = map[string]any{
			"consent": map[string]any{
				"consentToProcess": true,
				"text":             "El usuario acepta ser contactado.",
			},
		}
	}

	path := fmt.Sprintf("%s/submissions/v3/integration/submit/%s/%s", c.formsBaseURL, portalID, formID)
	return c.do(ctx, http.MethodPost, path, payload, nil)
}

// FindOrCreateContactByEmail upserts a contact keyed by email and returns
// the CRM's id and reconciled properties.
func (c *CRMClient) FindOrCreateContactByEmail(ctx context.Context, email string, props map[string]string) (Contact, error) {
	properties := map[string]string{"email": email}
	for k, v := range props {
		if v != "" {
			properties[k] = v
		}
	}

	var out Contact
	err := c.do(ctx, http.MethodPost,
		c.baseURL+"/crm/v3/objects/contacts?idProperty=email",
		map[string]any{"properties": properties}, &out)
	return out, err
}

// ContactByID fetches the full contact the webhook references.
func (c *CRMClient) ContactByID(ctx context.Context, id string) (Contact, error) {
	var out Contact
	err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("%s/crm/v3/objects/contacts/%s?properties=%s",
			c.baseURL, url.PathEscape(id), strings.Join(contactProperties, ",")),
		nil, &out)
	return out, err
}

func (c *CRMClient) do(ctx context.Context, method, rawURL string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &SinkError{Sink: "crm", Status: resp.StatusCode, Body: truncate(respBody)}
	}
	if out != nil {
		return json.Unmarshal(respBody, out)
	}
	return nil
}
