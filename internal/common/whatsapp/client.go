// internal/common/whatsapp/client.go
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"followup-orchestrator/internal/common/config"
	httpclient "followup-orchestrator/internal/common/http"
	"followup-orchestrator/internal/models"
)

// Client talks to the WhatsApp Cloud API. It is both the primary message
// transport and the remote template registry.
type Client struct {
	baseURL           string
	token             string
	phoneNumberID     string
	businessAccountID string
	http              *httpclient.Client
}

func NewClient(cfg config.WhatsAppConfig) *Client {
	return &Client{
		baseURL:           strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.APIVersion,
		token:             cfg.Token,
		phoneNumberID:     cfg.PhoneNumberID,
		businessAccountID: cfg.BusinessAccountID,
		http:              httpclient.NewClient(config.GetDuration(cfg.Timeout)),
	}
}

// --- Message Structures ---

type GenericMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *TextObj     `json:"text,omitempty"`
	Template         *TemplateObj `json:"template,omitempty"`
}

type TextObj struct {
	Body string `json:"body"`
}

type TemplateObj struct {
	Name       string         `json:"name"`
	Language   LanguageObj    `json:"language"`
	Components []ComponentObj `json:"components,omitempty"`
}

type LanguageObj struct {
	Code string `json:"code"`
}

type ComponentObj struct {
	Type       string         `json:"type"`
	Parameters []ParameterObj `json:"parameters,omitempty"`
}

type ParameterObj struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type createTemplateRequest struct {
	Name       string                  `json:"name"`
	Language   string                  `json:"language"`
	Category   string                  `json:"category"`
	Components []createTemplateSection `json:"components"`
}

type createTemplateSection struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type createTemplateResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Category string `json:"category"`
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.token}
}

func (c *Client) Name() string { return "whatsapp" }

// Send delivers msg to recipient, as a template message when a template name is set.
func (c *Client) Send(ctx context.Context, recipient string, msg models.OutboundMessage) error {
	if recipient == "" {
		return errors.New("recipient phone is empty")
	}

	wire := GenericMessage{MessagingProduct: "whatsapp", To: recipient}
	if msg.TemplateName != "" {
		tmpl := &TemplateObj{
			Name:     msg.TemplateName,
			Language: LanguageObj{Code: msg.Language},
		}
		if len(msg.Params) > 0 {
			params := make([]ParameterObj, 0, len(msg.Params))
			for _, p := range msg.Params {
				params = append(params, ParameterObj{Type: "text", Text: p})
			}
			tmpl.Components = []ComponentObj{{Type: "body", Parameters: params}}
		}
		wire.Type = "template"
		wire.Template = tmpl
	} else {
		if msg.Text == "" {
			return errors.New("message body is empty")
		}
		wire.Type = "text"
		wire.Text = &TextObj{Body: msg.Text}
	}

	endpoint := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	if err := c.http.DoJSON(ctx, http.MethodPost, endpoint, c.headers(), wire, nil); err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	return nil
}

// CreateRemoteTemplate submits spec for approval under the business account.
func (c *Client) CreateRemoteTemplate(ctx context.Context, spec models.TemplateSpec) (*models.RemoteTemplate, error) {
	req := createTemplateRequest{
		Name:       spec.Name,
		Language:   spec.Language,
		Category:   "MARKETING",
		Components: []createTemplateSection{{Type: "BODY", Text: spec.Body}},
	}

	var resp createTemplateResponse
	endpoint := fmt.Sprintf("%s/%s/message_templates", c.baseURL, c.wabaID(spec.AccountID))
	if err := c.http.DoJSON(ctx, http.MethodPost, endpoint, c.headers(), req, &resp); err != nil {
		return nil, fmt.Errorf("whatsapp create template %s: %w", spec.Name, err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("whatsapp create template %s: empty id in response", spec.Name)
	}
	return &models.RemoteTemplate{ID: resp.ID, Status: strings.ToLower(resp.Status)}, nil
}

// DeleteRemoteTemplate removes a template by name, pinned to its id.
func (c *Client) DeleteRemoteTemplate(ctx context.Context, accountID string, tmpl models.Template) error {
	q := url.Values{}
	q.Set("name", tmpl.Name)
	if tmpl.ID != "" {
		q.Set("hsm_id", tmpl.ID)
	}
	endpoint := fmt.Sprintf("%s/%s/message_templates?%s", c.baseURL, c.wabaID(accountID), q.Encode())
	if err := c.http.DoJSON(ctx, http.MethodDelete, endpoint, c.headers(), nil, nil); err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("whatsapp delete template %s: %w", tmpl.Name, err)
	}
	return nil
}

// RemoteTemplateStatus reads the review status of a submitted template.
func (c *Client) RemoteTemplateStatus(ctx context.Context, tmpl models.Template) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	endpoint := fmt.Sprintf("%s/%s?fields=status", c.baseURL, url.PathEscape(tmpl.ID))
	if err := c.http.DoJSON(ctx, http.MethodGet, endpoint, c.headers(), nil, &resp); err != nil {
		return "", fmt.Errorf("whatsapp template status %s: %w", tmpl.Name, err)
	}
	return strings.ToLower(resp.Status), nil
}

// Ping checks credentials by reading the phone number node.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, c.phoneNumberID)
	return c.http.DoJSON(ctx, http.MethodGet, endpoint, c.headers(), nil, nil)
}

// Account ids in the store are WABA ids; fall back to the configured one.
func (c *Client) wabaID(accountID string) string {
	if accountID != "" {
		return accountID
	}
	return c.businessAccountID
}
