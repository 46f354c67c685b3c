// internal/common/whatsapp/client_test.go
package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"followup-orchestrator/internal/common/config"
	"followup-orchestrator/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.WhatsAppConfig{
		BaseURL:           srv.URL,
		APIVersion:        "v19.0",
		Token:             "tok",
		PhoneNumberID:     "PN1",
		BusinessAccountID: "WABA1",
		Timeout:           2000,
	})
}

func TestSend_Template(t *testing.T) {
	var got GenericMessage
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/PN1/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	})

	err := c.Send(context.Background(), "919800000000", models.OutboundMessage{
		Text: "Hi Asha", TemplateName: "fu_checkin", Language: "en", Params: []string{"Asha"},
	})
	require.NoError(t, err)
	assert.Equal(t, "template", got.Type)
	require.NotNil(t, got.Template)
	assert.Equal(t, "fu_checkin", got.Template.Name)
	require.Len(t, got.Template.Components, 1)
	assert.Equal(t, "Asha", got.Template.Components[0].Parameters[0].Text)
}

func TestSend_Text(t *testing.T) {
	var got GenericMessage
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{}`))
	})

	require.NoError(t, c.Send(context.Background(), "919800000000", models.OutboundMessage{Text: "hello"}))
	assert.Equal(t, "text", got.Type)
	assert.Equal(t, "hello", got.Text.Body)
}

func TestCreateRemoteTemplate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v19.0/acc-9/message_templates", r.URL.Path)
		var req createTemplateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "BODY", req.Components[0].Type)
		_, _ = w.Write([]byte(`{"id":"1234","status":"APPROVED","category":"MARKETING"}`))
	})

	rt, err := c.CreateRemoteTemplate(context.Background(), models.TemplateSpec{
		AccountID: "acc-9", Name: "fu_x", Language: "en", Body: "Hi {{1}}",
	})
	require.NoError(t, err)
	assert.Equal(t, "1234", rt.ID)
	assert.Equal(t, "approved", rt.Status)
}

func TestDeleteRemoteTemplate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v19.0/WABA1/message_templates", r.URL.Path)
		assert.Equal(t, "old_promo", r.URL.Query().Get("name"))
		assert.Equal(t, "t-1", r.URL.Query().Get("hsm_id"))
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	require.NoError(t, c.DeleteRemoteTemplate(context.Background(), "", models.Template{ID: "t-1", Name: "old_promo"}))
}

func TestDeleteRemoteTemplate_NotFoundIsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	assert.NoError(t, c.DeleteRemoteTemplate(context.Background(), "WABA1", models.Template{Name: "gone"}))
}

func TestDeleteRemoteTemplate_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	assert.Error(t, c.DeleteRemoteTemplate(context.Background(), "WABA1", models.Template{Name: "x"}))
}

func TestRemoteTemplateStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v19.0/t-9", r.URL.Path)
		assert.Equal(t, "status", r.URL.Query().Get("fields"))
		_, _ = w.Write([]byte(`{"id":"t-9","status":"APPROVED"}`))
	})

	status, err := c.RemoteTemplateStatus(context.Background(), models.Template{ID: "t-9", Name: "ai_nudge"})
	require.NoError(t, err)
	assert.Equal(t, "approved", status)
}
