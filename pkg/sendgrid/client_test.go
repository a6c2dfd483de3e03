package sendgrid

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMail() Mail {
	return Mail{
		From:      Address{Email: "info@miamimasterflooring.com", Name: "Miami Master Flooring"},
		To:        []Address{{Email: "info@acme.com"}},
		ReplyTo:   &Address{Email: "info@miamimasterflooring.com"},
		Subject:   "Premium Flooring",
		PlainText: "Hello",
		HTML:      "<p>Hello</p>",
	}
}

func TestSend_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer SG.test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body sendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Personalizations, 1)
		assert.Equal(t, []Address{{Email: "info@acme.com"}}, body.Personalizations[0].To)
		assert.Equal(t, "Miami Master Flooring", body.From.Name)
		require.NotNil(t, body.ReplyTo)
		assert.Equal(t, "info@miamimasterflooring.com", body.ReplyTo.Email)
		assert.Equal(t, "Premium Flooring", body.Subject)
		require.Len(t, body.Content, 2)
		assert.Equal(t, "text/plain", body.Content[0].Type)
		assert.Equal(t, "text/html", body.Content[1].Type)

		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewClient("SG.test", WithBaseURL(srv.URL+"/"))
	status, err := client.Send(context.Background(), testMail())

	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, status)
}

func TestSend_MissingAPIKey(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewClient("", WithBaseURL(srv.URL))
	status, err := client.Send(context.Background(), testMail())

	assert.True(t, errors.Is(err, ErrMissingAPIKey))
	assert.Zero(t, status)
	assert.False(t, called)
}

func TestSend_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"invalid email"}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("SG.test", WithBaseURL(srv.URL))
	status, err := client.Send(context.Background(), testMail())

	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "invalid email")
}

func TestSend_NoRecipients(t *testing.T) {
	m := testMail()
	m.To = nil

	_, err := NewClient("SG.test").Send(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recipients")
}

func TestSend_HTMLOnly(t *testing.T) {
	m := testMail()
	m.PlainText = ""
	m.ReplyTo = nil

	req := buildRequest(m)
	require.Len(t, req.Content, 1)
	assert.Equal(t, "text/html", req.Content[0].Type)

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "reply_to")
}

func TestSend_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("SG.test", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := client.Send(ctx, testMail())
	assert.Error(t, err)
}
