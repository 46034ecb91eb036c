package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"mailomat/internal/platform/config"
	"mailomat/internal/subscription/models"
)

// emailServer stands in for the Postmark API.
type emailServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []map[string]string
	status   int
	delay    time.Duration
}

func newEmailServer(t *testing.T) *emailServer {
	es := &emailServer{status: http.StatusOK}
	es.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if r.Method == http.MethodPost && r.URL.Path == "/email" {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		es.mu.Lock()
		es.requests = append(es.requests, body)
		status, delay := es.status, es.delay
		es.mu.Unlock()
		time.Sleep(delay)
		w.WriteHeader(status)
	}))
	t.Cleanup(es.Close)
	return es
}

func (es *emailServer) received() []map[string]string {
	es.mu.Lock()
	defer es.mu.Unlock()
	return append([]map[string]string(nil), es.requests...)
}

func (es *emailServer) setDelay(d time.Duration) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.delay = d
}

func (es *emailServer) setStatus(status int) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.status = status
}

type AppSuite struct {
	suite.Suite
	app    *App
	email  *emailServer
	client *http.Client
	cancel context.CancelFunc
	done   chan error
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppSuite))
}

func (s *AppSuite) SetupTest() {
	s.email = newEmailServer(s.T())

	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.BaseURL = "http://127.0.0.1"
	cfg.Email.BaseURL = s.email.URL
	cfg.Email.Timeout = 2 * time.Second
	cfg.Operator = config.Operator{Username: "publisher", Password: "s3cret"}
	s.Require().NoError(cfg.Validate())

	app, err := Build(context.Background(), cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	s.Require().NoError(err)
	s.app = app
	s.client = &http.Client{Timeout: 5 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() { s.done <- app.Serve(ctx) }()
}

func (s *AppSuite) TearDownTest() {
	s.cancel()
	select {
	case err := <-s.done:
		s.NoError(err)
	case <-time.After(10 * time.Second):
		s.Fail("server did not shut down")
	}
}

func (s *AppSuite) url(path string) string {
	return "http://" + s.app.Addr() + path
}

func (s *AppSuite) postJSON(path, body string, header http.Header) *http.Response {
	req, err := http.NewRequest(http.MethodPost, s.url(path), strings.NewReader(body))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *AppSuite) subscribe(name, email string) *http.Response {
	body, err := json.Marshal(map[string]string{"name": name, "email": email})
	s.Require().NoError(err)
	return s.postJSON("/api/subscribe", string(body), nil)
}

var linkPattern = regexp.MustCompile(`https?://[^\s"<>]+`)

// confirmationLink pulls the single link out of an email body and points it at the test server.
func (s *AppSuite) confirmationLink(body string) *url.URL {
	links := linkPattern.FindAllString(body, -1)
	s.Require().Len(links, 1)
	u, err := url.Parse(links[0])
	s.Require().NoError(err)
	s.Equal("127.0.0.1", u.Hostname())
	u.Host = s.app.Addr()
	return u
}

func (s *AppSuite) TestHealthCheck() {
	resp, err := s.client.Get(s.url("/health-check"))
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
	s.NotEmpty(resp.Header.Get("X-Request-ID"))
}

func (s *AppSuite) TestSubscribe_ValidJSONPersistsPendingSubscriber() {
	resp := s.subscribe("John Doe", "john.doe@example.com")
	s.Equal(http.StatusOK, resp.StatusCode)

	s.Len(s.email.received(), 1)
	rec, err := s.app.Subscriptions().FindByEmail(context.Background(), "john.doe@example.com")
	s.Require().NoError(err)
	s.Equal("John Doe", rec.Name)
	s.Equal(models.StatusPendingConfirmation, rec.Status)
}

func (s *AppSuite) TestSubscribe_MissingFieldsAre422() {
	for _, body := range []string{`{"name":"John Doe"}`, `{"name":null,"email":"jd@example.com"}`, `{}`} {
		resp := s.postJSON("/subscriptions", body, nil)
		s.Equal(http.StatusUnprocessableEntity, resp.StatusCode, body)
	}
	s.Empty(s.email.received())
}

func (s *AppSuite) TestSubscribe_InvalidFieldsAre400() {
	cases := map[string][2]string{
		"empty name":    {"", "jd@example.com"},
		"empty email":   {"John Doe", ""},
		"invalid email": {"John Doe", "not an email"},
	}
	for desc, c := range cases {
		resp := s.subscribe(c[0], c[1])
		s.Equal(http.StatusBadRequest, resp.StatusCode, desc)
	}
}

func (s *AppSuite) TestSubscribe_DuplicateStillReturns200() {
	for i := range 2 {
		resp := s.subscribe("Ursula", "le_guin@gmail.com")
		s.Equal(http.StatusOK, resp.StatusCode, "iteration %d", i)
	}
	s.Len(s.email.received(), 1, "cooldown suppresses the second email")
}

func (s *AppSuite) TestSubscribe_EmailFailureIs500ButRecordPersists() {
	s.email.setStatus(http.StatusInternalServerError)

	resp := s.subscribe("Ursula", "le_guin@gmail.com")
	s.Equal(http.StatusInternalServerError, resp.StatusCode)

	rec, err := s.app.Subscriptions().FindByEmail(context.Background(), "le_guin@gmail.com")
	s.Require().NoError(err)
	s.Equal(models.StatusPendingConfirmation, rec.Status)

	s.email.setStatus(http.StatusOK)
	resp = s.subscribe("Ursula", "le_guin@gmail.com")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Len(s.email.received(), 2)
}

func (s *AppSuite) TestConfirmationLinkConfirms() {
	s.Require().Equal(http.StatusOK, s.subscribe("Ursula", "le_guin@gmail.com").StatusCode)
	sent := s.email.received()
	s.Require().Len(sent, 1)

	html := s.confirmationLink(sent[0]["HtmlBody"])
	text := s.confirmationLink(sent[0]["TextBody"])
	s.Equal(html.String(), text.String())
	s.Equal("/subscriptions/confirm", html.Path)

	for range 2 {
		resp, err := s.client.Get(html.String())
		s.Require().NoError(err)
		resp.Body.Close()
		s.Equal(http.StatusOK, resp.StatusCode)
	}

	rec, err := s.app.Subscriptions().FindByEmail(context.Background(), "le_guin@gmail.com")
	s.Require().NoError(err)
	s.Equal(models.StatusConfirmed, rec.Status)
}

func (s *AppSuite) TestConfirm_UnknownAndMissingToken() {
	resp, err := s.client.Get(s.url("/subscriptions/confirm?token=does-not-exist"))
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, err = s.client.Get(s.url("/subscriptions/confirm"))
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func basicAuth(user, pass string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+pass)))
	return h
}

const newsletterBody = `{"title":"Issue #1","content":{"html":"<p>Hi</p>","text":"Hi"}}`

func (s *AppSuite) TestNewsletter_RequiresAuth() {
	s.Require().Equal(http.StatusOK, s.subscribe("Ursula", "le_guin@gmail.com").StatusCode)
	before := len(s.email.received())

	for _, h := range []http.Header{nil, basicAuth("publisher", "wrong"), basicAuth("intruder", "s3cret")} {
		resp := s.postJSON("/newsletters", newsletterBody, h)
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
		s.Equal(`Basic realm="publish"`, resp.Header.Get("WWW-Authenticate"))
	}
	s.Len(s.email.received(), before)
}

func (s *AppSuite) TestNewsletter_OnlyConfirmedSubscribersReceiveIt() {
	s.Require().Equal(http.StatusOK, s.subscribe("Ursula", "le_guin@gmail.com").StatusCode)
	s.Require().Equal(http.StatusOK, s.subscribe("Octavia", "butler@example.com").StatusCode)

	first := s.email.received()[0]
	link := s.confirmationLink(first["TextBody"])
	resp, err := s.client.Get(link.String())
	s.Require().NoError(err)
	resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	header := basicAuth("publisher", "s3cret")
	header.Set("Idempotency-Key", "issue-1")
	for range 2 {
		resp := s.postJSON("/newsletters", newsletterBody, header)
		s.Require().Equal(http.StatusOK, resp.StatusCode)
	}

	var newsletters []map[string]string
	for _, r := range s.email.received() {
		if r["Subject"] == "Issue #1" {
			newsletters = append(newsletters, r)
		}
	}
	s.Require().Len(newsletters, 1, "replayed key must not resend")
	s.Equal(first["To"], newsletters[0]["To"])
}

func (s *AppSuite) TestNewsletter_InvalidBodyIs400() {
	resp := s.postJSON("/newsletters", `{"title":"","content":{"html":"x","text":"x"}}`, basicAuth("publisher", "s3cret"))
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *AppSuite) TestMetricsExposed() {
	s.subscribe("Ursula", "le_guin@gmail.com")

	resp, err := s.client.Get(s.url("/metrics"))
	s.Require().NoError(err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	s.Contains(string(raw), "mailomat_subscriptions_created_total 1")
	s.Contains(string(raw), `mailomat_emails_sent_total{outcome="success",provider="postmark"} 1`)
	s.Contains(string(raw), `route="/api/subscribe"`)
}

func TestBuild_RejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Email.Provider = "carrier-pigeon"
	cfg.Operator = config.Operator{Username: "u", Password: "p"}

	_, err := Build(context.Background(), cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestBuild_ListensOnEphemeralPort(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Operator = config.Operator{Username: "u", Password: "p"}

	app, err := Build(context.Background(), cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer app.Close()

	assert.NotEqual(t, "127.0.0.1:0", app.Addr())
	rr := httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health-check", &bytes.Buffer{}))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestNewsletter_DispatchOutlivesRequestTimeout(t *testing.T) {
	es := newEmailServer(t)
	es.setDelay(150 * time.Millisecond)

	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.BaseURL = "http://127.0.0.1"
	cfg.Server.RequestTimeout = 400 * time.Millisecond
	cfg.Email.BaseURL = es.URL
	cfg.Dispatch.Concurrency = 1
	cfg.Operator = config.Operator{Username: "publisher", Password: "s3cret"}
	require.NoError(t, cfg.Validate())

	app, err := Build(context.Background(), cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	client := &http.Client{Timeout: 10 * time.Second}
	base := "http://" + app.Addr()
	const subscribers = 6
	for i := range subscribers {
		body := fmt.Sprintf(`{"name":"Reader %d","email":"reader%d@example.com"}`, i, i)
		resp, err := client.Post(base+"/subscriptions", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	for _, sent := range es.received() {
		links := linkPattern.FindAllString(sent["TextBody"], -1)
		require.Len(t, links, 1)
		link, err := url.Parse(links[0])
		require.NoError(t, err)
		link.Host = app.Addr()
		resp, err := client.Get(link.String())
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodPost, base+"/newsletters", strings.NewReader(newsletterBody))
	require.NoError(t, err)
	req.Header = basicAuth("publisher", "s3cret")
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var report struct {
		Attempted int `json:"attempted"`
		Delivered int `json:"delivered"`
		Skipped   int `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, subscribers, report.Attempted)
	assert.Equal(t, subscribers, report.Delivered)
	assert.Zero(t, report.Skipped)

	var delivered int
	for _, r := range es.received() {
		if r["Subject"] == "Issue #1" {
			delivered++
		}
	}
	assert.Equal(t, subscribers, delivered)
}
