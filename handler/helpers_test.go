package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Kapo179/docuseal3/config"
	"github.com/Kapo179/docuseal3/middleware"
	"github.com/Kapo179/docuseal3/model"
	"github.com/Kapo179/docuseal3/service"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testStripeSecret   = "whsec_handler_test"
	testBoldSignSecret = "boldsign_handler_test"
	testTabID          = "tab-1"
	testProviderOrigin = "https://docuseal.com"
)

// stubProvider stands in for the payment processor.
type stubProvider struct {
	mu          sync.Mutex
	createCalls int
	createErr   error
	captureErr  error
	status      string
	nextAction  json.RawMessage
	sessions    map[string]*model.CheckoutSession
}

func newStubProvider() *stubProvider {
	return &stubProvider{status: model.IntentRequiresPaymentMethod, sessions: map[string]*model.CheckoutSession{}}
}

func (p *stubProvider) CreateIntent(ctx context.Context, req service.IntentRequest) (*model.PaymentIntentDetail, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	if p.createErr != nil {
		return nil, p.createErr
	}
	id := fmt.Sprintf("pi_%d", p.createCalls)
	return &model.PaymentIntentDetail{
		PaymentIntent: model.PaymentIntent{ID: id, Status: model.IntentRequiresPaymentMethod, Amount: req.Amount, Currency: req.Currency},
		ClientSecret:  id + "_secret",
	}, nil
}

func (p *stubProvider) GetIntent(ctx context.Context, id string) (*model.PaymentIntentDetail, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &model.PaymentIntentDetail{
		PaymentIntent: model.PaymentIntent{ID: id, Status: p.status},
		ClientSecret:  id + "_secret",
		NextAction:    p.nextAction,
	}, nil
}

func (p *stubProvider) ConfirmIntent(ctx context.Context, id, paymentMethodID string) (*model.PaymentIntentDetail, error) {
	return p.GetIntent(ctx, id)
}

func (p *stubProvider) CaptureIntent(ctx context.Context, id string) (*service.CaptureResult, error) {
	if p.captureErr != nil {
		return nil, p.captureErr
	}
	return &service.CaptureResult{Status: model.IntentSucceeded, AmountCaptured: 299}, nil
}

func (p *stubProvider) CreateCheckoutSession(ctx context.Context, req service.CheckoutRequest) (*model.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &model.CheckoutSession{ID: "cs_test_1"}
	p.sessions[s.ID] = s
	return s, nil
}

func (p *stubProvider) GetCheckoutSession(ctx context.Context, id string) (*model.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[id]
	if !ok {
		return nil, &service.ProviderError{Class: service.ClassInvalid, Message: "No such checkout.session"}
	}
	return s, nil
}

// fakeDocuSeal is a minimal DocuSeal API.
type fakeDocuSeal struct {
	*httptest.Server
	mu        sync.Mutex
	templates int
	status    string
}

func newFakeDocuSeal(t *testing.T) *fakeDocuSeal {
	t.Helper()
	f := &fakeDocuSeal{status: "pending"}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Auth-Token") != "docuseal-token" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Not authenticated"}`))
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/templates/html":
			f.templates++
			w.Write([]byte(`{"id":42}`))
		case r.Method == http.MethodPost && r.URL.Path == "/templates/42/submissions":
			w.Write([]byte(`{"id":7,"signing_url":"https://docuseal.com/s/abc"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/templates/42/status":
			fmt.Fprintf(w, `{"status":%q}`, f.status)
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Not found"}`))
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeDocuSeal) setStatus(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// memoryArchive records archived audit trails.
type memoryArchive struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (a *memoryArchive) ArchiveAuditTrail(ctx context.Context, documentID string, pdf []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.files[documentID] = pdf
	return "https://archive.example.com/" + documentID, nil
}

type testApp struct {
	router    *gin.Engine
	provider  *stubProvider
	docuSeal  *fakeDocuSeal
	contracts *service.ContractStore
	broker    *service.StatusBroker
	archive   *memoryArchive
	cookie    *http.Cookie
}

func testSession() *config.SessionConfig {
	return &config.SessionConfig{Secret: "handler-test-secret", ExpireDays: 7}
}

// newTestApp wires every handler on a memory backend. boldSignURL may be
// empty to leave BoldSign unconfigured.
func newTestApp(t *testing.T, boldSignURL string) *testApp {
	t.Helper()

	kv := service.NewMemoryKV()
	keys := service.Keyspace("test")
	provider := newStubProvider()
	docuSeal := newFakeDocuSeal(t)

	payments, err := service.NewPaymentService(provider, config.PaymentConfig{Amount: "2.99", Currency: "usd", ProductName: "Signing"}, "http://localhost:5173")
	if err != nil {
		t.Fatalf("NewPaymentService failed: %v", err)
	}

	boldSignCfg := &config.BoldSignConfig{}
	if boldSignURL != "" {
		boldSignCfg = &config.BoldSignConfig{APIURL: boldSignURL, APIKey: "boldsign-key", WebhookSecret: testBoldSignSecret}
	}
	docuSealSvc := service.NewDocuSealService(&config.DocuSealConfig{APIURL: docuSeal.URL, AuthToken: "docuseal-token"})
	boldSignSvc := service.NewBoldSignService(boldSignCfg, "http://localhost:5173")

	forms := service.NewFormStore(kv, keys)
	contracts := service.NewContractStore(kv, keys, 0)
	flows := service.NewFlowSessionStore(kv, keys, time.Hour)
	ledger := service.NewPaymentLedger(kv, keys, time.Hour)
	paymentFlow := service.NewPaymentFlow(kv, keys, payments, ledger)
	broker := service.NewStatusBroker(kv, keys, time.Hour)

	workflow := service.NewWorkflow(service.WorkflowDeps{
		Forms:     forms,
		Contracts: contracts,
		Flows:     flows,
		Payments:  paymentFlow,
		Signing:   service.NewSigningFlow(model.ProviderDocuSeal, docuSealSvc),
		Checkers: map[model.SigningProvider]service.StatusChecker{
			model.ProviderDocuSeal: docuSealSvc,
			model.ProviderBoldSign: boldSignSvc,
		},
		Broker:       broker,
		PollInterval: 5 * time.Millisecond,
	})

	webhooks := service.NewWebhookService(
		service.NewStripeWebhookVerifier(testStripeSecret),
		boldSignCfg.WebhookSecret,
		service.NewMemoryEventLedger(kv, keys, time.Hour),
		ledger,
		broker,
	)

	archive := &memoryArchive{files: map[string][]byte{}}
	router := gin.New()
	RegisterRoutes(router, &Handlers{
		Payment: NewPaymentHandler(payments),
		Signing: NewSigningHandler(docuSealSvc, boldSignSvc, archive),
		Webhook: NewWebhookHandler(webhooks),
		Flow: NewFlowHandler(FlowDeps{
			Forms:    forms,
			Flows:    flows,
			Payments: paymentFlow,
			Workflow: workflow,
			Embedded: service.NewEmbeddedSession(testProviderOrigin),
			Session:  testSession(),
		}),
		Contract: NewContractHandler(contracts, workflow),
	}, testSession(), nil)

	return &testApp{
		router:    router,
		provider:  provider,
		docuSeal:  docuSeal,
		contracts: contracts,
		broker:    broker,
		archive:   archive,
	}
}

// do sends a request as the app's device and tab, keeping the session cookie.
func (a *testApp) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.TabIDHeader, testTabID)
	if a.cookie != nil {
		req.AddCookie(a.cookie)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookie && c.MaxAge > 0 {
			a.cookie = c
		}
	}
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
	}
}

func signStripePayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func signBoldSignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func camryForm() model.FormData {
	return model.FormData{
		Make:      "Toyota",
		Model:     "Camry",
		Year:      2020,
		Mileage:   45000,
		Price:     12000,
		Currency:  model.CurrencyUSD,
		Condition: model.ConditionGood,
	}
}
