package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/paygo/internal/payment/domain"
)

type fakePaymentService struct {
	lastEvent *paymentdomain.GatewayEvent
	result    *paymentdomain.ProcessResult
}

func (f *fakePaymentService) CreateTopup(ctx context.Context, req paymentdomain.TopupRequest) (*paymentdomain.Payment, error) {
	_ = ctx
	_ = req
	return &paymentdomain.Payment{}, nil
}

func (f *fakePaymentService) ProcessEvent(ctx context.Context, event *paymentdomain.GatewayEvent) (*paymentdomain.ProcessResult, error) {
	_ = ctx
	f.lastEvent = event
	return f.result, nil
}

func (f *fakePaymentService) Get(ctx context.Context, id string) (*paymentdomain.Payment, error) {
	_ = ctx
	_ = id
	return nil, paymentdomain.ErrNotFound
}

func (f *fakePaymentService) History(ctx context.Context, req paymentdomain.HistoryRequest) (*paymentdomain.HistoryResponse, error) {
	_ = ctx
	_ = req
	return &paymentdomain.HistoryResponse{}, nil
}

func TestPaymentWebhookParsesProviderEvent(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := &fakePaymentService{result: &paymentdomain.ProcessResult{Applied: true}}
	srv := &Server{paymentSvc: svc}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/v1/payments/webhook/:provider", srv.HandlePaymentWebhook)

	body := `{"event_id":"evt_1","type":"payment_succeeded","external_ref":"ref_1","amount":"1000","currency":"USD"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook/stripe", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastEvent == nil {
		t.Fatal("expected event to reach the service")
	}
	if svc.lastEvent.Provider != "stripe" {
		t.Fatalf("expected provider stripe, got %q", svc.lastEvent.Provider)
	}
	if svc.lastEvent.ProviderEventID != "evt_1" {
		t.Fatalf("expected event id evt_1, got %q", svc.lastEvent.ProviderEventID)
	}

	var parsed map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("unexpected response body: %v", err)
	}
	if applied, _ := parsed["applied"].(bool); !applied {
		t.Fatal("expected applied=true in response")
	}
}

func TestPaymentWebhookRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := &fakePaymentService{result: &paymentdomain.ProcessResult{}}
	srv := &Server{paymentSvc: svc}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/v1/payments/webhook/:provider", srv.HandlePaymentWebhook)

	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook/stripe", bytes.NewBufferString(`{not json`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	if svc.lastEvent != nil {
		t.Fatal("expected malformed payload not to reach the service")
	}
}
