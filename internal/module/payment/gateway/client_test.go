package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/12345", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": 12345,
			"status": "approved",
			"external_reference": "booking-abc",
			"transaction_amount": 100.00,
			"currency_id": "ARS",
			"payer": {"email": "patient@example.com"}
		}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, AccessToken: "test-token"}, zap.NewNop())

	payment, err := client.GetPayment(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), payment.ID)
	assert.Equal(t, StatusApproved, payment.Status)
	assert.Equal(t, "booking-abc", payment.ExternalReference)
	assert.Equal(t, int64(10000), payment.AmountCents())
	assert.Equal(t, "patient@example.com", payment.Payer.Email)
}

func TestGetPayment_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, AccessToken: "t"}, zap.NewNop())

	_, err := client.GetPayment(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestGetPayment_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, AccessToken: "t"}, zap.NewNop())

	_, err := client.GetPayment(context.Background(), "12345")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGetPayment_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, AccessToken: "t", Timeout: 20 * time.Millisecond}, zap.NewNop())

	_, err := client.GetPayment(context.Background(), "12345")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGetPayment_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, AccessToken: "t"}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := client.GetPayment(ctx, "12345")
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, 5, hits)

	// Breaker is open now: the request never reaches the server.
	_, err := client.GetPayment(ctx, "12345")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 5, hits)
}

func TestGetPayment_NotFoundDoesNotTripBreaker(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, AccessToken: "t"}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := client.GetPayment(ctx, "missing")
		assert.ErrorIs(t, err, ErrPaymentNotFound)
	}
	assert.Equal(t, 10, hits)
}

func TestCreatePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Idempotency-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{
			"id": 777,
			"status": "pending",
			"external_reference": "booking-xyz",
			"point_of_interaction": {
				"transaction_data": {"qr_code": "000201...", "qr_code_base64": "aGVsbG8="}
			}
		}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, AccessToken: "t"}, zap.NewNop())

	req := &CreatePaymentRequest{
		TransactionAmount: 55.50,
		Description:       "consultation",
		PaymentMethodID:   "pix",
		ExternalReference: "booking-xyz",
	}
	req.Payer.Email = "patient@example.com"

	created, err := client.CreatePayment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(777), created.ID)
	assert.Equal(t, "aGVsbG8=", created.PointOfInteraction.TransactionData.QRCodeBase64)
}
