package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *WebpayClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewWebpayClient(WebpayOptions{
		BaseURL:      srv.URL,
		CommerceCode: "597055555532",
		APIKey:       "secret",
	}, nil, zap.NewNop())
}

func TestCreate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, webpayTransactionsPath, r.URL.Path)
		assert.Equal(t, "597055555532", r.Header.Get("Tbk-Api-Key-Id"))
		assert.Equal(t, "secret", r.Header.Get("Tbk-Api-Key-Secret"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "OC-7", body["buy_order"])
		assert.Equal(t, "42", body["session_id"])
		assert.EqualValues(t, 8000, body["amount"])
		assert.Equal(t, "https://shop/return", body["return_url"])

		w.Write([]byte(`{"token":"T1","url":"https://pay/x"}`))
	})

	res, err := client.Create(context.Background(), CreateRequest{
		Amount:    8000,
		BuyOrder:  "OC-7",
		SessionID: "42",
		ReturnURL: "https://shop/return",
	})
	require.NoError(t, err)
	assert.Equal(t, "T1", res.Token)
	assert.Equal(t, "https://pay/x", res.RedirectURL)
}

func TestCreateAcceptsTokenWS(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token_ws":"T2","url":"https://pay/y"}`))
	})

	res, err := client.Create(context.Background(), CreateRequest{Amount: 1, BuyOrder: "OC-1"})
	require.NoError(t, err)
	assert.Equal(t, "T2", res.Token)
}

func TestCreateMissingURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"T3"}`))
	})

	_, err := client.Create(context.Background(), CreateRequest{Amount: 1, BuyOrder: "OC-1"})
	require.Error(t, err)
	assert.True(t, IsGatewayError(err))
}

func TestCreateProviderRejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error_message":"Invalid value for parameter: amount"}`))
	})

	_, err := client.Create(context.Background(), CreateRequest{Amount: 1, BuyOrder: "OC-1"})

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusUnprocessableEntity, gwErr.StatusCode)
	assert.Contains(t, gwErr.Message, "amount")
}

func TestCreateTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := NewWebpayClient(WebpayOptions{BaseURL: srv.URL}, nil, zap.NewNop())
	_, err := client.Create(context.Background(), CreateRequest{Amount: 1, BuyOrder: "OC-1"})
	assert.True(t, IsGatewayError(err))
}

func TestCommitNormalizesPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "numeric fields",
			body: `{"vci":"TSY","amount":8000,"status":"AUTHORIZED","buy_order":"OC-7","session_id":"42",
				"card_detail":{"card_number":"6623"},"accounting_date":"0522",
				"transaction_date":"2024-05-22T16:41:21.063Z","authorization_code":"1213",
				"payment_type_code":"VN","response_code":0,"installments_number":0}`,
		},
		{
			name: "string fields",
			body: `{"vci":"TSY","amount":"8000","status":"AUTHORIZED","buy_order":"OC-7","session_id":"42",
				"card_detail":{"card_number":"XXXXXXXXXXXX6623"},"accounting_date":"0522",
				"transaction_date":"2024-05-22T16:41:21.063Z","authorization_code":"1213",
				"payment_type_code":"VN","response_code":"0","installments_number":"0"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPut, r.Method)
				assert.Equal(t, webpayTransactionsPath+"/T1", r.URL.Path)
				w.Write([]byte(tt.body))
			})

			conf, err := client.Commit(context.Background(), "T1")
			require.NoError(t, err)
			assert.True(t, conf.Approved())
			assert.True(t, conf.Amount.Equal(decimal.NewFromInt(8000)))
			assert.Equal(t, "6623", conf.CardLast4)
			assert.Equal(t, "****6623", conf.MaskedCard())
			assert.Equal(t, "1213", conf.AuthorizationCode)
			assert.Equal(t, 2024, conf.TransactionDate.Year())
			assert.NotEmpty(t, conf.Raw)
		})
	}
}

func TestCommitRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"amount":8000,"status":"FAILED","response_code":-1}`))
	})

	conf, err := client.Commit(context.Background(), "T1")
	require.NoError(t, err)
	assert.False(t, conf.Approved())
	assert.Equal(t, -1, conf.ResponseCode)
}

func TestCommitMissingResponseCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"amount":8000}`))
	})

	_, err := client.Commit(context.Background(), "T1")
	assert.True(t, IsGatewayError(err))
}

func TestCommitMissingToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.Commit(context.Background(), "")
	assert.True(t, IsGatewayError(err))
}

func TestStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{"amount":1500,"status":"AUTHORIZED","response_code":0}`))
	})

	conf, err := client.Status(context.Background(), "T9")
	require.NoError(t, err)
	assert.Equal(t, "AUTHORIZED", conf.Status)
}

func TestRefund(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, webpayTransactionsPath+"/T1/refunds", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"amount":8000}`, string(body))
		w.Write([]byte(`{"type":"NULLIFIED","authorization_code":"123456","nullified_amount":8000,"balance":0,"response_code":0}`))
	})

	res, err := client.Refund(context.Background(), "T1", decimal.NewFromInt(8000))
	require.NoError(t, err)
	assert.Equal(t, "NULLIFIED", res.Type)
	require.NotNil(t, res.ResponseCode)
	assert.Equal(t, 0, *res.ResponseCode)
	assert.True(t, res.NullifiedAmount.Decimal.Equal(decimal.NewFromInt(8000)))
}

func TestLastDigits(t *testing.T) {
	assert.Equal(t, "6623", lastDigits("4051 8856 0044 6623", 4))
	assert.Equal(t, "23", lastDigits("23", 4))
	assert.Equal(t, "", lastDigits("", 4))
}
