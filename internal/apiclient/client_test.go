package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/mute-store/internal/models"
)

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}

func TestLoginReturnsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ana@example.com", body["email"])

		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Login exitoso", "token": "tok-1"})
	}))
	defer srv.Close()

	client, err := New(srv.URL + "/")
	require.NoError(t, err)

	token, err := client.Login(context.Background(), "ana@example.com", "secreto123")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
}

func TestLoginSurfacesServerDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Credenciales inválidas"}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	_, err = client.Login(context.Background(), "ana@example.com", "wrong")
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Credenciales inválidas", UserMessage(err))
}

func TestValidationDetailList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":[{"msg":"value is not a valid email address"}]}`))
	}))
	defer srv.Close()

	client, _ := New(srv.URL)
	_, err := client.Register(context.Background(), RegisterRequest{Name: "Ana", Email: "nope", Password: "12345678"})
	assert.Equal(t, "value is not a valid email address", UserMessage(err))
}

func TestGenericFallbackMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	client, _ := New(srv.URL)
	err := client.PlaceOrder(context.Background(), models.Order{})
	require.Error(t, err)
	assert.Equal(t, FallbackMessage, UserMessage(err))
	assert.Equal(t, FallbackMessage, UserMessage(errors.New("other")))
}

func TestTransportErrorUsesFallback(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, _ := New(url)
	_, err := client.Products(context.Background())

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 0, apiErr.Status)
	assert.Equal(t, FallbackMessage, UserMessage(err))
}

func TestPlaceOrderSendsPayload(t *testing.T) {
	var got models.Order
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/comprar", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":"Compra registrada con éxito"}`))
	}))
	defer srv.Close()

	client, _ := New(srv.URL)
	err := client.PlaceOrder(context.Background(), models.Order{
		CustomerEmail: "ana@example.com",
		Total:         decimal.RequireFromString("60"),
		Products: []models.OrderLine{
			{ProductID: "P1", Name: "Camiseta", Price: decimal.RequireFromString("20"), Quantity: 3, Size: "M"},
		},
		Phone:         "5512345678",
		Address:       "Av. Reforma 1",
		Location:      &models.Location{Latitude: 19.43, Longitude: -99.13},
		PaymentMethod: "card **** 4242",
	})
	require.NoError(t, err)

	assert.Equal(t, "ana@example.com", got.CustomerEmail)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(60)))
	require.Len(t, got.Products, 1)
	assert.Equal(t, "M", got.Products[0].Size)
}

func TestPurchasesAndProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/purchase":
			assert.Equal(t, "ana+1@example.com", r.URL.Query().Get("email"))
			_, _ = w.Write([]byte(`[{"id":"ORD-1","total":"60","productos":[{"id":"P1","cantidad":3}]}]`))
		case "/auth/user":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"nombre":"Ana","email":"ana@example.com"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, _ := New(srv.URL)

	purchases, err := client.Purchases(context.Background(), "ana+1@example.com")
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, "ORD-1", purchases[0].OrderNumber)
	assert.Equal(t, 3, purchases[0].Items[0].Quantity)

	profile, err := client.Profile(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", profile.Name)
}
