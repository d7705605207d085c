package costapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vscarpenter/spend-monitor/internal/costapi"
	"github.com/vscarpenter/spend-monitor/pkg/model"
)

func testPeriod() model.Period {
	return model.Period{
		Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestClient_GetCosts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/costs", r.URL.Path)
		assert.Equal(t, "2025-06-01T00:00:00Z", r.URL.Query().Get("start"))
		assert.Equal(t, "2025-07-01T00:00:00Z", r.URL.Query().Get("end"))
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(model.CostAnalysis{
			TotalUSD:     15.50,
			ServiceCosts: map[string]float64{"EC2": 10.00, "S3": 5.50},
			Period:       testPeriod(),
			Currency:     "USD",
		})
	}))
	defer server.Close()

	client := costapi.NewClient(server.URL, "key", time.Second)
	analysis, err := client.GetCosts(context.Background(), testPeriod())
	require.NoError(t, err)
	assert.Equal(t, 15.50, analysis.TotalUSD)
	assert.Len(t, analysis.ServiceCosts, 2)
}

func TestClient_GetCosts_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := costapi.NewClient(server.URL, "", time.Second)
	_, err := client.GetCosts(context.Background(), testPeriod())
	require.Error(t, err)
	assert.True(t, model.IsTransient(err))
}

func TestClient_GetCosts_RejectsMalformedAnalysis(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Sum of service costs disagrees with the total.
		json.NewEncoder(w).Encode(model.CostAnalysis{
			TotalUSD:     50.00,
			ServiceCosts: map[string]float64{"EC2": 10.00},
			Period:       testPeriod(),
		})
	}))
	defer server.Close()

	client := costapi.NewClient(server.URL, "", time.Second)
	_, err := client.GetCosts(context.Background(), testPeriod())
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestClient_GetCosts_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := costapi.NewClient(server.URL, "", time.Second)
	_, err := client.GetCosts(context.Background(), testPeriod())
	require.Error(t, err)
	assert.True(t, model.IsTransient(err))
}
