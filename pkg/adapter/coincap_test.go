package adapter_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/cryptochat/pkg/adapter"
	"github.com/m-mizutani/gt"
)

func TestCoinCapGetAsset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/assets/bitcoin" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer coin-key" {
			t.Errorf("unexpected authorization: %s", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"bitcoin","symbol":"BTC","priceUsd":"50000.12"},"timestamp":1}`))
	}))
	defer server.Close()

	client := adapter.NewCoinCap(
		adapter.WithCoinCapBaseURL(server.URL+"/assets"),
		adapter.WithCoinCapAPIKey("coin-key"),
	)

	data, err := client.GetAsset(context.Background(), "Bitcoin")
	gt.NoError(t, err)
	gt.Equal(t, data["symbol"], any("BTC"))
	gt.Equal(t, data["priceUsd"], any("50000.12"))
}

func TestCoinCapGetAssetError(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
	}{
		{"not found", http.StatusNotFound, `{"error":"bitcoin2 not found"}`},
		{"rate limited", http.StatusTooManyRequests, ``},
		{"broken json", http.StatusOK, `{"data":`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := adapter.NewCoinCap(adapter.WithCoinCapBaseURL(server.URL))
			_, err := client.GetAsset(context.Background(), "bitcoin")
			gt.Error(t, err)
		})
	}
}
