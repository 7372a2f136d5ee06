package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tollgate/contexts/billing-core/subscription-manager/ports"
)

func sampleJob() ports.VerificationJob {
	return ports.VerificationJob{
		RequestID:     "req_1",
		TransactionID: 1001,
		Tier:          "monthly",
		Payer:         "payer-1",
		GasPrice:      10,
		GasLimit:      50,
		CallbackURL:   "https://manager.example.com/callback",
	}
}

func TestRequestVerificationPostsJob(t *testing.T) {
	var got verificationJobRequest
	var path, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode job: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", nil, nil)
	if err := client.RequestVerification(context.Background(), sampleJob()); err != nil {
		t.Fatalf("RequestVerification: %v", err)
	}

	if path != "/verifications" {
		t.Fatalf("expected POST to /verifications, got %s", path)
	}
	if contentType != "application/json" {
		t.Fatalf("expected json content type, got %q", contentType)
	}
	if got.RequestID != "req_1" || got.TransactionID != 1001 || got.Tier != "monthly" || got.CallbackURL != "https://manager.example.com/callback" {
		t.Fatalf("unexpected job payload %+v", got)
	}
}

func TestRequestVerificationRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "oracle overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	if err := client.RequestVerification(context.Background(), sampleJob()); err == nil {
		t.Fatal("expected error for 503 response")
	}
}
