//go:build integration
// +build integration

// Package integration provides end-to-end tests for the ParsePay service.
//
// These tests drive a running server through the complete pipeline:
//
//	SMS → Normalize → Gate → Tagger/Rules → TransactionRecord
//
// Run with: PARSEPAY_TEST_URL=http://localhost:8080 go test -tags=integration -v ./tests/integration/...
//
// The server needs no seeded data: the built-in gate rules are loaded at
// startup. The tagger is optional; with or without it every field below
// must resolve, because rules fill whatever the tagger leaves empty.
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/parsepay/internal/domain"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig(t *testing.T) TestConfig {
	t.Helper()
	baseURL := os.Getenv("PARSEPAY_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		t.Skipf("ParsePay not reachable at %s: %v", baseURL, err)
	}
	resp.Body.Close()

	return TestConfig{
		BaseURL:  baseURL,
		TenantID: "integration-tenant",
	}
}

var reference = time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

func call(t *testing.T, config TestConfig, method, path string, body interface{}) (int, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, &buf)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, respBody
}

func extract(t *testing.T, config TestConfig, sender, text string) domain.ExtractionResponse {
	t.Helper()

	status, body := call(t, config, http.MethodPost, "/extract", domain.MessageRequest{
		Sender:     sender,
		Text:       text,
		ReceivedAt: &reference,
	})
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, body)
	}

	var result domain.ExtractionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, body)
	}
	return result
}

func assertField(t *testing.T, rec *domain.TransactionRecord, name, want string) {
	t.Helper()
	got, _ := rec.Get(name)
	if want == "" {
		if got.Present() {
			t.Errorf("%s: expected absent, got %q", name, got.String())
		}
		return
	}
	if got.String() != want {
		t.Errorf("%s: expected %q, got %q (error %v)", name, want, got.String(), got.Error)
	}
	if got.Present() && (got.Confidence <= 0 || got.Confidence > 1) {
		t.Errorf("%s: confidence %.2f out of range", name, got.Confidence)
	}
}

// ============================================================================
// SCENARIO 1: Card/UPI debit with every field present
// ============================================================================

func TestDebitMessage_AllFields(t *testing.T) {
	config := getTestConfig(t)

	result := extract(t, config, "VM-HDFCBK",
		"Sent Rs.73.00 From HDFC Bank A/C x2228 To Marvel On 04/04/25 Ref 509482752071")

	if result.Status != domain.StatusExtracted {
		t.Fatalf("Expected %s, got %s", domain.StatusExtracted, result.Status)
	}
	assertField(t, result.Record, domain.FieldBank, "HDFC")
	assertField(t, result.Record, domain.FieldAmount, "73.00")
	assertField(t, result.Record, domain.FieldDate, "2025-04-04")
	assertField(t, result.Record, domain.FieldTransactionType, "debit")
	assertField(t, result.Record, domain.FieldAccountFrom, "2228")

	t.Logf("Debit extracted: missing=%v tagger=%v", result.Missing, result.Metadata.TaggerUsed)
}

// ============================================================================
// SCENARIO 2: OTP message is rejected by the gate
// ============================================================================

func TestOTPMessage_Rejected(t *testing.T) {
	config := getTestConfig(t)

	result := extract(t, config, "AD-HDFCBK", "Your OTP for login is 234556. Valid for 10 minutes.")

	if result.Status != domain.StatusRejected {
		t.Errorf("Expected %s, got %s (gate score %.2f)", domain.StatusRejected, result.Status, result.Metadata.GateScore)
	}
	for _, f := range result.Record.Fields() {
		if f.Result.Present() {
			t.Errorf("%s: expected absent for rejected message", f.Name)
		}
	}
}

// ============================================================================
// SCENARIO 3: Stored extraction is retrievable by ID and by message
// ============================================================================

func TestExtraction_Retrieval(t *testing.T) {
	config := getTestConfig(t)

	created := extract(t, config, "JD-SBIINB", "Rs 1,250.50 debited from SBI A/c XX4421 on 02-04-2025. UPI Ref 4091")

	status, body := call(t, config, http.MethodGet, "/extractions/"+created.ExtractionID, nil)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, body)
	}
	var ext domain.Extraction
	if err := json.Unmarshal(body, &ext); err != nil {
		t.Fatalf("Failed to unmarshal extraction: %v", err)
	}
	if ext.MessageID != created.MessageID {
		t.Errorf("Expected message %s, got %s", created.MessageID, ext.MessageID)
	}

	status, _ = call(t, config, http.MethodGet, "/messages/"+created.MessageID, nil)
	if status != http.StatusOK {
		t.Errorf("Expected status 200 for message lookup, got %d", status)
	}
}

// ============================================================================
// SCENARIO 4: Asynchronous submission is accepted
// ============================================================================

func TestSubmitMessage_Queued(t *testing.T) {
	config := getTestConfig(t)

	status, body := call(t, config, http.MethodPost, "/messages", domain.MessageRequest{
		Sender: "VM-ICICIB",
		Text:   "INR 499.00 spent on ICICI Bank Card XX9012 at AMAZON on 03-Apr-25",
	})
	if status != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", status, body)
	}

	var resp map[string]string
	json.Unmarshal(body, &resp)
	if resp["messageId"] == "" {
		t.Fatal("Expected a message id")
	}

	// The worker stores the extraction shortly after.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, body = call(t, config, http.MethodGet, "/messages/"+resp["messageId"], nil)
		var got struct {
			Extraction *domain.ExtractionResponse `json:"extraction"`
		}
		if status == http.StatusOK && json.Unmarshal(body, &got) == nil && got.Extraction != nil {
			assertField(t, got.Extraction.Record, domain.FieldAmount, "499.00")
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Log("Extraction not visible yet; async worker may be disabled")
}
