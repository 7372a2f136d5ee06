// Package oracle contains the HTTP client for the external verification
// oracle.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tollgate/contexts/billing-core/subscription-manager/ports"
)

const defaultTimeout = 10 * time.Second

// Client dispatches verification jobs to the oracle over HTTP. The oracle
// answers asynchronously through the manager's callback endpoint; a 2xx here
// only acknowledges that the job was accepted.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

type verificationJobRequest struct {
	RequestID     string `json:"request_id"`
	TransactionID uint64 `json:"transaction_id"`
	Tier          string `json:"tier"`
	Payer         string `json:"payer"`
	GasPrice      uint64 `json:"gas_price"`
	GasLimit      uint64 `json:"gas_limit"`
	CallbackURL   string `json:"callback_url"`
}

func (c *Client) RequestVerification(ctx context.Context, job ports.VerificationJob) error {
	body, err := json.Marshal(verificationJobRequest{
		RequestID:     job.RequestID,
		TransactionID: job.TransactionID,
		Tier:          job.Tier,
		Payer:         job.Payer,
		GasPrice:      job.GasPrice,
		GasLimit:      job.GasLimit,
		CallbackURL:   job.CallbackURL,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verifications", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("oracle rejected verification job",
			"event", "oracle_dispatch_rejected",
			"module", "billing-core/subscription-manager",
			"layer", "adapter",
			"request_id", job.RequestID,
			"status", resp.StatusCode,
		)
		return fmt.Errorf("oracle responded with status %d", resp.StatusCode)
	}
	return nil
}

var _ ports.OracleClient = (*Client)(nil)
