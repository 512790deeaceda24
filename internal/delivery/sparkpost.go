package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/ignite/bulkmailer/internal/pkg/logger"
	"github.com/ignite/bulkmailer/internal/service/dispatch"
)

// SparkPost delivers emails through the SparkPost Transmissions API.
type SparkPost struct {
	apiKey    string
	baseURL   string
	fromName  string
	fromEmail string
	client    *http.Client
}

// NewSparkPost creates a deliverer targeting the SparkPost v1 API.
func NewSparkPost(apiKey, fromName, fromEmail string) *SparkPost {
	return &SparkPost{
		apiKey:    apiKey,
		baseURL:   "https://api.sparkpost.com/api/v1",
		fromName:  fromName,
		fromEmail: fromEmail,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Deliver sends one email as a single-recipient transmission.
func (s *SparkPost) Deliver(ctx context.Context, email *dispatch.OutboundEmail) error {
	if s.apiKey == "" {
		return fmt.Errorf("SparkPost API key not configured")
	}

	transmission := map[string]interface{}{
		"recipients": []map[string]interface{}{
			{"address": map[string]string{"email": email.ToEmail, "name": email.ToName}},
		},
		"content": map[string]interface{}{
			"from":    map[string]string{"email": s.fromEmail, "name": s.fromName},
			"subject": email.Subject,
			"text":    email.Body,
		},
	}

	jsonData, err := json.Marshal(transmission)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/transmissions", bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("SparkPost error %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Results struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	json.Unmarshal(body, &result)

	log.Printf("[SparkPost] Sent to %s (id: %s)", logger.RedactEmail(email.ToEmail), result.Results.ID)
	return nil
}
