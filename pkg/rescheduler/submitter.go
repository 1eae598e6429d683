package rescheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/speedrun-hq/rerunner/pkg/models"
)

// Submitter resubmits builds on the build host
type Submitter interface {
	Submit(ctx context.Context, req models.SubmitRequest) error
}

// SubmitterFunc adapts a function to Submitter
type SubmitterFunc func(ctx context.Context, req models.SubmitRequest) error

func (f SubmitterFunc) Submit(ctx context.Context, req models.SubmitRequest) error {
	return f(ctx, req)
}

// HTTPSubmitter posts resubmission requests as JSON to the build host
type HTTPSubmitter struct {
	url        string
	httpClient *http.Client
}

// NewHTTPSubmitter creates a submitter for the host endpoint url
func NewHTTPSubmitter(url string) *HTTPSubmitter {
	return &HTTPSubmitter{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (h *HTTPSubmitter) Submit(ctx context.Context, req models.SubmitRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal submit request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create submit request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to submit build %s: %v", req.BuildID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("build host rejected resubmission of %s: status %d: %s", req.BuildID, resp.StatusCode, msg)
	}
	return nil
}
