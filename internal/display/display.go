// Package display drives the external QR display collaborator. The display is
// a black box that cannot fail a trial: errors and timeouts only surface as a
// longer display duration, never as a pipeline error.
package display

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/yamalog/qrtxbench/pkg/types"
)

// DefaultTimeout caps how long one render-and-show call may take.
const DefaultTimeout = 30 * time.Second

// Display renders one frame and reports how long the render-and-show step
// took. Implementations never return an error that should abort a trial.
type Display interface {
	Show(ctx context.Context, frame types.DisplayFrame) (time.Duration, error)
}

// HTTPDisplay posts frames to an external display service.
type HTTPDisplay struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPDisplay creates a display client for the given endpoint URL.
func NewHTTPDisplay(url string, logger *slog.Logger) *HTTPDisplay {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPDisplay{
		url:        url,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger,
	}
}

// Show posts the frame and returns the elapsed wall time of the call. On
// error the elapsed time is still returned so the trial records a duration
// up to the timeout ceiling.
func (d *HTTPDisplay) Show(ctx context.Context, frame types.DisplayFrame) (time.Duration, error) {
	body, err := json.Marshal(frame)
	if err != nil {
		return 0, fmt.Errorf("marshal display frame: %w", err)
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return time.Since(start), fmt.Errorf("build display request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return time.Since(start), fmt.Errorf("display request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	elapsed := time.Since(start)
	if resp.StatusCode != http.StatusOK {
		return elapsed, fmt.Errorf("display returned status %d", resp.StatusCode)
	}

	d.logger.Debug("frame displayed", "txhash", frame.TxHash, "elapsed", elapsed)
	return elapsed, nil
}

// NoopDisplay is used when no display service is configured.
type NoopDisplay struct{}

// Show does nothing and reports zero duration.
func (NoopDisplay) Show(ctx context.Context, frame types.DisplayFrame) (time.Duration, error) {
	return 0, nil
}
