package audio

import (
	"context"
	"fmt"
	"net/http"
)

// ProbeDuration HEADs the audio URL and estimates its duration from
// Content-Length. Pass bytesPerSecond 0 for the 128 kbps default.
func ProbeDuration(ctx context.Context, client *http.Client, audioURL string, bytesPerSecond int) (int, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, audioURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to probe audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("audio probe returned status %d", resp.StatusCode)
	}
	if resp.ContentLength <= 0 {
		return 0, fmt.Errorf("audio probe returned no content length")
	}

	return EstimateDuration(int(resp.ContentLength), bytesPerSecond), nil
}
