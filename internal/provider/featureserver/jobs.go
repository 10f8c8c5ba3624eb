package featureserver

import (
	"context"
	"fmt"

	"github.com/vk/tracegridgo/internal/network"
)

type jobResponse struct {
	JobID string `json:"jobId"`
}

// SubmitTrace submits the trace as an asynchronous job and returns the job
// ID. Completion arrives over the service's push feed; see provider/jobfeed.
func (c *Client) SubmitTrace(ctx context.Context, start network.Element, cfg network.Configuration) (string, error) {
	req := traceRequest{
		Element: start.Handle,
		Base:    cfg.Base(),
		Filter:  cfg.Filter(),
		Flags:   cfg.Flags(),
	}

	var resp jobResponse
	if err := c.postJSON(ctx, c.baseURL+"/trace/jobs", req, &resp); err != nil {
		return "", fmt.Errorf("submit trace job: %w", err)
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("submit trace job: service returned no job id")
	}
	return resp.JobID, nil
}
