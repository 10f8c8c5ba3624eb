// Package jobfeed decorates a coordinator.Provider for services that run
// traces as asynchronous jobs: the trace is submitted over HTTP, and the
// result arrives as a socket.io event pushed by the server. Every other
// provider operation is delegated unchanged.
package jobfeed

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/tracegridgo/internal/coordinator"
	"github.com/vk/tracegridgo/internal/ctxlog"
	"github.com/vk/tracegridgo/internal/network"
)

// Submitter submits a trace as an asynchronous job. featureserver.Client
// satisfies it.
type Submitter interface {
	SubmitTrace(ctx context.Context, start network.Element, cfg network.Configuration) (string, error)
}

// Options configure the push feed.
type Options struct {
	// URL of the socket.io endpoint, including path.
	URL string
	// Namespace to join, "/" when empty.
	Namespace string
	// Event is the event name carrying job completions.
	Event string
	// Timeout bounds the wait for a job's completion event.
	Timeout time.Duration
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
}

// Feed is the decorating provider.
type Feed struct {
	coordinator.Provider
	submitter Submitter
	opts      Options
}

// New wraps inner so that Trace goes through the job feed. submitter is
// usually the same value as inner.
func New(inner coordinator.Provider, submitter Submitter, opts Options) *Feed {
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Event == "" {
		opts.Event = "job:completed"
	}
	return &Feed{Provider: inner, submitter: submitter, opts: opts}
}

// opResult passes a completion safely through the done channel.
type opResult struct {
	items []network.ResultItem
	err   error
}

// Trace submits the job, then blocks on the feed until the matching
// completion event arrives or the timeout expires.
func (f *Feed) Trace(ctx context.Context, start network.Element, cfg network.Configuration) ([]network.ResultItem, error) {
	logger := ctxlog.FromContext(ctx).With("feed", f.opts.URL, "event", f.opts.Event)

	jobID, err := f.submitter.SubmitTrace(ctx, start, cfg)
	if err != nil {
		return nil, err
	}
	logger = logger.With("jobID", jobID)
	logger.Debug("Trace job submitted, awaiting completion event.")

	var isConnected atomic.Bool
	done := make(chan opResult, 1)

	opCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	parsedURL, err := url.Parse(f.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed URL: %w", err)
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if f.opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification for feed")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(f.opts.Namespace, opts)
	defer func() {
		logger.Debug("Disconnecting feed client")
		io.Disconnect()
	}()

	io.On(types.EventName("connect"), func(...any) {
		isConnected.Store(true)
		logger.Debug("Feed connected.", "sid", io.Id())
	})

	io.On(types.EventName("connect_error"), func(errs ...any) {
		if err, ok := errs[0].(error); ok {
			done <- opResult{err: err}
			return
		}
		done <- opResult{err: fmt.Errorf("feed connection error: %v", errs[0])}
	})

	io.On(types.EventName(f.opts.Event), func(data ...any) {
		if len(data) == 0 {
			return
		}
		payload, ok := data[0].(map[string]any)
		if !ok {
			done <- opResult{err: fmt.Errorf("unexpected feed payload type %T", data[0])}
			return
		}
		if payload["jobId"] != jobID {
			// Completion for somebody else's job; keep waiting.
			return
		}
		items, err := decodeElements(payload)
		done <- opResult{items: items, err: err}
	})

	io.Connect()

	select {
	case <-opCtx.Done():
		if isConnected.Load() {
			return nil, fmt.Errorf("timed out after connecting while waiting for event %q", f.opts.Event)
		}
		return nil, fmt.Errorf("timed out while waiting for initial feed connection")
	case r := <-done:
		return r.items, r.err
	}
}

// decodeElements translates a completion payload's elements into result items.
func decodeElements(payload map[string]any) ([]network.ResultItem, error) {
	raw, ok := payload["elements"].([]any)
	if !ok {
		return nil, fmt.Errorf("feed payload has no elements list")
	}

	items := make([]network.ResultItem, 0, len(raw))
	for _, e := range raw {
		elem, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("feed payload element of unexpected type %T", e)
		}
		key, _ := elem["networkSource"].(string)
		items = append(items, network.ResultItem{GroupKey: key, Ref: elem["element"]})
	}
	return items, nil
}
