package jobfeed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaults(t *testing.T) {
	feed := New(nil, nil, Options{URL: "wss://example.com/socket.io"})
	assert.Equal(t, "job:completed", feed.opts.Event)
	assert.Equal(t, 2*time.Minute, feed.opts.Timeout)

	custom := New(nil, nil, Options{URL: "wss://example.com", Event: "trace:done", Timeout: time.Second})
	assert.Equal(t, "trace:done", custom.opts.Event)
	assert.Equal(t, time.Second, custom.opts.Timeout)
}

func TestDecodeElements(t *testing.T) {
	payload := map[string]any{
		"jobId": "job-42",
		"elements": []any{
			map[string]any{"networkSource": "Gas Device", "element": map[string]any{"objectId": 1.0}},
			map[string]any{"networkSource": "Gas Line", "element": map[string]any{"objectId": 2.0}},
		},
	}

	items, err := decodeElements(payload)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Gas Device", items[0].GroupKey)
	assert.Equal(t, map[string]any{"objectId": 2.0}, items[1].Ref)
}

func TestDecodeElementsRejectsMalformedPayloads(t *testing.T) {
	_, err := decodeElements(map[string]any{"jobId": "job-42"})
	assert.ErrorContains(t, err, "no elements list")

	_, err = decodeElements(map[string]any{"elements": []any{"not-an-object"}})
	assert.ErrorContains(t, err, "unexpected type")
}
