package coordinator_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/tracegridgo/internal/coordinator"
	"github.com/vk/tracegridgo/internal/network"
	"github.com/vk/tracegridgo/internal/testutil"
)

func newCoordinator(provider *testutil.FakeProvider) *coordinator.Coordinator {
	return coordinator.New(provider, coordinator.Options{
		Start: testutil.SampleLocator(),
		Flags: map[string]bool{"include_isolated": true},
	})
}

func newReady(t *testing.T, provider *testutil.FakeProvider) *coordinator.Coordinator {
	t.Helper()
	coord := newCoordinator(provider)
	require.NoError(t, coord.Start(context.Background()))
	require.True(t, coord.IsReady())
	return coord
}

func TestStartReachesReady(t *testing.T) {
	provider := testutil.NewFakeProvider()
	coord := newCoordinator(provider)

	require.Equal(t, coordinator.Idle, coord.State())
	require.NoError(t, coord.Start(context.Background()))

	assert.Equal(t, coordinator.Ready, coord.State())
	assert.True(t, coord.IsReady())
	assert.Contains(t, coord.Status().Message, "ready")

	// The chain is strictly sequential: definition never loads before the
	// root, resolution never runs before the definition.
	assert.Equal(t, []string{"LoadRoot", "LoadDefinition", "MakeElement"}, provider.Calls())

	require.NotNil(t, coord.Definition())
	assert.Equal(t, "Naperville Gas", coord.Definition().Name)

	elem := coord.StartingElement()
	assert.Equal(t, "Gas Device", elem.Source)
	assert.Equal(t, "Meter", elem.Group)
	assert.Equal(t, "Customer Meter", elem.Type)
	assert.Equal(t, testutil.ElementID, elem.Identifier)
	assert.NotNil(t, elem.Handle)
}

func TestStartRootLoadFailure(t *testing.T) {
	provider := testutil.NewFakeProvider()
	provider.LoadRootFn = func(ctx context.Context) (coordinator.RootHandle, error) {
		return nil, errors.New("connection refused")
	}
	coord := newCoordinator(provider)

	err := coord.Start(context.Background())
	require.Error(t, err)

	var lerr *coordinator.LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, coordinator.StageRoot, lerr.Stage)

	assert.Equal(t, coordinator.Failed, coord.State())
	assert.False(t, coord.IsReady())
	// The definition load was never issued.
	assert.Equal(t, []string{"LoadRoot"}, provider.Calls())
}

func TestStartDefinitionLoadFailure(t *testing.T) {
	provider := testutil.NewFakeProvider()
	provider.LoadDefinitionFn = func(ctx context.Context, root coordinator.RootHandle) (*network.Definition, error) {
		return nil, errors.New("definition unavailable")
	}
	coord := newCoordinator(provider)

	err := coord.Start(context.Background())
	var lerr *coordinator.LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, coordinator.StageDefinition, lerr.Stage)

	assert.Equal(t, coordinator.Failed, coord.State())
	// A definition-load failure never triggers a resolution attempt.
	assert.NotContains(t, provider.Calls(), "MakeElement")
}

func TestStartResolutionFailure(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(loc *network.Locator)
		link   string
	}{
		{"missing source", func(loc *network.Locator) { loc.Source = "Water Device" }, "source"},
		{"missing group", func(loc *network.Locator) { loc.Group = "Pump" }, "group"},
		{"missing type", func(loc *network.Locator) { loc.Type = "Bronze Meter" }, "type"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := testutil.NewFakeProvider()
			loc := testutil.SampleLocator()
			tc.mutate(&loc)
			coord := coordinator.New(provider, coordinator.Options{Start: loc})

			err := coord.Start(context.Background())
			var rerr *coordinator.ResolutionError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, tc.link, rerr.Link)

			assert.Equal(t, coordinator.Failed, coord.State())
			assert.False(t, coord.IsReady())
			assert.Equal(t, "resolution failed", coord.Status().Message)
		})
	}

	t.Run("element lookup returns nothing", func(t *testing.T) {
		provider := testutil.NewFakeProvider()
		provider.MakeElementFn = func(typ network.EntityType, id uuid.UUID) (any, error) {
			return nil, errors.New("no such entity")
		}
		coord := newCoordinator(provider)

		err := coord.Start(context.Background())
		var rerr *coordinator.ResolutionError
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, "element", rerr.Link)
		assert.Equal(t, coordinator.Failed, coord.State())
	})
}

func TestStartWhileLoadingIsRejected(t *testing.T) {
	provider := testutil.NewFakeProvider()
	release := make(chan struct{})
	provider.LoadRootFn = func(ctx context.Context) (coordinator.RootHandle, error) {
		<-release
		return "root-handle", nil
	}
	coord := newCoordinator(provider)

	errCh := make(chan error, 1)
	go func() { errCh <- coord.Start(context.Background()) }()
	require.True(t, testutil.WaitFor(time.Second, func() bool {
		return coord.State() == coordinator.LoadingRoot
	}))

	require.ErrorIs(t, coord.Start(context.Background()), coordinator.ErrBusy)

	close(release)
	require.NoError(t, <-errCh)
	assert.True(t, coord.IsReady())
}

func TestStartAfterFailureBeginsFreshChain(t *testing.T) {
	provider := testutil.NewFakeProvider()
	fail := true
	provider.LoadRootFn = func(ctx context.Context) (coordinator.RootHandle, error) {
		if fail {
			return nil, errors.New("transient outage")
		}
		return "root-handle", nil
	}
	coord := newCoordinator(provider)

	require.Error(t, coord.Start(context.Background()))
	require.Equal(t, coordinator.Failed, coord.State())

	fail = false
	require.NoError(t, coord.Start(context.Background()))
	assert.True(t, coord.IsReady())
}

func TestStaleLoadResultDoesNotClobberNewerEpoch(t *testing.T) {
	provider := testutil.NewFakeProvider()
	blocked := make(chan struct{})
	var first atomic.Bool
	first.Store(true)
	provider.LoadRootFn = func(ctx context.Context) (coordinator.RootHandle, error) {
		if first.CompareAndSwap(true, false) {
			<-blocked
			return "stale-root", nil
		}
		return "root-handle", nil
	}
	coord := newCoordinator(provider)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- coord.Start(ctx) }()
	require.True(t, testutil.WaitFor(time.Second, func() bool {
		return coord.State() == coordinator.LoadingRoot
	}))

	// Abandon the first attempt while its root load is still outstanding.
	cancel()
	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, coordinator.Failed, coord.State())

	// A fresh start opens a new epoch and completes.
	require.NoError(t, coord.Start(context.Background()))
	require.True(t, coord.IsReady())
	statusBefore := coord.Status()

	// Now let the abandoned load finally return. It must not mutate the
	// newer epoch's state.
	close(blocked)
	time.Sleep(20 * time.Millisecond)
	assert.True(t, coord.IsReady())
	assert.Equal(t, statusBefore.Message, coord.Status().Message)
}

func TestRunQueryRequiresReady(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		coord := newCoordinator(testutil.NewFakeProvider())
		_, err := coord.RunQuery(context.Background(), coordinator.QueryParams{Category: "ValveOperable"})
		var perr *coordinator.PreconditionError
		require.ErrorAs(t, err, &perr)
	})

	t.Run("after load failure", func(t *testing.T) {
		provider := testutil.NewFakeProvider()
		provider.LoadRootFn = func(ctx context.Context) (coordinator.RootHandle, error) {
			return nil, errors.New("boom")
		}
		coord := newCoordinator(provider)
		require.Error(t, coord.Start(context.Background()))

		_, err := coord.RunQuery(context.Background(), coordinator.QueryParams{Category: "ValveOperable"})
		var perr *coordinator.PreconditionError
		require.ErrorAs(t, err, &perr)
		// Nothing was dispatched.
		assert.NotContains(t, provider.Calls(), "Trace")
	})
}

func TestRunQueryWithoutCategoryStaysReady(t *testing.T) {
	provider := testutil.NewFakeProvider()
	coord := newReady(t, provider)

	_, err := coord.RunQuery(context.Background(), coordinator.QueryParams{})
	var perr *coordinator.PreconditionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "category", perr.Field)

	// The rejection is local; the coordinator remains usable.
	assert.True(t, coord.IsReady())
	assert.Contains(t, coord.Status().Message, "parameters not set")
	assert.NotContains(t, provider.Calls(), "Trace")
}

func TestRunQueryWhileQueryingIsRejected(t *testing.T) {
	provider := testutil.NewFakeProvider()
	release := make(chan struct{})
	provider.TraceFn = func(ctx context.Context, start network.Element, cfg network.Configuration) ([]network.ResultItem, error) {
		<-release
		return nil, nil
	}
	coord := newReady(t, provider)

	errCh := make(chan error, 1)
	go func() {
		_, err := coord.RunQuery(context.Background(), coordinator.QueryParams{Category: "ValveOperable"})
		errCh <- err
	}()
	require.True(t, testutil.WaitFor(time.Second, func() bool {
		return coord.State() == coordinator.Querying
	}))

	_, err := coord.RunQuery(context.Background(), coordinator.QueryParams{Category: "ValveOperable"})
	require.ErrorIs(t, err, coordinator.ErrBusy)

	close(release)
	require.NoError(t, <-errCh)
	assert.True(t, coord.IsReady())

	// The busy rejection never dispatched a second domain call.
	traceCalls := 0
	for _, call := range provider.Calls() {
		if call == "Trace" {
			traceCalls++
		}
	}
	assert.Equal(t, 1, traceCalls)
}

func TestRunQueryEmptyResult(t *testing.T) {
	provider := testutil.NewFakeProvider()
	coord := newReady(t, provider)

	result, err := coord.RunQuery(context.Background(), coordinator.QueryParams{Category: "ValveOperable"})
	require.NoError(t, err)
	assert.Empty(t, result.Groups)
	assert.Empty(t, result.Errors)
	assert.True(t, coord.IsReady())
	assert.Contains(t, coord.Status().Message, "no output")
}

func TestRunQueryFailureReturnsToReady(t *testing.T) {
	provider := testutil.NewFakeProvider()
	provider.TraceFn = func(ctx context.Context, start network.Element, cfg network.Configuration) ([]network.ResultItem, error) {
		return nil, errors.New("service error 500")
	}
	coord := newReady(t, provider)

	_, err := coord.RunQuery(context.Background(), coordinator.QueryParams{Category: "ValveOperable"})
	var qerr *coordinator.QueryError
	require.ErrorAs(t, err, &qerr)

	// Query failures are non-terminal; the coordinator stays usable.
	assert.Equal(t, coordinator.Ready, coord.State())
	assert.Contains(t, coord.Status().Message, "trace failed")

	provider.TraceFn = nil
	_, err = coord.RunQuery(context.Background(), coordinator.QueryParams{Category: "ValveOperable"})
	require.NoError(t, err)
}

func TestConfigurationCarriesFlagsAndFilter(t *testing.T) {
	provider := testutil.NewFakeProvider()
	var seen network.Configuration
	provider.TraceFn = func(ctx context.Context, start network.Element, cfg network.Configuration) ([]network.ResultItem, error) {
		seen = cfg
		return nil, nil
	}
	coord := newReady(t, provider)

	_, err := coord.RunQuery(context.Background(), coordinator.QueryParams{Category: "ValveOperable"})
	require.NoError(t, err)

	assert.Equal(t, "ValveOperable", seen.Filter())
	assert.True(t, seen.Flag("include_isolated"))
	assert.Equal(t, "Pipeline", seen.Base()["domainNetwork"])
}
