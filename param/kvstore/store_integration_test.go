//go:build integration

package kvstore

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/nodekit/errors"
	"github.com/c360/nodekit/natsclient"
	"github.com/c360/nodekit/param"
)

type limits struct {
	MaxSpeed float64
	Retries  int
}

func TestStoreFetchAndPublishDefaults(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
	ctx := context.Background()

	store, err := Open(ctx, tc.Client, "params_defaults", nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SetParameters(ctx, []param.Parameter{
		{Name: "limits/max_speed", Value: param.StringValue("1.5")},
	}))

	sync := param.NewSynchronizer(store, nil, nil)
	l := &limits{MaxSpeed: 0.1, Retries: 7}
	v := reflect.ValueOf(l).Elem()
	sync.Add(ctx, "limits/max_speed", reflect.TypeOf(l), "MaxSpeed", v.Field(0))
	sync.Add(ctx, "limits/retries", reflect.TypeOf(l), "Retries", v.Field(1))
	require.NoError(t, sync.Resolve(ctx))

	assert.Equal(t, 1.5, l.MaxSpeed)

	got, err := store.GetParameters(ctx, "limits/retries").Await(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, param.IntValue(7), got[0].Value)
}

func TestStoreChangeCallback(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
	ctx := context.Background()

	store, err := Open(ctx, tc.Client, "params_watch", nil)
	require.NoError(t, err)
	defer store.Close()

	changes := make(chan param.Parameter, 4)
	require.NoError(t, store.OnParameterChange(func(ps []param.Parameter) param.Result {
		for _, p := range ps {
			changes <- p
		}
		return param.Result{Successful: true}
	}))
	assert.ErrorIs(t, store.OnParameterChange(func([]param.Parameter) param.Result { return param.Result{} }),
		errors.ErrCallbackExists)

	require.NoError(t, store.SetParameters(ctx, []param.Parameter{{Name: "gain", Value: param.DoubleValue(0.25)}}))

	select {
	case p := <-changes:
		assert.Equal(t, "gain", p.Name)
		assert.Equal(t, param.DoubleValue(0.25), p.Value)
	case <-time.After(5 * time.Second):
		t.Fatal("no change delivered")
	}
}
