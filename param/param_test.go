package param

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/nodekit/errors"
)

type tunables struct {
	Rate    int
	Gain    float64
	Enabled bool
	Label   string
	Points  []int
	Limits  map[string]float64
	Unset   []string
	Small   uint8
}

func field(t *testing.T, target any, name string) reflect.Value {
	t.Helper()
	v := reflect.ValueOf(target).Elem().FieldByName(name)
	require.True(t, v.IsValid(), "no field %s", name)
	return v
}

func TestValueJSON(t *testing.T) {
	for _, v := range []Value{IntValue(42), DoubleValue(0.5), BoolValue(true), StringValue("x"), {}} {
		data, err := json.Marshal(v)
		require.NoError(t, err)

		var got Value
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, v, got, "round trip of %s", data)
	}

	var bad Value
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"quaternion"}`), &bad))
}

func TestInferValue(t *testing.T) {
	assert.Equal(t, IntValue(7), InferValue("7"))
	assert.Equal(t, DoubleValue(2.5), InferValue("2.5"))
	assert.Equal(t, BoolValue(false), InferValue("False"))
	assert.Equal(t, StringValue("base_link"), InferValue("base_link"))
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		remote Value
		want   any
		errIs  error
	}{
		{"string to int", "Rate", StringValue("42"), 42, nil},
		{"float string truncates", "Rate", StringValue("3.9"), 3, nil},
		{"double truncates", "Rate", DoubleValue(-2.7), -2, nil},
		{"int to int", "Rate", IntValue(9), 9, nil},
		{"bool to int", "Rate", BoolValue(true), nil, errors.ErrInvalidData},
		{"garbage to int", "Rate", StringValue("abc"), nil, errors.ErrParsingFailed},
		{"int widens", "Gain", IntValue(3), 3.0, nil},
		{"string to double", "Gain", StringValue("0.25"), 0.25, nil},
		{"string to bool", "Enabled", StringValue("true"), true, nil},
		{"bool to bool", "Enabled", BoolValue(true), true, nil},
		{"int to bool", "Enabled", IntValue(1), nil, errors.ErrInvalidData},
		{"int to text", "Label", IntValue(5), "5", nil},
		{"double to text", "Label", DoubleValue(1.5), "1.5", nil},
		{"bool to text", "Label", BoolValue(false), "false", nil},
		{"yaml sequence", "Points", StringValue("[1, 2, 3]"), []int{1, 2, 3}, nil},
		{"yaml mapping", "Limits", StringValue("{max: 2.5}"), map[string]float64{"max": 2.5}, nil},
		{"sequence needs text", "Points", IntValue(1), nil, errors.ErrInvalidData},
		{"uint overflow", "Small", IntValue(300), nil, errors.ErrInvalidData},
		{"nan to int", "Rate", StringValue("NaN"), nil, errors.ErrInvalidData},
		{"inf to int", "Rate", StringValue("-Inf"), nil, errors.ErrInvalidData},
		{"huge string to int", "Rate", StringValue("1e30"), nil, errors.ErrInvalidData},
		{"huge double to int", "Rate", DoubleValue(1e30), nil, errors.ErrInvalidData},
		{"two to the 63 to int", "Rate", DoubleValue(9223372036854775808), nil, errors.ErrInvalidData},
		{"huge double to uint", "Small", DoubleValue(-1e30), nil, errors.ErrInvalidData},
		{"max int text is exact", "Rate", StringValue("9223372036854775807"), 9223372036854775807, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tn := &tunables{Rate: 1, Gain: 1, Label: "orig"}
			before := *tn
			target := field(t, tn, tt.field)

			err := Coerce(tt.remote, target)
			if tt.errIs != nil {
				require.ErrorIs(t, err, tt.errIs)
				assert.Equal(t, before.Rate, tn.Rate)
				assert.Equal(t, before.Label, tn.Label)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, target.Interface())
		})
	}
}

func TestEncode(t *testing.T) {
	tn := &tunables{Rate: 7, Gain: 0.1, Enabled: true, Label: "a", Points: []int{1, 2}}

	tests := []struct {
		field string
		want  Value
	}{
		{"Rate", IntValue(7)},
		{"Gain", DoubleValue(0.1)},
		{"Enabled", BoolValue(true)},
		{"Label", StringValue("a")},
		{"Points", StringValue("- 1\n- 2")},
		{"Unset", StringValue("[]")},
		{"Limits", StringValue("{}")},
	}
	for _, tt := range tests {
		got, err := Encode(field(t, tn, tt.field))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.field)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	src := &tunables{Limits: map[string]float64{"lo": -1, "hi": 4.5}}
	v, err := Encode(field(t, src, "Limits"))
	require.NoError(t, err)

	dst := &tunables{}
	require.NoError(t, Coerce(v, field(t, dst, "Limits")))
	assert.Equal(t, src.Limits, dst.Limits)
}

func TestSynchronizerResolve(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(Parameter{Name: "rate", Value: StringValue("42")})
	sync := NewSynchronizer(store, nil, nil)

	tn := &tunables{Rate: 1, Gain: 7}
	owner := reflect.TypeOf(tn)
	sync.Add(ctx, "rate", owner, "Rate", field(t, tn, "Rate"))
	sync.Add(ctx, "gain", owner, "Gain", field(t, tn, "Gain"))
	assert.Equal(t, 2, sync.Pending())

	require.NoError(t, sync.Resolve(ctx))
	assert.Equal(t, 0, sync.Pending())
	assert.Equal(t, 42, tn.Rate)

	calls := store.SetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, []Parameter{{Name: "gain", Value: DoubleValue(7)}}, calls[0])
}

func TestSynchronizerPublishesIntegerDefault(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	sync := NewSynchronizer(store, nil, nil)

	tn := &tunables{Rate: 7}
	sync.Add(ctx, "rate", reflect.TypeOf(tn), "Rate", field(t, tn, "Rate"))
	require.NoError(t, sync.Resolve(ctx))

	got, ok := store.Value("rate")
	require.True(t, ok)
	assert.Equal(t, IntValue(7), got)
	assert.Equal(t, 7, tn.Rate)
}

func TestSynchronizerCoercionFailureKeepsValue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(Parameter{Name: "rate", Value: StringValue("fast")})
	sync := NewSynchronizer(store, nil, nil)

	tn := &tunables{Rate: 5}
	sync.Add(ctx, "rate", reflect.TypeOf(tn), "Rate", field(t, tn, "Rate"))
	require.NoError(t, sync.Resolve(ctx))
	assert.Equal(t, 5, tn.Rate)
	assert.Empty(t, store.SetCalls())

	require.NoError(t, sync.Register())
	for _, v := range []Value{StringValue("NaN"), StringValue("1e30"), DoubleValue(1e30)} {
		store.Update(Parameter{Name: "rate", Value: v})
		assert.Equal(t, 5, tn.Rate, "value %s", v.Text())
	}
}

func TestSynchronizerLastWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	sync := NewSynchronizer(store, nil, nil)
	require.NoError(t, sync.Register())

	first := &tunables{}
	second := &tunables{}
	sync.Add(ctx, "rate", reflect.TypeOf(first), "Rate", field(t, first, "Rate"))
	sync.Add(ctx, "rate", reflect.TypeOf(second), "Rate", field(t, second, "Rate"))
	require.NoError(t, sync.Resolve(ctx))

	res := store.Update(Parameter{Name: "rate", Value: IntValue(11)})
	assert.True(t, res.Successful)
	assert.Equal(t, 11, second.Rate)
	assert.Equal(t, 0, first.Rate)
}

func TestSynchronizerOnChange(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	sync := NewSynchronizer(store, nil, nil)
	require.NoError(t, sync.Register())

	tn := &tunables{Label: "x"}
	sync.Add(ctx, "label", reflect.TypeOf(tn), "Label", field(t, tn, "Label"))
	sync.Add(ctx, "gain", reflect.TypeOf(tn), "Gain", field(t, tn, "Gain"))
	require.NoError(t, sync.Resolve(ctx))

	res := store.Update(
		Parameter{Name: "label", Value: IntValue(3)},
		Parameter{Name: "nobody", Value: IntValue(1)},
		Parameter{Name: "gain", Value: StringValue("not a number")},
	)
	assert.True(t, res.Successful)
	assert.Equal(t, "3", tn.Label)
	assert.Equal(t, 0.0, tn.Gain)
}

func TestSynchronizerRegisterOnce(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, NewSynchronizer(store, nil, nil).Register())

	err := NewSynchronizer(store, nil, nil).Register()
	assert.ErrorIs(t, err, errors.ErrCallbackExists)
}

func TestSynchronizerResolveCancelled(t *testing.T) {
	store := &stallingStore{MemoryStore: NewMemoryStore()}
	sync := NewSynchronizer(store, nil, nil)

	tn := &tunables{}
	sync.Add(context.Background(), "rate", reflect.TypeOf(tn), "Rate", field(t, tn, "Rate"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sync.Resolve(ctx), context.Canceled)
	assert.Equal(t, 1, sync.Pending())
}

type stallingStore struct {
	*MemoryStore
}

func (s *stallingStore) GetParameters(context.Context, ...string) *Future {
	return NewFuture()
}
