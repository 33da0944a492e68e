package component

import (
	"errors"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nkerrors "github.com/c360/nodekit/errors"
	"github.com/c360/nodekit/transport"
)

type scanTarget struct{}

type scanTalker struct {
	Rate    int                 `node:"param:rate"`
	Chatter transport.Publisher `node:"publish:chatter"`
	Clock   *Clock              `node:"clock"`
	Name    string              `node:"name"`
	Target  *scanTarget         `node:"inject:/shared/target"`
	Log     *slog.Logger        `node:"log"`
	Skipped string              `node:"-"`
	Plain   int
}

func (s *scanTalker) NodeMethods() []MethodMarker {
	return []MethodMarker{
		Init("Setup"),
		Repeat("Tick", Interval(100*time.Millisecond), Count(3)),
		Subscribe("OnChatter", "chatter", Timeout(time.Second)),
	}
}

func (s *scanTalker) Setup() error           { return nil }
func (s *scanTalker) Tick() bool             { return true }
func (s *scanTalker) OnChatter(msg *string)  {}
func (s *scanTalker) Unmarked(a, b int) bool { return a == b }

func TestScan_Descriptor(t *testing.T) {
	d, err := Scan(reflect.TypeOf(&scanTalker{}))
	require.NoError(t, err)

	assert.Equal(t, reflect.TypeOf(scanTalker{}), d.Type)
	require.Len(t, d.Fields, 6)

	kinds := make([]FieldKind, 0, len(d.Fields))
	for _, f := range d.Fields {
		kinds = append(kinds, f.Kind)
	}
	assert.Equal(t, []FieldKind{FieldParam, FieldPublish, FieldClock, FieldName, FieldInject, FieldLog}, kinds)
	assert.Equal(t, "rate", d.Fields[0].Value)
	assert.Equal(t, "/shared/target", d.FieldsOf(FieldInject)[0].Value)

	require.Len(t, d.Methods, 3)
	repeat := d.MethodsOf(MethodRepeat)[0]
	assert.Equal(t, 100*time.Millisecond, repeat.Interval)
	assert.Equal(t, 3, repeat.Count)
	assert.Equal(t, ResultsBool, repeat.Results)

	sub := d.MethodsOf(MethodSubscribe)[0]
	assert.Equal(t, reflect.TypeOf((*string)(nil)), sub.ArgType)
	assert.Equal(t, time.Second, sub.Timeout)
	assert.Equal(t, transport.DefaultQueueLength, sub.QueueLength)

	assert.Equal(t, ResultsError, d.MethodsOf(MethodInit)[0].Results)
}

func TestScan_Cached(t *testing.T) {
	a, err := Scan(reflect.TypeOf(scanTalker{}))
	require.NoError(t, err)
	b, err := Scan(reflect.TypeOf(&scanTalker{}))
	require.NoError(t, err)
	assert.Same(t, a, b)
}

type conflictingField struct {
	Both transport.Publisher `node:"publish:a,param:b"`
}

type unexportedField struct {
	hidden int `node:"param:hidden"`
}

type wrongPublisher struct {
	Pub string `node:"publish:chatter"`
}

type wrongClock struct {
	Clock time.Time `node:"clock"`
}

type wrongInject struct {
	Dep scanTarget `node:"inject"`
}

type unknownDirective struct {
	X int `node:"frobnicate:x"`
}

type badSubscriber struct{}

func (b *badSubscriber) NodeMethods() []MethodMarker {
	return []MethodMarker{Subscribe("OnTwo", "chatter")}
}

func (b *badSubscriber) OnTwo(a, c *string) {}

type missingMethod struct{}

func (m *missingMethod) NodeMethods() []MethodMarker {
	return []MethodMarker{Init("NotThere")}
}

type duplicateMethod struct{}

func (d *duplicateMethod) NodeMethods() []MethodMarker {
	return []MethodMarker{Init("Run"), Repeat("Run")}
}

func (d *duplicateMethod) Run() {}

type exclusivePolicy struct{}

func (e *exclusivePolicy) NodeMethods() []MethodMarker {
	return []MethodMarker{Repeat("Run", Delay(time.Second), Interval(time.Second))}
}

func (e *exclusivePolicy) Run() {}

type badRepeatResult struct{}

func (b *badRepeatResult) NodeMethods() []MethodMarker {
	return []MethodMarker{Repeat("Run")}
}

func (b *badRepeatResult) Run() int { return 0 }

func TestScan_Errors(t *testing.T) {
	tests := []struct {
		name  string
		value any
		cause error
	}{
		{"marker conflict", conflictingField{}, nkerrors.ErrMarkerConflict},
		{"unexported field", unexportedField{}, nkerrors.ErrAccessDenied},
		{"publisher type", wrongPublisher{}, nkerrors.ErrInvalidSlotType},
		{"clock type", wrongClock{}, nkerrors.ErrInvalidSlotType},
		{"inject type", wrongInject{}, nkerrors.ErrInvalidSlotType},
		{"subscribe arity", badSubscriber{}, nkerrors.ErrInvalidHandler},
		{"missing method", missingMethod{}, nkerrors.ErrMethodNotFound},
		{"duplicate method", duplicateMethod{}, nkerrors.ErrMarkerConflict},
		{"delay and interval", exclusivePolicy{}, nkerrors.ErrMarkerConflict},
		{"repeat result", badRepeatResult{}, nkerrors.ErrInvalidHandler},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Scan(reflect.TypeOf(tt.value))
			require.Error(t, err)

			var ce *nkerrors.CreationError
			require.True(t, errors.As(err, &ce), "expected CreationError, got %T", err)
			assert.ErrorIs(t, err, tt.cause)
		})
	}

	t.Run("unknown directive", func(t *testing.T) {
		_, err := Scan(reflect.TypeOf(unknownDirective{}))
		var ce *nkerrors.CreationError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "X", ce.Member)
	})

	t.Run("not a struct", func(t *testing.T) {
		_, err := Scan(reflect.TypeOf(42))
		assert.Error(t, err)
	})
}

func TestParseNodeTag(t *testing.T) {
	tests := []struct {
		tag     string
		want    []TagDirective
		wantErr bool
	}{
		{"publish:chatter", []TagDirective{{Kind: FieldPublish, Value: "chatter"}}, false},
		{" param : rate ", []TagDirective{{Kind: FieldParam, Value: "rate"}}, false},
		{"inject", []TagDirective{{Kind: FieldInject}}, false},
		{"inject:sub", []TagDirective{{Kind: FieldInject, Value: "sub"}}, false},
		{"name", []TagDirective{{Kind: FieldName}}, false},
		{"-", nil, false},
		{"", nil, true},
		{"publish:", nil, true},
		{"clock:x", nil, true},
		{"bogus", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, err := ParseNodeTag(tt.tag)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type invokeTarget struct {
	calls int
}

func (i *invokeTarget) Ok()                    { i.calls++ }
func (i *invokeTarget) Stop() bool             { i.calls++; return false }
func (i *invokeTarget) Fail() error            { return errors.New("nope") }
func (i *invokeTarget) Boom() (bool, error)    { panic("kaboom") }
func (i *invokeTarget) Handle(msg *string)     { i.calls++ }
func (i *invokeTarget) HandleValue(msg string) { i.calls++ }

func bindingFor(t *testing.T, name string, kind MethodKind) MethodBinding {
	t.Helper()
	marker := MethodMarker{Kind: kind, Method: name}
	if kind == MethodSubscribe {
		marker.Topic = "x"
	}
	b, err := bindMethod(reflect.TypeOf(&invokeTarget{}), marker)
	require.NoError(t, err)
	return b
}

func TestMethodBinding_Invoke(t *testing.T) {
	target := &invokeTarget{}
	recv := reflect.ValueOf(target)

	cont, err := bindingFor(t, "Ok", MethodRepeat).Invoke(recv)
	assert.True(t, cont)
	assert.NoError(t, err)

	cont, err = bindingFor(t, "Stop", MethodRepeat).Invoke(recv)
	assert.False(t, cont)
	assert.NoError(t, err)

	cont, err = bindingFor(t, "Fail", MethodRepeat).Invoke(recv)
	assert.True(t, cont)
	var ie *nkerrors.InvocationError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "Fail", ie.Method)

	cont, err = bindingFor(t, "Boom", MethodRepeat).Invoke(recv)
	assert.True(t, cont)
	var pe *nkerrors.PanicError
	assert.True(t, errors.As(err, &pe))

	assert.Equal(t, 2, target.calls)
}

func TestMethodBinding_Arg(t *testing.T) {
	arg := func(b MethodBinding, msg any) any {
		t.Helper()
		v, err := b.Arg(msg)
		require.NoError(t, err)
		return v.Interface()
	}

	ptr := bindingFor(t, "Handle", MethodSubscribe)
	v, err := ptr.Arg(nil)
	require.NoError(t, err)
	assert.True(t, v.IsNil())

	s := "hi"
	assert.Equal(t, &s, arg(ptr, &s))
	assert.Equal(t, "hi", *(arg(ptr, "hi").(*string)))

	val := bindingFor(t, "HandleValue", MethodSubscribe)
	assert.Equal(t, "", arg(val, nil))
	assert.Equal(t, "hi", arg(val, &s))
}

func TestMethodBinding_ArgRejectsMismatchedMessage(t *testing.T) {
	tests := []struct {
		name   string
		method string
		msg    any
	}{
		{"int into pointer", "Handle", 42},
		{"int into value", "HandleValue", 42},
		{"struct into pointer", "Handle", struct{ Data string }{"hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bindingFor(t, tt.method, MethodSubscribe)
			v, err := b.Arg(tt.msg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, nkerrors.ErrInvalidData))
			assert.Contains(t, err.Error(), tt.method)
			assert.True(t, v.IsZero(), "mismatch still yields the absent value")
		})
	}
}

func TestClock(t *testing.T) {
	base := time.Unix(1700000000, 250)
	current := base
	c := &Clock{origin: base, now: func() time.Time { return current }}

	current = base.Add(1500 * time.Millisecond)
	assert.InDelta(t, 1500.0, c.Now(), 0.001)

	stamp := c.TimeNow()
	assert.Equal(t, int64(1700000001), stamp.Sec)
	assert.Equal(t, uint32(500000250), stamp.Nanosec)
	assert.True(t, stamp.Time().Equal(current))
}
