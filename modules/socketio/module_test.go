package socketio

import (
	"context"
	"testing"

	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/specialistvlad/livebind/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		input   Input
		wantErr string
	}{
		{name: "ok", input: Input{URL: "http://localhost:3000/socket.io/", On: []string{"price", "status"}}},
		{name: "relative url", input: Input{URL: "/socket.io/"}, wantErr: "must be absolute"},
		{name: "bad url", input: Input{URL: "http://[::1"}, wantErr: "failed to parse URL"},
		{name: "reserved", input: Input{URL: "http://localhost", On: []string{"emit"}}, wantErr: `"emit" is reserved`},
		{name: "duplicate", input: Input{URL: "http://localhost", On: []string{"a", "a"}}, wantErr: "subscribed twice"},
		{name: "empty", input: Input{URL: "http://localhost", On: []string{""}}, wantErr: "must not be empty"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := validate(&tc.input)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestInstantiate_RejectsInvalidInput(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	_, err := Instantiate(ctx, &registry.Env{}, &Input{URL: "localhost"})
	require.Error(t, err)
}

func TestPayloadConversion(t *testing.T) {
	payload := map[string]any{
		"symbol": "ACME",
		"price":  12.5,
		"open":   true,
		"tags":   []any{"a", "b"},
		"meta":   map[string]any{},
		"none":   nil,
	}
	v, err := toCty(payload)
	require.NoError(t, err)
	assert.Equal(t, "ACME", v.GetAttr("symbol").AsString())
	assert.True(t, v.GetAttr("price").RawEquals(cty.NumberFloatVal(12.5)))
	assert.Equal(t, 2, v.GetAttr("tags").LengthInt())
	assert.True(t, v.GetAttr("none").IsNull())

	back, err := ctyValueToInterface(v)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"symbol": "ACME",
		"price":  12.5,
		"open":   true,
		"tags":   []any{"a", "b"},
		"meta":   map[string]any{},
		"none":   nil,
	}, back)

	_, err = toCty(struct{}{})
	require.Error(t, err)

	passthrough, err := toInterface("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", passthrough)
}

func TestRegister_Validates(t *testing.T) {
	r := registry.New()
	(&Module{}).Register(r)
	require.NoError(t, r.ValidateRegistry(ctxlog.Discard(context.Background())))
}
