package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformFee(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		percent int
		want    int64
	}{
		{"thirty percent exact", 1000, 30, 300},
		{"rounds 301.5 up", 1005, 30, 302},
		{"rounds 300.3 down", 1001, 30, 300},
		{"small amount", 1, 30, 0},
		{"half cent rounds up", 5, 10, 1},
		{"zero percent", 999, 0, 0},
		{"full amount", 999, 100, 999},
		{"zero amount", 0, 30, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlatformFee(tt.amount, tt.percent))
		})
	}
}

func TestMajorUnits(t *testing.T) {
	assert.Equal(t, json.Number("19.99"), MajorUnits(1999))
	assert.Equal(t, json.Number("0.05"), MajorUnits(5))
	assert.Equal(t, json.Number("100.00"), MajorUnits(10000))

	b, err := json.Marshal(map[string]any{"amount": MajorUnits(1250)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":12.50}`, string(b))
}

func TestParseMajorUnits(t *testing.T) {
	cents, err := ParseMajorUnits("19.99")
	require.NoError(t, err)
	assert.Equal(t, int64(1999), cents)

	cents, err = ParseMajorUnits("20")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), cents)

	cents, err = ParseMajorUnits("0.125")
	require.NoError(t, err)
	assert.Equal(t, int64(13), cents)

	_, err = ParseMajorUnits("twelve")
	assert.Error(t, err)
}

type fakeProvider struct{ name string }

func (f fakeProvider) Name() string { return f.name }
func (fakeProvider) CreateCheckout(context.Context, CheckoutRequest) (*CheckoutSession, error) {
	return nil, ErrUnsupported
}
func (fakeProvider) ParseWebhook(context.Context, []byte, http.Header) (*WebhookEvent, error) {
	return nil, ErrUnsupported
}
func (fakeProvider) SetupAccount(context.Context, AccountRequest) (*AccountSetup, error) {
	return nil, ErrUnsupported
}
func (fakeProvider) Transfer(context.Context, TransferRequest) (string, error) {
	return "", ErrUnsupported
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(fakeProvider{"stripe"}, nil, fakeProvider{"flutterwave"})

	p, ok := r.Get("stripe")
	require.True(t, ok)
	assert.Equal(t, "stripe", p.Name())

	_, ok = r.Get("paypal")
	assert.False(t, ok)

	assert.Equal(t, []string{"flutterwave", "stripe"}, r.Names())

	var nilRegistry *Registry
	_, ok = nilRegistry.Get("stripe")
	assert.False(t, ok)
}
