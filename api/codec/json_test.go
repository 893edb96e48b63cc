package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestRegistered(t *testing.T) {
	require.NotNil(t, encoding.GetCodecV2(Name))
}

func TestRoundTrip(t *testing.T) {
	type msg struct {
		Amount string `json:"amount"`
	}
	c := jsonCodec{}
	b, err := c.Marshal(&msg{Amount: "42"})
	require.NoError(t, err)
	require.JSONEq(t, `{"amount":"42"}`, string(b))

	var out msg
	require.NoError(t, c.Unmarshal(b, &out))
	require.Equal(t, "42", out.Amount)
}

func TestAmounts(t *testing.T) {
	v, err := ParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, err)
	require.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", FormatAmount(v))

	_, err = ParseAmount("")
	require.Error(t, err)
	_, err = ParseAmount("-1")
	require.Error(t, err)
	require.Equal(t, "0", FormatAmount(nil))
}
