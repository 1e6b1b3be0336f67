package gateway

import (
	"context"
	"errors"
	"testing"

	"MarginTradeBot/internal/models"

	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_CodeTable(t *testing.T) {
	cases := map[string]struct {
		code int64
		want Kind
	}{
		"insufficient funds": {code: -2010, want: KindRemoteRejected},
		"invalid quantity":   {code: -1013, want: KindRemoteRejected},
		"precision":          {code: -1111, want: KindRemoteRejected},
		"invalid symbol":     {code: -1121, want: KindRemoteRejected},
		"bad signature":      {code: -2014, want: KindRemoteRejected},
		"notional too small": {code: -4164, want: KindRemoteRejected},
		"key permission":     {code: -2013, want: KindFatal},
		"ip restricted":      {code: -2015, want: KindFatal},
		"too many requests":  {code: -1003, want: KindThrottled},
		"timestamp skew":     {code: -1021, want: KindStaleState},
		"internal error":     {code: -1001, want: KindTransient},
		"unknown code":       {code: -9999, want: KindRemoteRejected},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := classify("op", &common.APIError{Code: tc.code, Message: name})
			assert.Equal(t, tc.want, KindOf(err))
			assert.Equal(t, tc.code, CodeOf(err))
		})
	}
}

func TestClassify_NetworkErrorIsTransient(t *testing.T) {
	err := classify("op", errors.New("connection reset by peer"))
	assert.Equal(t, KindTransient, KindOf(err))
	assert.Zero(t, CodeOf(err))
}

func TestClassify_Nil(t *testing.T) {
	assert.NoError(t, classify("op", nil))
}

// stubAPI fails a fixed number of times before succeeding, recording the
// number of attempts the gateway made.
type stubAPI struct {
	api
	failures int
	failWith error
	calls    int
	serverMs []int64
}

func (s *stubAPI) serverTime(context.Context) (int64, error) {
	s.calls++
	if s.calls <= s.failures {
		return 0, s.failWith
	}
	if len(s.serverMs) > 0 {
		ms := s.serverMs[0]
		if len(s.serverMs) > 1 {
			s.serverMs = s.serverMs[1:]
		}
		return ms, nil
	}
	return 0, nil
}

func (s *stubAPI) positions(context.Context) ([]models.ExchangePosition, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, s.failWith
	}
	return nil, nil
}

func TestExecute_RetriesTransient(t *testing.T) {
	stub := &stubAPI{failures: 2, failWith: errors.New("timeout")}
	g := newWithAPI(stub)

	_, err := g.Positions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stub.calls)
}

func TestExecute_NeverRetriesRemoteRejected(t *testing.T) {
	stub := &stubAPI{failures: 5, failWith: &common.APIError{Code: -2010, Message: "insufficient balance"}}
	g := newWithAPI(stub)

	_, err := g.Positions(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindRemoteRejected, KindOf(err))
	assert.Equal(t, 1, stub.calls, "business rejections must not be retried")
}

func TestExecute_SurfacesFatal(t *testing.T) {
	stub := &stubAPI{failures: 5, failWith: &common.APIError{Code: -2015, Message: "invalid key"}}
	g := newWithAPI(stub)

	_, err := g.Positions(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindFatal, KindOf(err))
	assert.Equal(t, 1, stub.calls)
}

func TestSyncClock_MedianOffset(t *testing.T) {
	base := int64(1_700_000_000_000)
	stub := &stubAPI{serverMs: []int64{base, base, base, base, base}}
	g := newWithAPI(stub)

	err := g.SyncClock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stub.calls)
}
