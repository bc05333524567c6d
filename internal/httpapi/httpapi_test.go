package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xch-dev/explorer/internal/batch"
	"github.com/xch-dev/explorer/internal/chain"
	"github.com/xch-dev/explorer/internal/driver"
	"github.com/xch-dev/explorer/internal/kv"
	"github.com/xch-dev/explorer/internal/query"
	"github.com/xch-dev/explorer/internal/writer"
)

func setup(t *testing.T) *Server {
	t.Helper()
	s, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	reward := chain.Coin{ParentCoinID: chain.Hash32{1}, PuzzleHash: chain.Hash32{2}, Amount: 100}
	header := chain.Hash32{0x42}

	ins := batch.New()
	ins.Merge(driver.ParsedBlock{
		Height: 10,
		Block:  chain.BlockRecord{HeaderHash: header},
		Additions: []chain.CoinRecord{
			{Coin: reward, CreatedHeight: 10, Kind: chain.CoinKind{Tag: chain.CoinKindReward}},
		},
	})
	require.NoError(t, writer.New(s).Commit(ins))

	return New(query.New(s), nil)
}

func doGet(t *testing.T, srv *Server, path string) *http.Response {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestStateReturnsPeakHeight(t *testing.T) {
	srv := setup(t)
	resp := doGet(t, srv, "/state")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]uint32
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, uint32(10), body["peak_height"])
}

func TestBlockByHeightAndHash(t *testing.T) {
	srv := setup(t)

	resp := doGet(t, srv, "/blocks/height/10")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doGet(t, srv, "/blocks/hash/"+chain.Hash32{0x42}.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doGet(t, srv, "/blocks/height/999")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCoinsByBlockAndCoinByID(t *testing.T) {
	srv := setup(t)

	resp := doGet(t, srv, "/coins/block/"+chain.Hash32{0x42}.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var coins []chain.CoinRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&coins))
	require.Len(t, coins, 1)

	coinID := coins[0].Coin.ID()
	resp = doGet(t, srv, "/coins/id/"+coinID.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInvalidHashParamIsNotFound(t *testing.T) {
	srv := setup(t)
	resp := doGet(t, srv, "/blocks/hash/not-a-hex-hash")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBlocksQueryParamsDefaultAndReverse(t *testing.T) {
	srv := setup(t)

	resp := doGet(t, srv, "/blocks?reverse=true&limit=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []query.HeightBlock
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 1)
	require.Equal(t, uint32(10), out[0].Height)
}
