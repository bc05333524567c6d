package sync

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"database/sql"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	blockpkg "github.com/xch-dev/explorer/internal/block"
	"github.com/xch-dev/explorer/internal/chain"
	"github.com/xch-dev/explorer/internal/driver"
	"github.com/xch-dev/explorer/internal/kv"
	"github.com/xch-dev/explorer/internal/puzzle"
	"github.com/xch-dev/explorer/internal/pvm"
	"github.com/xch-dev/explorer/internal/query"
	"github.com/xch-dev/explorer/internal/upstream"

	_ "modernc.org/sqlite"
)

func seedUpstreamBlockStore(t *testing.T, peak uint32) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blockchain.sqlite")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE full_blocks (height INTEGER, block BLOB, in_main_chain INTEGER)`)
	require.NoError(t, err)

	for h := uint32(0); h <= peak; h++ {
		fb := blockpkg.FullBlock{
			Height:           h,
			HeaderHash:       chain.Hash32{byte(h + 1)},
			PrevHeaderHash:   chain.Hash32{byte(h)},
			Weight:           []byte{1},
			TotalIters:       []byte{1},
			FarmerPuzzleHash: chain.Hash32{0xF0},
			RewardCoins: []chain.Coin{
				{ParentCoinID: chain.Hash32{byte(h)}, PuzzleHash: chain.Hash32{0xE0}, Amount: 1000},
			},
		}
		raw, err := blockpkg.Encode(fb)
		require.NoError(t, err)
		blob, err := blockpkg.Compress(raw)
		require.NoError(t, err)

		_, err = db.Exec(`INSERT INTO full_blocks (height, block, in_main_chain) VALUES (?, ?, 1)`, h, blob)
		require.NoError(t, err)
	}
	return path
}

func selfSignedKeyPair(t *testing.T) (certPath, keyPath string) {
	t.Helper()
	dir := t.TempDir()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "explorer-test-client"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	require.NoError(t, err)

	certPath = filepath.Join(dir, "client.crt")
	keyPath = filepath.Join(dir, "client.key")

	certOut, err := os.Create(certPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, certOut.Close())

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)
	keyOut, err := os.Create(keyPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}))
	require.NoError(t, keyOut.Close())

	return certPath, keyPath
}

func TestRunSyncsFromGenesisToUpstreamPeak(t *testing.T) {
	const peak = uint32(4)

	dbPath := seedUpstreamBlockStore(t, peak)
	blockStore, err := upstream.OpenBlockStore(dbPath)
	require.NoError(t, err)
	defer blockStore.Close()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"blockchain_state":{"peak":{"height":4}}}`))
	}))
	defer srv.Close()

	certPath, keyPath := selfSignedKeyPair(t)
	rpc, err := upstream.NewRPCClient(srv.URL, certPath, keyPath)
	require.NoError(t, err)

	store, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	classifier := puzzle.New(pvm.Driver{}, puzzle.ModHashes{})
	drv := driver.New(pvm.Driver{}, classifier)

	s := New(Config{BatchSize: 2}, store, blockStore, rpc, drv, nil, nil)

	require.NoError(t, s.Run(context.Background()))

	r := query.New(store)
	got, err := r.State()
	require.NoError(t, err)
	require.Equal(t, peak, got)

	for h := uint32(0); h <= peak; h++ {
		rec, err := r.BlockByHeight(h)
		require.NoError(t, err)
		require.Equal(t, chain.Hash32{byte(h + 1)}, rec.HeaderHash)
	}
}

func TestRunResumesFromLocalPeakPlusOne(t *testing.T) {
	const peak = uint32(3)

	dbPath := seedUpstreamBlockStore(t, peak)
	blockStore, err := upstream.OpenBlockStore(dbPath)
	require.NoError(t, err)
	defer blockStore.Close()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"blockchain_state":{"peak":{"height":3}}}`))
	}))
	defer srv.Close()

	certPath, keyPath := selfSignedKeyPair(t)
	rpc, err := upstream.NewRPCClient(srv.URL, certPath, keyPath)
	require.NoError(t, err)

	store, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	classifier := puzzle.New(pvm.Driver{}, puzzle.ModHashes{})
	drv := driver.New(pvm.Driver{}, classifier)

	s := New(Config{BatchSize: 1}, store, blockStore, rpc, drv, nil, nil)
	require.NoError(t, s.Run(context.Background()))

	peakHeight, err := s.localPeak()
	require.NoError(t, err)
	require.Equal(t, peak+1, peakHeight)

	// Re-run against the same store: nothing left to sync, should be a no-op.
	require.NoError(t, s.Run(context.Background()))
	r := query.New(store)
	got, err := r.State()
	require.NoError(t, err)
	require.Equal(t, peak, got)
}
