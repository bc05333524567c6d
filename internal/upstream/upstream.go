// Package upstream implements the two read-only collaborators the Sync
// Scheduler pulls from: the upstream node's SQLite block store (compressed
// block blobs) and its one-shot RPC call to learn the peak height.
//
// Grounded on original_source/src/sync.rs's two query shapes and one-shot
// RPC peak fetch. SQL access goes through database/sql with
// modernc.org/sqlite (a teacher indirect dependency, pure-Go so it carries
// no cgo requirement); the RPC is an HTTPS call over a TLS-client-cert
// *retryablehttp.Client, since this one IS a plain net/http round trip
// (unlike the SQL batch fetches, which retry at the internal/sync level
// instead, see retry.go).
package upstream

import (
	"context"
	"crypto/tls"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	_ "modernc.org/sqlite"
)

// BlockStore issues the two fixed query shapes against the upstream node's
// full_blocks table: a batch fetch over a height range, and a single fetch
// for one referenced height.
type BlockStore struct {
	db *sql.DB
}

// OpenBlockStore opens a read-only connection to the upstream SQLite file at
// path.
func OpenBlockStore(path string) (*BlockStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("upstream: open block store: %w", err)
	}
	return &BlockStore{db: db}, nil
}

// Close releases the underlying SQL connection.
func (s *BlockStore) Close() error { return s.db.Close() }

// FetchRange returns the compressed block blobs for heights [start,
// start+count), keyed by height, via one bulk query:
//
//	SELECT height, block FROM full_blocks WHERE in_main_chain = 1 AND
//	height IN (h0, ..., hK-1) ORDER BY height ASC
func (s *BlockStore) FetchRange(ctx context.Context, start uint32, count uint32) (map[uint32][]byte, error) {
	if count == 0 {
		return nil, nil
	}

	placeholders := make([]string, count)
	args := make([]interface{}, count)
	for i := uint32(0); i < count; i++ {
		placeholders[i] = "?"
		args[i] = start + i
	}

	query := fmt.Sprintf(
		"SELECT height, block FROM full_blocks WHERE in_main_chain = 1 AND height IN (%s) ORDER BY height ASC",
		strings.Join(placeholders, ","),
	)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("upstream: fetch range [%d,%d): %w", start, start+count, err)
	}
	defer rows.Close()

	out := make(map[uint32][]byte, count)
	for rows.Next() {
		var height uint32
		var blob []byte
		if err := rows.Scan(&height, &blob); err != nil {
			return nil, fmt.Errorf("upstream: scan row: %w", err)
		}
		out[height] = blob
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("upstream: fetch range [%d,%d): %w", start, start+count, err)
	}
	return out, nil
}

// FetchOne returns the compressed block blob at a single height, used to
// resolve one generator reference:
//
//	SELECT block FROM full_blocks WHERE in_main_chain = 1 AND height = h
func (s *BlockStore) FetchOne(ctx context.Context, height uint32) ([]byte, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT block FROM full_blocks WHERE in_main_chain = 1 AND height = ?", height)
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("upstream: fetch height %d: %w", height, err)
	}
	return blob, true, nil
}

// RPCClient issues the single unauthenticated-by-the-core get_blockchain_state
// call over HTTPS with a TLS client certificate, used once per scheduler
// start to learn the upstream peak height.
type RPCClient struct {
	http    *retryablehttp.Client
	baseURL string
}

// NewRPCClient builds an RPCClient against baseURL, loading the TLS client
// certificate from certPath/keyPath. Transport-level retries (connection
// reset, 5xx) are handled by retryablehttp itself; internal/sync wraps
// PeakHeight in its own withRetry for the batch-level retry count and
// logging SPEC_FULL.md §7 describes, so this client's own retry budget is
// kept small.
func NewRPCClient(baseURL, certPath, keyPath string) (*RPCClient, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("upstream: load TLS client cert: %w", err)
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates:       []tls.Certificate{cert},
			InsecureSkipVerify: true, // upstream RPC endpoints use self-signed node certs
		},
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{Transport: transport, Timeout: 30 * time.Second}
	client.RetryMax = 2
	client.Logger = nil

	return &RPCClient{
		http:    client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

type blockchainStateResponse struct {
	BlockchainState struct {
		Peak struct {
			Height uint32 `json:"height"`
		} `json:"peak"`
	} `json:"blockchain_state"`
}

// PeakHeight calls get_blockchain_state and returns the reported peak
// height.
func (c *RPCClient) PeakHeight(ctx context.Context) (uint32, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/get_blockchain_state", strings.NewReader("{}"))
	if err != nil {
		return 0, fmt.Errorf("upstream: build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("upstream: rpc call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("upstream: rpc call: status %d", resp.StatusCode)
	}

	var out blockchainStateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("upstream: decode rpc response: %w", err)
	}
	return out.BlockchainState.Peak.Height, nil
}
