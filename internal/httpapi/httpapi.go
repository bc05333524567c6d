// Package httpapi exposes the Query Surface over HTTP: a chi router with
// permissive CORS, JSON envelopes, and the not-found/error-to-status mapping
// SPEC_FULL.md §7 describes (ErrNotFound -> 404, anything else -> 500).
//
// Grounded on the teacher's go.mod dependency on github.com/go-chi/chi/v5
// and github.com/go-chi/cors; the pack carries no direct chi usage example,
// so routing follows chi's own canonical idiom (chi.NewRouter, typed route
// params via chi.URLParam) rather than a pack file.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/xch-dev/explorer/internal/chain"
	"github.com/xch-dev/explorer/internal/kv"
	"github.com/xch-dev/explorer/internal/query"
)

// Server wraps a Reader with an HTTP handler.
type Server struct {
	reader *query.Reader
	log    *zap.SugaredLogger
	mux    *chi.Mux
}

// New builds a Server with all routes registered. log may be nil, in which
// case the server runs without per-request logging.
func New(reader *query.Reader, log *zap.SugaredLogger) *Server {
	s := &Server{reader: reader, log: log}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))
	r.Use(s.logRequest)

	r.Get("/state", s.handleState)
	r.Get("/blocks/latest", s.handleLatestBlock)
	r.Get("/blocks/height/{height}", s.handleBlockByHeight)
	r.Get("/blocks/hash/{hash_hex}", s.handleBlockByHash)
	r.Get("/blocks", s.handleBlocks)
	r.Get("/coins/block/{hash_hex}", s.handleCoinsByBlock)
	r.Get("/coins/children/{coin_id_hex}", s.handleCoinsByParent)
	r.Get("/coins/id/{coin_id_hex}", s.handleCoin)
	r.Get("/spends/block/{hash_hex}", s.handleSpendsByBlock)
	r.Get("/spends/id/{coin_id_hex}", s.handleSpend)

	s.mux = r
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.log != nil {
			s.log.Debugw("http request", "method", r.Method, "path", r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes v as a 200 JSON body.
func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		if s.log != nil {
			s.log.Errorw("http encode response", "error", err)
		}
	}
}

// writeError maps ErrNotFound to 404 and anything else to 500, logging 5xx
// at error level per SPEC_FULL.md §7.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, query.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if s.log != nil {
		s.log.Errorw("http handler error", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseHashParam(r *http.Request, name string) (chain.Hash32, error) {
	return chain.ParseHash32(chi.URLParam(r, name))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	peak, err := s.reader.State()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, map[string]uint32{"peak_height": peak})
}

func (s *Server) handleLatestBlock(w http.ResponseWriter, r *http.Request) {
	height, rec, err := s.reader.LatestBlock()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, query.HeightBlock{Height: height, Record: rec})
}

func (s *Server) handleBlockByHeight(w http.ResponseWriter, r *http.Request) {
	h, err := strconv.ParseUint(chi.URLParam(r, "height"), 10, 32)
	if err != nil {
		http.Error(w, "invalid height", http.StatusNotFound)
		return
	}
	rec, err := s.reader.BlockByHeight(uint32(h))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, query.HeightBlock{Height: uint32(h), Record: rec})
}

func (s *Server) handleBlockByHash(w http.ResponseWriter, r *http.Request) {
	hh, err := parseHashParam(r, "hash_hex")
	if err != nil {
		http.Error(w, "invalid hash", http.StatusNotFound)
		return
	}
	rec, err := s.reader.BlockByHash(hh)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, rec)
}

func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusNotFound)
			return
		}
		limit = n
	}

	var start *uint32
	if v := q.Get("start"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			http.Error(w, "invalid start", http.StatusNotFound)
			return
		}
		h := uint32(n)
		start = &h
	}

	dir := kv.Forward
	if q.Get("reverse") == "true" {
		dir = kv.Reverse
	}

	blocks, err := s.reader.Blocks(start, dir, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, blocks)
}

func (s *Server) handleCoinsByBlock(w http.ResponseWriter, r *http.Request) {
	hh, err := parseHashParam(r, "hash_hex")
	if err != nil {
		http.Error(w, "invalid hash", http.StatusNotFound)
		return
	}
	coins, err := s.reader.CoinsByBlock(hh)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, coins)
}

func (s *Server) handleCoinsByParent(w http.ResponseWriter, r *http.Request) {
	parentID, err := parseHashParam(r, "coin_id_hex")
	if err != nil {
		http.Error(w, "invalid coin id", http.StatusNotFound)
		return
	}
	ids, err := s.reader.CoinsByParent(parentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, ids)
}

func (s *Server) handleCoin(w http.ResponseWriter, r *http.Request) {
	coinID, err := parseHashParam(r, "coin_id_hex")
	if err != nil {
		http.Error(w, "invalid coin id", http.StatusNotFound)
		return
	}
	rec, err := s.reader.Coin(coinID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, rec)
}

func (s *Server) handleSpendsByBlock(w http.ResponseWriter, r *http.Request) {
	hh, err := parseHashParam(r, "hash_hex")
	if err != nil {
		http.Error(w, "invalid hash", http.StatusNotFound)
		return
	}
	spends, err := s.reader.SpendsByBlock(hh)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, spends)
}

func (s *Server) handleSpend(w http.ResponseWriter, r *http.Request) {
	coinID, err := parseHashParam(r, "coin_id_hex")
	if err != nil {
		http.Error(w, "invalid coin id", http.StatusNotFound)
		return
	}
	rec, err := s.reader.Spend(coinID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, rec)
}
