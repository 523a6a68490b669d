// Package httpapi exposes the chain over plain HTTP: bearer-authenticated
// execute, unauthenticated reads, health and a text metrics page.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"auctionhouse.ai/internal/auth"
	"auctionhouse.ai/internal/chain"
	"auctionhouse.ai/internal/persistence/indexdb"
	"auctionhouse.ai/internal/protocol"
)

const maxBodyBytes = 64 * 1024

// StatsSource is implemented by the index backends.
type StatsSource interface {
	Stats() indexdb.Stats
}

type Server struct {
	chain *chain.Chain
	auth  *auth.Authenticator
	log   *log.Logger

	// Index is reported on /metrics when set.
	Index StatsSource
	// SubmitTimeout bounds how long POST /v1/execute waits for its block.
	SubmitTimeout time.Duration
}

func NewServer(c *chain.Chain, a *auth.Authenticator, logger *log.Logger) *Server {
	return &Server{
		chain:         c,
		auth:          a,
		log:           logger,
		SubmitTimeout: 30 * time.Second,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/execute", s.handleExecute).Methods(http.MethodPost)
	v1.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost)
	v1.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	v1.HandleFunc("/listings", s.handleListings).Methods(http.MethodGet)
	v1.HandleFunc("/listings/{id}", s.handleListing).Methods(http.MethodGet)
	v1.HandleFunc("/balances/{addr}", s.handleBalances).Methods(http.MethodGet)
	v1.HandleFunc("/assets/{registry}/{id}", s.handleAsset).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(rw http.ResponseWriter, r *http.Request) {
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("ok"))
}

func (s *Server) handleExecute(rw http.ResponseWriter, r *http.Request) {
	principal, err := s.auth.Verify(auth.BearerToken(r.Header.Get("Authorization")))
	if err != nil {
		writeResult(rw, http.StatusUnauthorized, protocol.ErrorResult("", protocol.ErrUnauthorized, err.Error()))
		return
	}
	raw, ok := readFrame(rw, r, protocol.TypeExecute)
	if !ok {
		return
	}
	var ex protocol.ExecuteMsg
	if err := json.Unmarshal(raw, &ex); err != nil {
		writeResult(rw, http.StatusBadRequest, protocol.ErrorResult("", protocol.ErrBadRequest, err.Error()))
		return
	}
	tx, err := chain.TxFromExecute(principal, ex)
	if err != nil {
		writeResult(rw, http.StatusBadRequest, protocol.ErrorResult(ex.ReqID, protocol.ErrBadRequest, err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.SubmitTimeout)
	defer cancel()
	res, err := s.chain.Submit(ctx, tx)
	if err != nil {
		code := chain.CodeFor(err)
		if errors.Is(err, context.DeadlineExceeded) {
			code = protocol.ErrBusy
		}
		writeResult(rw, statusFor(code), protocol.ErrorResult(ex.ReqID, code, err.Error()))
		return
	}
	writeResult(rw, statusFor(res.Code), res.Result(ex.ReqID))
}

func (s *Server) handleQuery(rw http.ResponseWriter, r *http.Request) {
	raw, ok := readFrame(rw, r, protocol.TypeQuery)
	if !ok {
		return
	}
	var q protocol.QueryMsg
	if err := json.Unmarshal(raw, &q); err != nil {
		writeResult(rw, http.StatusBadRequest, protocol.ErrorResult("", protocol.ErrBadRequest, err.Error()))
		return
	}
	qm, err := q.DecodeQuery()
	if err != nil {
		writeResult(rw, http.StatusBadRequest, protocol.ErrorResult(q.ReqID, protocol.ErrBadRequest, err.Error()))
		return
	}
	res := s.chain.QueryResult(q.ReqID, qm)
	writeResult(rw, statusFor(res.Code), res)
}

func (s *Server) handleConfig(rw http.ResponseWriter, r *http.Request) {
	cfg, err := s.chain.ListingConfig()
	if err != nil {
		s.writeErr(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, struct {
		protocol.ChainParams
		ListingCount uint64 `json:"listing_count"`
	}{s.chain.Params(), cfg.ListingCount})
}

func (s *Server) handleListings(rw http.ResponseWriter, r *http.Request) {
	ls, err := s.chain.Listings()
	if err != nil {
		s.writeErr(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, ls)
}

func (s *Server) handleListing(rw http.ResponseWriter, r *http.Request) {
	l, err := s.chain.ResolveListing(mux.Vars(r)["id"])
	if err != nil {
		s.writeErr(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, l)
}

func (s *Server) handleBalances(rw http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	coins, err := s.chain.Balances(addr)
	if err != nil {
		s.writeErr(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"address": addr, "balances": coins})
}

func (s *Server) handleAsset(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	a, err := s.chain.Asset(vars["registry"], vars["id"])
	if err != nil {
		s.writeErr(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, a)
}

func (s *Server) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	cfg := s.chain.Config()
	m := s.chain.Metrics()

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP auctionhouse_chain_height Last committed block height.\n")
	fmt.Fprintf(rw, "# TYPE auctionhouse_chain_height gauge\n")
	fmt.Fprintf(rw, "auctionhouse_chain_height{chain=%q} %d\n", cfg.ChainID, m.Height)

	fmt.Fprintf(rw, "# HELP auctionhouse_chain_pending_txs Transactions waiting for the next block.\n")
	fmt.Fprintf(rw, "# TYPE auctionhouse_chain_pending_txs gauge\n")
	fmt.Fprintf(rw, "auctionhouse_chain_pending_txs{chain=%q} %d\n", cfg.ChainID, m.PendingTxs)
	fmt.Fprintf(rw, "auctionhouse_chain_pending_capacity{chain=%q} %d\n", cfg.ChainID, m.PendingCapacity)

	fmt.Fprintf(rw, "# HELP auctionhouse_chain_blocks_total Blocks produced.\n")
	fmt.Fprintf(rw, "# TYPE auctionhouse_chain_blocks_total counter\n")
	fmt.Fprintf(rw, "auctionhouse_chain_blocks_total{chain=%q,result=%q} %d\n", cfg.ChainID, "committed", m.Blocks)
	fmt.Fprintf(rw, "auctionhouse_chain_blocks_total{chain=%q,result=%q} %d\n", cfg.ChainID, "failed", m.BlockFailures)

	fmt.Fprintf(rw, "# HELP auctionhouse_chain_txs_total Transactions by outcome.\n")
	fmt.Fprintf(rw, "# TYPE auctionhouse_chain_txs_total counter\n")
	fmt.Fprintf(rw, "auctionhouse_chain_txs_total{chain=%q,result=%q} %d\n", cfg.ChainID, "ok", m.TxCommitted)
	fmt.Fprintf(rw, "auctionhouse_chain_txs_total{chain=%q,result=%q} %d\n", cfg.ChainID, "failed", m.TxFailed)
	fmt.Fprintf(rw, "auctionhouse_chain_txs_total{chain=%q,result=%q} %d\n", cfg.ChainID, "dropped", m.TxDropped)

	fmt.Fprintf(rw, "# HELP auctionhouse_chain_snapshots_dropped_total Snapshots dropped because the writer was busy.\n")
	fmt.Fprintf(rw, "# TYPE auctionhouse_chain_snapshots_dropped_total counter\n")
	fmt.Fprintf(rw, "auctionhouse_chain_snapshots_dropped_total{chain=%q} %d\n", cfg.ChainID, m.SnapshotsDropped)

	if s.Index == nil {
		return
	}
	st := s.Index.Stats()
	fmt.Fprintf(rw, "# HELP auctionhouse_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE auctionhouse_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "auctionhouse_index_queue_depth %d\n", st.QueueDepth)
	fmt.Fprintf(rw, "auctionhouse_index_queue_capacity %d\n", st.QueueCapacity)

	fmt.Fprintf(rw, "# HELP auctionhouse_index_dropped_total Index writes dropped on a full queue.\n")
	fmt.Fprintf(rw, "# TYPE auctionhouse_index_dropped_total counter\n")
	fmt.Fprintf(rw, "auctionhouse_index_dropped_total{kind=%q} %d\n", "block", st.DropBlockTotal)
	fmt.Fprintf(rw, "auctionhouse_index_dropped_total{kind=%q} %d\n", "snapshot", st.DropSnapshotTotal)
}

func (s *Server) writeErr(rw http.ResponseWriter, err error) {
	code := chain.CodeFor(err)
	if code == protocol.ErrInternal && s.log != nil {
		s.log.Printf("http: %v", err)
	}
	writeJSON(rw, statusFor(code), map[string]string{"code": code, "message": err.Error()})
}

// readFrame reads and schema-checks a request body. It writes the error
// response itself and reports whether the caller should continue.
func readFrame(rw http.ResponseWriter, r *http.Request, typ string) ([]byte, bool) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeResult(rw, http.StatusBadRequest, protocol.ErrorResult("", protocol.ErrBadRequest, err.Error()))
		return nil, false
	}
	if len(raw) > maxBodyBytes {
		writeResult(rw, http.StatusRequestEntityTooLarge, protocol.ErrorResult("", protocol.ErrBadRequest, "body too large"))
		return nil, false
	}
	if err := protocol.Validate(typ, raw); err != nil {
		base, _ := protocol.DecodeBase(raw)
		writeResult(rw, http.StatusBadRequest, protocol.ErrorResult(base.ReqID, protocol.ErrBadRequest, err.Error()))
		return nil, false
	}
	return raw, true
}

func statusFor(code string) int {
	switch code {
	case "":
		return http.StatusOK
	case protocol.ErrBadRequest, protocol.ErrInvalidAddress:
		return http.StatusBadRequest
	case protocol.ErrUnauthorized:
		return http.StatusForbidden
	case protocol.ErrNotFound:
		return http.StatusNotFound
	case protocol.ErrAuctionEnded, protocol.ErrAuctionNotEnded:
		return http.StatusConflict
	case protocol.ErrInsufficientFunds, protocol.ErrNoResource:
		return http.StatusUnprocessableEntity
	case protocol.ErrBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeResult(rw http.ResponseWriter, status int, res protocol.ResultMsg) {
	writeJSON(rw, status, res)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
