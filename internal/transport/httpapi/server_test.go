package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auctionhouse.ai/internal/auth"
	"auctionhouse.ai/internal/chain/chaintest"
	"auctionhouse.ai/internal/persistence/indexdb"
	"auctionhouse.ai/internal/protocol"
)

type fakeStats struct{ s indexdb.Stats }

func (f fakeStats) Stats() indexdb.Stats { return f.s }

func newTestAPI(t *testing.T) (*chaintest.Harness, *httptest.Server, *auth.Authenticator) {
	t.Helper()
	cfg := chaintest.DefaultConfig()
	cfg.BlockInterval = 10 * time.Millisecond
	cfg.AuctionWindow = 1000
	h := chaintest.New(t, cfg, chaintest.DefaultGenesis())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = h.C.Run(ctx) }()

	a, err := auth.New(auth.Config{Secret: []byte("0123456789abcdef0123")})
	if err != nil {
		t.Fatalf("auth.New: %v", err)
	}
	s := NewServer(h.C, a, nil)
	s.Index = fakeStats{indexdb.Stats{QueueCapacity: 8, DropBlockTotal: 3}}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return h, srv, a
}

func post(t *testing.T, url, token, body string) (*http.Response, protocol.ResultMsg) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var res protocol.ResultMsg
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp, res
}

func TestExecuteRequiresBearer(t *testing.T) {
	_, srv, _ := newTestAPI(t)
	body := `{"type":"EXECUTE","req_id":"r1","msg":{"bid_listing":{"listing_id":"1"}}}`
	resp, res := post(t, srv.URL+"/v1/execute", "", body)
	if resp.StatusCode != http.StatusUnauthorized || res.Code != protocol.ErrUnauthorized {
		t.Fatalf("expected 401 E_UNAUTHORIZED, got %d %+v", resp.StatusCode, res)
	}
}

func TestPlaceBidAndRead(t *testing.T) {
	_, srv, a := newTestAPI(t)
	seller, _ := a.Issue(chaintest.Seller, time.Hour)
	bidder, _ := a.Issue(chaintest.Bidder, time.Hour)

	resp, res := post(t, srv.URL+"/v1/execute", seller,
		`{"type":"EXECUTE","req_id":"p1","msg":{"place_listing":{"nft_contract_address":"nft","id":"1","minimum_bid":{"denom":"utst","amount":"2"}}}}`)
	if resp.StatusCode != http.StatusOK || !res.OK {
		t.Fatalf("place failed: %d %+v", resp.StatusCode, res)
	}

	resp, res = post(t, srv.URL+"/v1/execute", bidder,
		`{"type":"EXECUTE","req_id":"b1","msg":{"bid_listing":{"listing_id":"1"}},"funds":[{"denom":"utst","amount":"1"}]}`)
	if resp.StatusCode != http.StatusUnprocessableEntity || res.Code != protocol.ErrInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %d %+v", resp.StatusCode, res)
	}

	resp, res = post(t, srv.URL+"/v1/execute", bidder,
		`{"type":"EXECUTE","req_id":"b2","msg":{"bid_listing":{"listing_id":"1"}},"funds":[{"denom":"utst","amount":"3"}]}`)
	if resp.StatusCode != http.StatusOK || !res.OK {
		t.Fatalf("bid failed: %d %+v", resp.StatusCode, res)
	}

	var listing struct {
		Seller    string `json:"seller"`
		MaxBidder string `json:"max_bidder"`
		MaxBid    struct {
			Amount string `json:"amount"`
		} `json:"max_bid"`
	}
	getJSON(t, srv.URL+"/v1/listings/1", http.StatusOK, &listing)
	if listing.Seller != chaintest.Seller || listing.MaxBidder != chaintest.Bidder || listing.MaxBid.Amount != "3" {
		t.Fatalf("unexpected listing: %+v", listing)
	}

	var bal struct {
		Balances []struct {
			Denom  string `json:"denom"`
			Amount string `json:"amount"`
		} `json:"balances"`
	}
	getJSON(t, srv.URL+"/v1/balances/"+chaintest.Bidder, http.StatusOK, &bal)
	if len(bal.Balances) != 1 || bal.Balances[0].Amount != "7" {
		t.Fatalf("unexpected bidder balance: %+v", bal)
	}

	var cfg struct {
		ChainID      string `json:"chain_id"`
		ListingCount uint64 `json:"listing_count"`
	}
	getJSON(t, srv.URL+"/v1/config", http.StatusOK, &cfg)
	if cfg.ChainID != "test" || cfg.ListingCount != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestReadErrors(t *testing.T) {
	_, srv, _ := newTestAPI(t)
	var out map[string]string
	getJSON(t, srv.URL+"/v1/listings/42", http.StatusNotFound, &out)
	if out["code"] != protocol.ErrNotFound {
		t.Fatalf("expected E_NOT_FOUND, got %+v", out)
	}
	getJSON(t, srv.URL+"/v1/balances/NOT-VALID", http.StatusBadRequest, &out)
	if out["code"] != protocol.ErrInvalidAddress {
		t.Fatalf("expected E_INVALID_ADDRESS, got %+v", out)
	}
}

func TestQueryFrame(t *testing.T) {
	_, srv, _ := newTestAPI(t)
	resp, res := post(t, srv.URL+"/v1/query", "", `{"type":"QUERY","req_id":"q1","msg":{"config":{}}}`)
	if resp.StatusCode != http.StatusOK || !res.OK || res.ReqID != "q1" {
		t.Fatalf("unexpected query result: %d %+v", resp.StatusCode, res)
	}
	resp, res = post(t, srv.URL+"/v1/query", "", `{"type":"QUERY","req_id":"q2","msg":{}}`)
	if resp.StatusCode != http.StatusBadRequest || res.Code != protocol.ErrBadRequest {
		t.Fatalf("expected schema rejection, got %d %+v", resp.StatusCode, res)
	}
}

func TestMetrics(t *testing.T) {
	_, srv, _ := newTestAPI(t)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	body := string(b)
	for _, want := range []string{
		`auctionhouse_chain_height{chain="test"}`,
		`auctionhouse_index_dropped_total{kind="block"} 3`,
		`auctionhouse_index_queue_capacity 8`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: status %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}
