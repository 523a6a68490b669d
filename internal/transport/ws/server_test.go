package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"auctionhouse.ai/internal/auth"
	"auctionhouse.ai/internal/chain/chaintest"
	"auctionhouse.ai/internal/protocol"
)

func newTestServer(t *testing.T) (*httptest.Server, *auth.Authenticator) {
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
	srv := httptest.NewServer(NewServer(h.C, a, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, a
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func hello(t *testing.T, conn *websocket.Conn, token string) {
	t.Helper()
	msg := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "test",
		Auth:            &protocol.HelloAuth{Token: token},
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write hello: %v", err)
	}
}

func readResult(t *testing.T, conn *websocket.Conn) protocol.ResultMsg {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var res protocol.ResultMsg
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatalf("read result: %v", err)
	}
	if res.Type != protocol.TypeResult {
		t.Fatalf("expected RESULT, got %q", res.Type)
	}
	return res
}

func TestHandshakeAndExecute(t *testing.T) {
	srv, a := newTestServer(t)
	token, err := a.Issue(chaintest.Seller, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	conn := dial(t, srv)
	hello(t, conn, token)

	var welcome protocol.WelcomeMsg
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if welcome.Type != protocol.TypeWelcome || welcome.Principal != chaintest.Seller {
		t.Fatalf("unexpected welcome: %+v", welcome)
	}
	if welcome.ChainParams.ContractAddress != chaintest.Contract || welcome.ChainParams.AuctionWindow != 1000 {
		t.Fatalf("unexpected chain params: %+v", welcome.ChainParams)
	}

	exec := map[string]any{
		"type":             protocol.TypeExecute,
		"protocol_version": protocol.Version,
		"req_id":           "r1",
		"msg": map[string]any{
			"place_listing": map[string]any{"nft_contract_address": chaintest.Registry, "id": "1"},
		},
	}
	if err := conn.WriteJSON(exec); err != nil {
		t.Fatalf("write execute: %v", err)
	}
	res := readResult(t, conn)
	if res.ReqID != "r1" || !res.OK {
		t.Fatalf("expected ok result for r1, got %+v", res)
	}
	if res.TxID == "" || res.Height == 0 || len(res.Actions) != 2 {
		t.Fatalf("unexpected execute result: %+v", res)
	}

	query := map[string]any{
		"type":   protocol.TypeQuery,
		"req_id": "r2",
		"msg":    map[string]any{"resolve_listing": map[string]any{"id": "1"}},
	}
	if err := conn.WriteJSON(query); err != nil {
		t.Fatalf("write query: %v", err)
	}
	res = readResult(t, conn)
	if res.ReqID != "r2" || !res.OK {
		t.Fatalf("expected ok query result, got %+v", res)
	}
	raw, _ := json.Marshal(res.Data)
	if !strings.Contains(string(raw), `"seller":"bob_key"`) || !strings.Contains(string(raw), `"phase":"ACTIVE"`) {
		t.Fatalf("unexpected listing: %s", raw)
	}
}

func TestSchemaRejection(t *testing.T) {
	srv, a := newTestServer(t)
	token, _ := a.Issue(chaintest.Bidder, time.Hour)
	conn := dial(t, srv)
	hello(t, conn, token)
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}

	bad := map[string]any{
		"type":   protocol.TypeExecute,
		"req_id": "bad",
		"msg": map[string]any{
			"bid_listing":      map[string]any{"listing_id": "1"},
			"withdraw_listing": map[string]any{"listing_id": "1"},
		},
	}
	if err := conn.WriteJSON(bad); err != nil {
		t.Fatalf("write: %v", err)
	}
	res := readResult(t, conn)
	if res.OK || res.Code != protocol.ErrBadRequest || res.ReqID != "bad" {
		t.Fatalf("expected E_BAD_REQUEST, got %+v", res)
	}
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	srv, _ := newTestServer(t)
	other, _ := auth.New(auth.Config{Secret: []byte("another-secret-of-length")})
	token, _ := other.Issue(chaintest.Bidder, time.Hour)

	conn := dial(t, srv)
	hello(t, conn, token)
	res := readResult(t, conn)
	if res.OK || res.Code != protocol.ErrUnauthorized {
		t.Fatalf("expected E_UNAUTHORIZED, got %+v", res)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected connection to close")
	}
}
