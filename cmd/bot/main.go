// Command bot is a websocket client that outbids every active listing by a
// fixed increment until its budget runs out.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"auctionhouse.ai/internal/auction/contract"
	"auctionhouse.ai/internal/auction/funds"
	"auctionhouse.ai/internal/protocol"
)

type bot struct {
	conn   *websocket.Conn
	log    *log.Logger
	self   string
	denom  string
	step   decimal.Decimal
	budget decimal.Decimal
	seq    int
}

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		token     = flag.String("token", os.Getenv("AH_TOKEN"), "bearer token (or set AH_TOKEN)")
		denom     = flag.String("denom", "utst", "bid denomination")
		increment = flag.String("increment", "1", "amount added to the current bid")
		budget    = flag.String("budget", "100", "largest bid the bot will place")
		every     = flag.Duration("every", 2*time.Second, "poll interval")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	step, err := decimal.NewFromString(*increment)
	if err != nil || !step.IsPositive() {
		logger.Fatalf("bad -increment %q", *increment)
	}
	limit, err := decimal.NewFromString(*budget)
	if err != nil {
		logger.Fatalf("bad -budget %q", *budget)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "bot",
		Auth:            &protocol.HelloAuth{Token: *token},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}
	var w protocol.WelcomeMsg
	if err := conn.ReadJSON(&w); err != nil || w.Type != protocol.TypeWelcome {
		logger.Fatalf("handshake failed: %v", err)
	}
	logger.Printf("WELCOME principal=%s chain=%s height=%d", w.Principal, w.ChainParams.ChainID, w.ChainParams.Height)

	b := &bot{conn: conn, log: logger, self: w.Principal, denom: *denom, step: step, budget: limit}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := b.round(); err != nil {
				logger.Printf("round: %v", err)
				return
			}
		}
	}
}

// round walks every listing and bids on those the bot is not already winning.
func (b *bot) round() error {
	res, err := b.call(protocol.TypeQuery, map[string]any{"config": map[string]any{}}, nil)
	if err != nil {
		return err
	}
	var cfg contract.ConfigResponse
	if err := remarshal(res.Data, &cfg); err != nil {
		return err
	}
	for id := uint64(1); id <= cfg.ListingCount; id++ {
		lid := strconv.FormatUint(id, 10)
		res, err := b.call(protocol.TypeQuery, map[string]any{"resolve_listing": map[string]any{"id": lid}}, nil)
		if err != nil {
			return err
		}
		if !res.OK {
			continue
		}
		var l contract.ListingResponse
		if err := remarshal(res.Data, &l); err != nil {
			return err
		}
		if l.Phase != contract.PhaseActive || l.CurrentBidder == b.self || l.Seller == b.self {
			continue
		}
		next := b.step
		if l.CurrentBid != nil {
			if l.CurrentBid.Denom != b.denom {
				continue
			}
			next = l.CurrentBid.Amount.Add(b.step)
		}
		if next.GreaterThan(b.budget) {
			continue
		}
		bid := funds.Coin{Denom: b.denom, Amount: next}
		res, err = b.call(protocol.TypeExecute, map[string]any{"bid_listing": map[string]any{"listing_id": lid}}, funds.Coins{bid})
		if err != nil {
			return err
		}
		if res.OK {
			b.log.Printf("bid %s on listing %s (height=%d)", bid, lid, res.Height)
		} else {
			b.log.Printf("bid on listing %s rejected: %s %s", lid, res.Code, res.Message)
		}
	}
	return nil
}

// call sends one frame and waits for its RESULT. The bot keeps a single
// request outstanding so results arrive in order.
func (b *bot) call(typ string, msg any, coins funds.Coins) (protocol.ResultMsg, error) {
	b.seq++
	frame := map[string]any{
		"type":             typ,
		"protocol_version": protocol.Version,
		"req_id":           fmt.Sprintf("bot_%d", b.seq),
		"msg":              msg,
	}
	if len(coins) > 0 {
		frame["funds"] = coins
	}
	if err := b.conn.WriteJSON(frame); err != nil {
		return protocol.ResultMsg{}, err
	}
	var res protocol.ResultMsg
	if err := b.conn.ReadJSON(&res); err != nil {
		return res, err
	}
	return res, nil
}

func remarshal(in any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
