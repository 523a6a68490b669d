package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"auctionhouse.ai/internal/auth"
	"auctionhouse.ai/internal/chain"
	"auctionhouse.ai/internal/protocol"
)

const (
	defaultOutQueue    = 32
	defaultMaxInflight = 8

	handshakeTimeout = 5 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 5 * time.Second
)

type Server struct {
	chain *chain.Chain
	auth  *auth.Authenticator
	log   *log.Logger

	// MaxInflight bounds concurrent EXECUTE frames per session.
	MaxInflight int

	upgrader websocket.Upgrader
}

func NewServer(c *chain.Chain, a *auth.Authenticator, logger *log.Logger) *Server {
	s := &Server{
		chain:       c,
		auth:        a,
		log:         logger,
		MaxInflight: defaultMaxInflight,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

type session struct {
	id        string
	principal string
	out       chan []byte
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		s.logf("session %s opened for %s", sess.id, sess.principal)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		maxInflight := s.MaxInflight
		if maxInflight <= 0 {
			maxInflight = defaultMaxInflight
		}
		inflight := make(chan struct{}, maxInflight)
		var wg sync.WaitGroup

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				s.send(ctx, sess, protocol.ErrorResult("", protocol.ErrBadRequest, "malformed frame"))
				continue
			}
			if base.ProtocolVersion != "" && base.ProtocolVersion != protocol.Version {
				s.send(ctx, sess, protocol.ErrorResult(base.ReqID, protocol.ErrBadRequest, "bad protocol_version"))
				continue
			}
			if err := protocol.Validate(base.Type, msg); err != nil {
				s.send(ctx, sess, protocol.ErrorResult(base.ReqID, protocol.ErrBadRequest, err.Error()))
				continue
			}

			switch base.Type {
			case protocol.TypeQuery:
				var q protocol.QueryMsg
				if err := json.Unmarshal(msg, &q); err != nil {
					s.send(ctx, sess, protocol.ErrorResult(base.ReqID, protocol.ErrBadRequest, err.Error()))
					continue
				}
				qm, err := q.DecodeQuery()
				if err != nil {
					s.send(ctx, sess, protocol.ErrorResult(q.ReqID, protocol.ErrBadRequest, err.Error()))
					continue
				}
				s.send(ctx, sess, s.chain.QueryResult(q.ReqID, qm))

			case protocol.TypeExecute:
				var ex protocol.ExecuteMsg
				if err := json.Unmarshal(msg, &ex); err != nil {
					s.send(ctx, sess, protocol.ErrorResult(base.ReqID, protocol.ErrBadRequest, err.Error()))
					continue
				}
				tx, err := chain.TxFromExecute(sess.principal, ex)
				if err != nil {
					s.send(ctx, sess, protocol.ErrorResult(ex.ReqID, protocol.ErrBadRequest, err.Error()))
					continue
				}
				select {
				case inflight <- struct{}{}:
				default:
					s.send(ctx, sess, protocol.ErrorResult(ex.ReqID, protocol.ErrBusy, "too many requests in flight"))
					continue
				}
				wg.Add(1)
				go func(reqID string, tx chain.Tx) {
					defer wg.Done()
					defer func() { <-inflight }()
					res, err := s.chain.Submit(ctx, tx)
					if err != nil {
						s.send(ctx, sess, protocol.ErrorResult(reqID, chain.CodeFor(err), err.Error()))
						return
					}
					s.send(ctx, sess, res.Result(reqID))
				}(ex.ReqID, tx)

			default:
				s.send(ctx, sess, protocol.ErrorResult(base.ReqID, protocol.ErrBadRequest, "unexpected frame type "+base.Type))
			}
		}

		// Cleanup.
		cancel()
		wg.Wait()
		s.logf("session %s closed", sess.id)
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
		return nil
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		_ = writeJSON(conn, protocol.ErrorResult("", protocol.ErrBadRequest, err.Error()))
		closeWith(conn, websocket.ClosePolicyViolation, "bad HELLO")
		return nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return nil
	}

	token := ""
	if hello.Auth != nil {
		token = strings.TrimSpace(hello.Auth.Token)
	}
	principal, err := s.auth.Verify(token)
	if err == nil {
		_, err = chain.ValidateAddress(principal)
	}
	if err != nil {
		_ = writeJSON(conn, protocol.ErrorResult("", protocol.ErrUnauthorized, err.Error()))
		closeWith(conn, websocket.ClosePolicyViolation, "unauthorized")
		return nil
	}

	sess := &session{
		id:        "s_" + uuid.NewString(),
		principal: principal,
		out:       make(chan []byte, defaultOutQueue),
	}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		Principal:       principal,
		ChainParams:     s.chain.Params(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	return sess
}

func (s *Server) send(ctx context.Context, sess *session, res protocol.ResultMsg) {
	b, err := json.Marshal(res)
	if err != nil {
		s.logf("marshal result %s: %v", res.ReqID, err)
		return
	}
	select {
	case sess.out <- b:
	case <-ctx.Done():
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
