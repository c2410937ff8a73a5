package net

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"unlimited/internal/engine"
	"unlimited/internal/utils"
)

const (
	maxRecvSize        = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// ClientSession contains relevant information pertaining to an individual
// connected TCP session.
type ClientSession struct {
	conn net.Conn
}

// ClientMessage links a parsed message to the client sending it, under a
// fresh correlation id.
type ClientMessage struct {
	clientAddress string
	requestID     uuid.UUID
	message       Message
}

// Engine is the order-handling surface the server drives. All calls happen
// from the single session-handler goroutine, which is what serializes the
// engine.
type Engine interface {
	MakeOrder(owner string, aAmt, bAmt *big.Int, sellingA bool, positionHint uint64) (uint64, error)
	Take(owner string, amt *big.Int, spendingA bool) (*big.Int, error)
	ImmediateOrCancel(owner string, aAmt, bAmt *big.Int, sellingA bool) (*big.Int, *big.Int, error)
	FillOrKill(owner string, aAmt, bAmt *big.Int, sellingA bool) (*big.Int, *big.Int, error)
	Cancel(owner string, id uint64) error
	Depth(side engine.Side, maxLevels int) ([]engine.DepthLevel, error)
}

type Server struct {
	address            string
	port               int
	engine             Engine
	pool               utils.WorkerPool
	cancel             context.CancelFunc
	clientSessions     map[string]ClientSession
	clientSessionsLock sync.Mutex
	clientMessages     chan ClientMessage
}

func New(address string, port int, eng Engine) *Server {
	return &Server{
		address:        address,
		port:           port,
		engine:         eng,
		pool:           utils.NewWorkerPool(defaultNWorkers),
		clientSessions: make(map[string]ClientSession),
		clientMessages: make(chan ClientMessage, 1),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	s.cancel()
}

func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	// Setup a cancel on the context for future shutdown.
	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	// Start a tcp listener.
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	// Start the worker pool.
	s.pool.Setup(t, s.handleConnection)

	// Start the session handler.
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Str("address", s.address).Int("port", s.port).Msg("server running")

	// Start accepting connections.
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("error accepting client")
				continue
			}

			log.Info().
				Str("address", conn.RemoteAddr().String()).
				Msg("new client added")
			// Add the client to client sessions we are tracking.
			// We expect to potentially maintain a long TCP session.
			s.addClientSession(conn)

			// Pass over the connection to be read from.
			s.pool.AddTask(conn)
		}
	}
}

// sessionHandler reads off incoming messages from clients one at a time and
// drives the engine. Being the only goroutine touching the engine, it is
// the serial execution host every public engine call assumes.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			if err := s.handleMessage(message); err != nil {
				log.Error().
					Err(err).
					Str("clientAddress", message.clientAddress).
					Str("requestID", message.requestID.String()).
					Msg("error handling message")
				s.reportError(message, err)
			}
		}
	}
}

func (s *Server) handleMessage(message ClientMessage) error {
	switch m := message.message.(type) {
	case BaseMessage:
		if m.TypeOf != Heartbeat {
			return ErrInvalidMessageType
		}
		return nil
	case MakeOrderMessage:
		id, err := s.engine.MakeOrder(
			m.Owner,
			new(big.Int).SetUint64(m.AAmt),
			new(big.Int).SetUint64(m.BAmt),
			m.SellingA,
			m.PositionHint,
		)
		if err != nil {
			return err
		}
		return s.report(message, Report{Op: MakeOrder, OrderID: id})
	case TakeMessage:
		rem, err := s.engine.Take(m.Owner, new(big.Int).SetUint64(m.Amt), m.SpendingA)
		if err != nil {
			return err
		}
		return s.report(message, Report{Op: Take, Remaining: truncU64(rem)})
	case ImmediateMessage:
		var aUsed, bUsed *big.Int
		var err error
		aAmt := new(big.Int).SetUint64(m.AAmt)
		bAmt := new(big.Int).SetUint64(m.BAmt)
		if m.TypeOf == FillOrKill {
			aUsed, bUsed, err = s.engine.FillOrKill(m.Owner, aAmt, bAmt, m.SellingA)
		} else {
			aUsed, bUsed, err = s.engine.ImmediateOrCancel(m.Owner, aAmt, bAmt, m.SellingA)
		}
		if err != nil {
			return err
		}
		return s.report(message, Report{
			Op:    m.TypeOf,
			AUsed: truncU64(aUsed),
			BUsed: truncU64(bUsed),
		})
	case CancelOrderMessage:
		if err := s.engine.Cancel(m.Owner, m.OrderID); err != nil {
			return err
		}
		return s.report(message, Report{Op: CancelOrder, OrderID: m.OrderID})
	case DepthMessage:
		levels, err := s.engine.Depth(m.Side, int(m.MaxLevels))
		if err != nil {
			return err
		}
		return s.send(message.clientAddress, serializeDepth(message.requestID, levels))
	default:
		log.Error().
			Int("messageType", int(message.message.GetType())).
			Msg("invalid message type")
		return ErrInvalidMessageType
	}
}

func (s *Server) report(message ClientMessage, r Report) error {
	r.MessageType = ExecutionReport
	r.RequestID = message.requestID
	return s.send(message.clientAddress, r.Serialize())
}

func (s *Server) reportError(message ClientMessage, cause error) {
	r := Report{
		MessageType: ErrorReport,
		Op:          message.message.GetType(),
		RequestID:   message.requestID,
		ErrStrLen:   uint16(len(cause.Error())),
		Err:         cause.Error(),
	}
	if err := s.send(message.clientAddress, r.Serialize()); err != nil {
		log.Error().
			Err(err).
			Str("clientAddress", message.clientAddress).
			Msg("unable to send error report")
	}
}

func (s *Server) send(clientAddress string, payload []byte) error {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	client, ok := s.clientSessions[clientAddress]
	if !ok {
		return ErrClientDoesNotExist
	}
	if _, err := client.conn.Write(payload); err != nil {
		delete(s.clientSessions, clientAddress)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

// handleConnection is a short-lived worker method which reads the next
// message off the connection, parses it and passes it forward to
// sessionHandler. If the connection dies, the client session is cleaned up.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	// Set max read timeout so a dead tomb is noticed.
	if err := conn.SetReadDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().
			Str("address", conn.RemoteAddr().String()).
			Err(err).
			Msg("failed setting deadline for connection")
		return nil
	}

	buffer := make([]byte, maxRecvSize)
	select {
	case <-t.Dying():
		_ = conn.Close()
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				// Idle connection, give it back to the pool.
				s.pool.AddTask(conn)
				return nil
			}
			// If a read from a client fails, it is likely that the client
			// has exited. Clean up the client session.
			s.deleteClientSession(conn.RemoteAddr().String())
			_ = conn.Close()
			return nil
		}

		message, err := parseMessage(buffer[:n])
		requestID := uuid.New()
		if err != nil {
			log.Error().
				Err(err).
				Str("address", conn.RemoteAddr().String()).
				Msg("error parsing message")
			s.reportError(ClientMessage{
				clientAddress: conn.RemoteAddr().String(),
				requestID:     requestID,
				message:       BaseMessage{},
			}, err)
			s.pool.AddTask(conn)
			return nil
		}

		// Pass over to the message handling buffer and exit this worker.
		s.clientMessages <- ClientMessage{
			clientAddress: conn.RemoteAddr().String(),
			requestID:     requestID,
			message:       message,
		}

		// Push the client connection back to handle the next message.
		s.pool.AddTask(conn)
	}
	return nil
}

// addClientSession is an atomic map add
func (s *Server) addClientSession(conn net.Conn) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	s.clientSessions[conn.RemoteAddr().String()] = ClientSession{
		conn: conn,
	}
}

// deleteClientSession is an atomic map remove
func (s *Server) deleteClientSession(address string) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	delete(s.clientSessions, address)
}
