package feed

import (
	"fmt"

	"github.com/go-stomp/stomp/v3"

	"github.com/signalshift-data/internal/common/config"
)

type stompSession struct {
	conn *stomp.Conn
	sub  *stomp.Subscription
}

// DialSTOMP connects with heart-beating and opens a durable auto-ack
// subscription on the configured topic.
func DialSTOMP(cfg config.FeedConfig) (Session, error) {
	conn, err := stomp.Dial("tcp", cfg.Address(),
		stomp.ConnOpt.Login(cfg.Username, cfg.Password),
		stomp.ConnOpt.HeartBeat(cfg.HeartBeat, cfg.HeartBeat),
		stomp.ConnOpt.HeartBeatError(cfg.HeartBeat),
		stomp.ConnOpt.Header("client-id", cfg.ClientID),
	)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", cfg.Address(), err)
	}

	sub, err := conn.Subscribe(cfg.Destination(), stomp.AckAuto,
		stomp.SubscribeOpt.Id(cfg.ClientID),
		stomp.SubscribeOpt.Header("activemq.subscriptionName", cfg.ClientID),
	)
	if err != nil {
		_ = conn.Disconnect()
		return nil, fmt.Errorf("subscribing to %s: %w", cfg.Destination(), err)
	}

	return &stompSession{conn: conn, sub: sub}, nil
}

func (s *stompSession) Messages() <-chan *stomp.Message {
	return s.sub.C
}

func (s *stompSession) Close() error {
	unsubErr := s.sub.Unsubscribe()
	if err := s.conn.Disconnect(); err != nil {
		return fmt.Errorf("disconnecting: %w", err)
	}
	if unsubErr != nil {
		return fmt.Errorf("unsubscribing: %w", unsubErr)
	}
	return nil
}
