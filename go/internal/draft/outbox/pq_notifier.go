package outbox

import (
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// PQNotifier adapts a lib/pq LISTEN connection to Notifier.
type PQNotifier struct {
	listener *pq.Listener
	out      chan string
}

func NewPQNotifier(databaseURL, channel string) (*PQNotifier, error) {
	l := pq.NewListener(
		databaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(channel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", channel).
		Msg("listening for notifications")

	n := &PQNotifier{listener: l, out: make(chan string, 64)}
	go n.pump()
	return n, nil
}

func (n *PQNotifier) pump() {
	defer close(n.out)
	for note := range n.listener.Notify {
		if note == nil {
			// nil notification means the connection was lost and re-established
			n.out <- ""
			continue
		}
		n.out <- note.Extra
	}
}

func (n *PQNotifier) Notify() <-chan string { return n.out }

func (n *PQNotifier) Ping() error { return n.listener.Ping() }

func (n *PQNotifier) Close() error { return n.listener.Close() }
