// Package driver implements the top-level control loop for a download: it
// owns the piece manager, the tracker client, the shared peer queue, and a
// fixed pool of peer sessions, and announces to the tracker on the interval
// the tracker itself dictates.
package driver

import (
	"context"
	"log"
	"time"

	"torrentleech/internal/leecherr"
	"torrentleech/internal/metainfo"
	"torrentleech/internal/piece"
	"torrentleech/internal/session"
	"torrentleech/internal/tracker"
)

// DefaultSessions is the default pool size of concurrent peer sessions.
const DefaultSessions = 40

// defaultInterval is used until the tracker's first response supplies a
// real announce interval.
const defaultInterval = 30 * time.Minute

// pollInterval bounds how long the control loop sleeps between checks when
// it isn't yet time to announce, mirroring the original's asyncio.sleep(5).
const pollInterval = 5 * time.Second

// Config configures a Driver's session pool size and peer queue capacity.
type Config struct {
	Sessions  int
	QueueSize int
}

// DefaultConfig returns the Config used when the CLI doesn't override it.
func DefaultConfig() Config {
	return Config{Sessions: DefaultSessions, QueueSize: 200}
}

// Driver owns every long-lived piece of a single torrent download: the
// piece manager, the tracker client, the shared peer queue, and the pool of
// peer sessions pulling from it.
type Driver struct {
	pm       *piece.Manager
	tc       *tracker.Client
	queue    chan tracker.Peer
	sessions []*session.Session
	cancel   context.CancelFunc
}

// New builds a Driver for info, writing the completed download to
// outputPath.
func New(info *metainfo.Info, outputPath string, cfg Config) (*Driver, error) {
	if cfg.Sessions <= 0 {
		cfg.Sessions = DefaultSessions
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 200
	}

	fw, err := piece.OpenFileWriter(outputPath, info.TotalSize())
	if err != nil {
		return nil, err
	}
	pm := piece.NewManager(info, fw)
	tc := tracker.NewClient(info.Announce(), info.InfoHash(), info.TotalSize())

	queue := make(chan tracker.Peer, cfg.QueueSize)
	ourPeerID := tc.PeerID()

	sessions := make([]*session.Session, cfg.Sessions)
	for i := range sessions {
		sessions[i] = session.New(ourPeerID, info.InfoHash(), "")
	}

	return &Driver{pm: pm, tc: tc, queue: queue, sessions: sessions}, nil
}

// Manager exposes the underlying piece manager, e.g. for progress
// reporting.
func (d *Driver) Manager() *piece.Manager { return d.pm }

// Run starts every session worker and drives the announce loop until the
// download completes (returns nil) or ctx is cancelled (returns ctx.Err()).
func (d *Driver) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()
	defer d.teardown()

	for _, s := range d.sessions {
		go s.Run(ctx, d.queue, d.pm)
	}

	var previous time.Time
	interval := defaultInterval

	for {
		if d.pm.Complete() {
			log.Printf("[driver] download complete")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		now := time.Now()
		if previous.IsZero() || now.After(previous.Add(interval)) {
			first := previous.IsZero()
			if d.announce(first, &previous, &interval) {
				continue
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// announce performs one tracker round trip, draining and refilling the peer
// queue on success. Returns true if it made progress (so the caller can
// skip the poll sleep and recheck completion immediately).
func (d *Driver) announce(first bool, previous *time.Time, interval *time.Duration) bool {
	resp, err := d.tc.Connect(first, 0, d.pm.BytesDownloaded())
	if err != nil {
		if leecherr.Is(err, leecherr.TrackerFailure) {
			log.Printf("[driver] tracker announce failed, will retry: %v", err)
		} else {
			log.Printf("[driver] tracker announce error: %v", err)
		}
		return false
	}

	*previous = time.Now()
	if resp.Interval > 0 {
		*interval = time.Duration(resp.Interval) * time.Second
	}

	d.drainQueue()
	for _, p := range resp.Peers {
		select {
		case d.queue <- p:
		default:
			log.Printf("[driver] peer queue full, dropping %s", p)
		}
	}
	log.Printf("[driver] announce ok: %d peers, next interval %s", len(resp.Peers), interval.String())
	return true
}

func (d *Driver) drainQueue() {
	for {
		select {
		case <-d.queue:
		default:
			return
		}
	}
}

// Stop cancels the shared context used by Run (unwinding every session's
// blocked queue pull or connection attempt); Run then stops the sessions and
// releases the piece manager and tracker client before it returns. Stop has
// no effect before Run has started.
func (d *Driver) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Driver) teardown() {
	for _, s := range d.sessions {
		s.Stop()
	}
	if err := d.pm.Close(); err != nil {
		log.Printf("[driver] error closing output file: %v", err)
	}
	if err := d.tc.Close(); err != nil {
		log.Printf("[driver] error closing tracker client: %v", err)
	}
}
