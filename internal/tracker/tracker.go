// Package tracker implements the HTTP tracker announce client: building the
// announce query, decoding the bencoded response, and unpacking the
// compact peer list.
package tracker

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"torrentleech/internal/bencode"
	"torrentleech/internal/leecherr"
)

const (
	peerIDSize   = 20
	peerIDPrefix = "-LC0001-"
	listenPort   = "6889"
)

// Peer is one entry of a tracker's compact peer list.
type Peer struct {
	IP   net.IP
	Port uint16
}

// String renders the peer as "ip:port", the form used for dialing and for
// a session's self-address check.
func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// Response is the decoded tracker announce reply.
type Response struct {
	Failure            string
	Interval           int
	Complete, Incomplete int
	Peers              []Peer
}

// Client issues HTTP announce requests against a single torrent's tracker.
// peer_id is generated once at construction, per the design note that it
// must stay stable for the client's lifetime.
type Client struct {
	announceURL string
	peerID      [peerIDSize]byte
	infoHash    [20]byte
	totalSize   int64
	http        *http.Client
}

// NewClient builds a Client for one torrent's announce URL/info hash/total
// size triple.
func NewClient(announceURL string, infoHash [20]byte, totalSize int64) *Client {
	return &Client{
		announceURL: announceURL,
		peerID:      generatePeerID(),
		infoHash:    infoHash,
		totalSize:   totalSize,
		http:        &http.Client{Timeout: 15 * time.Second},
	}
}

// generatePeerID builds an Azureus-style peer id: an 8-byte client/version
// prefix followed by 12 ASCII digits drawn from a UUID's entropy.
func generatePeerID() [peerIDSize]byte {
	var id [peerIDSize]byte
	copy(id[:], peerIDPrefix)

	u := uuid.New()
	copy(id[len(peerIDPrefix):], asciiDigitsFromUUID(u.String(), peerIDSize-len(peerIDPrefix)))
	return id
}

// asciiDigitsFromUUID derives n ASCII decimal digits from a UUID's hex
// representation, discarding non-digit characters and padding with zeros
// if the UUID didn't supply enough.
func asciiDigitsFromUUID(uuidStr string, n int) []byte {
	out := make([]byte, 0, n)
	for i := 0; i < len(uuidStr) && len(out) < n; i++ {
		c := uuidStr[i]
		if c >= '0' && c <= '9' {
			out = append(out, c)
		}
	}
	for len(out) < n {
		out = append(out, '0')
	}
	return out
}

// PeerID returns this client's 20-byte peer id.
func (c *Client) PeerID() [peerIDSize]byte { return c.peerID }

// Connect performs one announce. first controls whether event=started is
// sent; uploaded/downloaded are cumulative byte counts.
func (c *Client) Connect(first bool, uploaded, downloaded int64) (*Response, error) {
	left := c.totalSize - downloaded
	if left < 0 {
		left = 0
	}

	u, err := url.Parse(c.announceURL)
	if err != nil {
		return nil, leecherr.New(leecherr.TrackerFailure, "tracker.Client.Connect", fmt.Errorf("parsing announce URL: %w", err))
	}

	q := url.Values{}
	q.Set("info_hash", string(c.infoHash[:]))
	q.Set("peer_id", string(c.peerID[:]))
	q.Set("port", listenPort)
	q.Set("uploaded", strconv.FormatInt(uploaded, 10))
	q.Set("downloaded", strconv.FormatInt(downloaded, 10))
	q.Set("left", strconv.FormatInt(left, 10))
	q.Set("compact", "1")
	if first {
		q.Set("event", "started")
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, leecherr.New(leecherr.TrackerFailure, "tracker.Client.Connect", err)
	}
	req.Header.Set("User-Agent", "torrentleech/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, leecherr.New(leecherr.TrackerFailure, "tracker.Client.Connect", fmt.Errorf("GET %s: %w", u.Host, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, leecherr.New(leecherr.TrackerFailure, "tracker.Client.Connect",
			fmt.Errorf("tracker returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, leecherr.New(leecherr.TrackerFailure, "tracker.Client.Connect", fmt.Errorf("reading response: %w", err))
	}

	if bytes.Contains(body, []byte("failure")) {
		// still attempt to pull a structured failure reason; fall back to
		// the raw body if decoding fails.
		if val, decErr := bencode.Decode(body); decErr == nil {
			if reason, rerr := val.GetString("failure reason"); rerr == nil {
				return nil, leecherr.New(leecherr.TrackerFailure, "tracker.Client.Connect",
					fmt.Errorf("tracker failure: %s", reason))
			}
		}
	}

	return decodeResponse(body)
}

func decodeResponse(body []byte) (*Response, error) {
	val, err := bencode.Decode(body)
	if err != nil {
		return nil, leecherr.New(leecherr.Codec, "tracker.decodeResponse", err)
	}
	if val.Kind != bencode.KindDict {
		return nil, leecherr.New(leecherr.Codec, "tracker.decodeResponse", fmt.Errorf("tracker response is not a dictionary"))
	}

	resp := &Response{}

	if reason, rerr := val.GetString("failure reason"); rerr == nil {
		resp.Failure = string(reason)
		return nil, leecherr.New(leecherr.TrackerFailure, "tracker.decodeResponse", fmt.Errorf("tracker failure: %s", resp.Failure))
	}

	if interval, ierr := val.GetInt("interval"); ierr == nil {
		resp.Interval = int(interval)
	}
	if complete, cerr := val.GetInt("complete"); cerr == nil {
		resp.Complete = int(complete)
	}
	if incomplete, ierr := val.GetInt("incomplete"); ierr == nil {
		resp.Incomplete = int(incomplete)
	}

	peersVal, ok := val.Get("peers")
	if !ok {
		return resp, nil
	}
	if peersVal.Kind != bencode.KindBytes {
		return nil, leecherr.New(leecherr.Codec, "tracker.decodeResponse",
			fmt.Errorf("peers field is a %s, want compact byte string (list-of-dictionaries form is not supported)", peersVal.Kind))
	}

	peers, err := decodeCompactPeers(peersVal.Bytes)
	if err != nil {
		return nil, err
	}
	resp.Peers = peers
	return resp, nil
}

const compactPeerSize = 6

func decodeCompactPeers(raw []byte) ([]Peer, error) {
	if len(raw)%compactPeerSize != 0 {
		return nil, leecherr.New(leecherr.Codec, "tracker.decodeCompactPeers",
			fmt.Errorf("peers length %d is not a multiple of %d", len(raw), compactPeerSize))
	}
	peers := make([]Peer, 0, len(raw)/compactPeerSize)
	for i := 0; i < len(raw); i += compactPeerSize {
		chunk := raw[i : i+compactPeerSize]
		ip := net.IPv4(chunk[0], chunk[1], chunk[2], chunk[3])
		port := uint16(chunk[4])<<8 | uint16(chunk[5])
		peers = append(peers, Peer{IP: ip, Port: port})
	}
	return peers, nil
}

// Close releases the client's idle HTTP connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
