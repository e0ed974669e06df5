package tunnel

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/grovetools/weave/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	// mdnsService is the service type the daemon publishes and browses.
	mdnsService = "_terminal-manager._tcp"
	mdnsDomain  = "local."

	// BeaconPort is the UDP port the broadcast beacon uses.
	BeaconPort = 41832
	// beaconInterval is the send period.
	beaconInterval = 5 * time.Second
	// hostTimeout is the silence after which a discovered host is swept.
	hostTimeout = 20 * time.Second
	// sweepInterval is how often staleness is checked.
	sweepInterval = 5 * time.Second
)

// DiscoveryEvents receives host lifecycle notifications.
type DiscoveryEvents struct {
	OnHostFound func(models.PeerHost)
	OnHostLost  func(instanceID string)
}

// Discovery publishes the local instance over mDNS and a UDP broadcast
// beacon, consumes both channels, and sweeps hosts that stop announcing.
type Discovery struct {
	identity models.Identity
	port     int
	events   DiscoveryEvents
	logger   *logrus.Entry

	mu       sync.Mutex
	hosts    map[string]*models.PeerHost
	lastSeen map[string]time.Time

	mdnsServer *zeroconf.Server
	udpConn    *net.UDPConn
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewDiscovery creates a Discovery for the local identity. port is the peer
// server's listen port, announced in both channels.
func NewDiscovery(identity models.Identity, port int, events DiscoveryEvents, logger *logrus.Entry) *Discovery {
	return &Discovery{
		identity: identity,
		port:     port,
		events:   events,
		logger:   logger,
		hosts:    make(map[string]*models.PeerHost),
		lastSeen: make(map[string]time.Time),
	}
}

// Start brings up both discovery channels. A beacon socket failure logs and
// continues without the beacon; mDNS failure likewise. Discovery with both
// channels down still works for reverse discovery through the server.
func (d *Discovery) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	d.startMDNS(ctx)
	d.startBeacon(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.sweep()
			}
		}
	}()
}

// Stop shuts down publication and browsing.
func (d *Discovery) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.mdnsServer != nil {
		d.mdnsServer.Shutdown()
	}
	if d.udpConn != nil {
		_ = d.udpConn.Close()
	}
	d.wg.Wait()
}

func (d *Discovery) startMDNS(ctx context.Context) {
	txt := []string{
		"instanceId=" + d.identity.InstanceID,
		"hostname=" + d.identity.Hostname,
		"identityHash=" + d.identity.IdentityHash,
	}
	server, err := zeroconf.Register("weave-"+d.identity.InstanceID, mdnsService, mdnsDomain, d.port, txt, nil)
	if err != nil {
		d.logger.WithError(err).Warn("Failed to publish mDNS service")
	} else {
		d.mdnsServer = server
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		d.logger.WithError(err).Warn("Failed to create mDNS resolver")
		return
	}

	entries := make(chan *zeroconf.ServiceEntry)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for entry := range entries {
			d.handleMDNSEntry(entry)
		}
	}()
	if err := resolver.Browse(ctx, mdnsService, mdnsDomain, entries); err != nil {
		d.logger.WithError(err).Warn("Failed to browse mDNS")
	}
}

func (d *Discovery) handleMDNSEntry(entry *zeroconf.ServiceEntry) {
	attrs := parseTXT(entry.Text)
	host := models.PeerHost{
		InstanceID:   attrs["instanceId"],
		Hostname:     attrs["hostname"],
		IdentityHash: attrs["identityHash"],
		Address:      pickAddress(entry.AddrIPv4),
		Port:         entry.Port,
		Status:       models.HostDiscovered,
	}
	d.observe(host)
}

// parseTXT decodes key=value TXT attributes.
func parseTXT(txt []string) map[string]string {
	attrs := make(map[string]string, len(txt))
	for _, kv := range txt {
		if idx := strings.Index(kv, "="); idx > 0 {
			attrs[kv[:idx]] = kv[idx+1:]
		}
	}
	return attrs
}

// pickAddress prefers a routable IPv4 address: not loopback, not link-local.
func pickAddress(addrs []net.IP) string {
	var fallback string
	for _, ip := range addrs {
		v4 := ip.To4()
		if v4 == nil {
			continue
		}
		if fallback == "" {
			fallback = v4.String()
		}
		if !v4.IsLoopback() && !v4.IsLinkLocalUnicast() {
			return v4.String()
		}
	}
	return fallback
}

func (d *Discovery) startBeacon(ctx context.Context) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: BeaconPort})
	if err != nil {
		d.logger.WithError(err).Warn("Failed to bind beacon socket, continuing without beacon")
		return
	}
	if err := setBroadcast(conn); err != nil {
		d.logger.WithError(err).Debug("Failed to enable SO_BROADCAST")
	}
	d.udpConn = conn

	// Receiver
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		buf := make([]byte, 2048)
		for {
			n, sender, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			d.handleBeacon(buf[:n], sender)
		}
	}()

	// Sender
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.sendBeacon(conn)
		ticker := time.NewTicker(beaconInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.sendBeacon(conn)
			}
		}
	}()
}

// setBroadcast enables SO_BROADCAST on the beacon socket.
func setBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// sendBeacon broadcasts the presence payload to every interface's directed
// broadcast address and to the limited broadcast address. Per-send errors
// are swallowed; the network may transiently reject broadcast.
func (d *Discovery) sendBeacon(conn *net.UDPConn) {
	payload, err := json.Marshal(Beacon{
		Magic:        BeaconMagic,
		InstanceID:   d.identity.InstanceID,
		Hostname:     d.identity.Hostname,
		IdentityHash: d.identity.IdentityHash,
		Port:         d.port,
	})
	if err != nil {
		return
	}

	for _, addr := range broadcastAddresses() {
		if _, err := conn.WriteToUDP(payload, &net.UDPAddr{IP: addr, Port: BeaconPort}); err != nil {
			d.logger.WithError(err).WithField("addr", addr.String()).Debug("Beacon send failed")
		}
	}
}

// broadcastAddresses returns each up interface's directed IPv4 broadcast
// address plus 255.255.255.255.
func broadcastAddresses() []net.IP {
	addrs := []net.IP{net.IPv4bcast}
	ifaces, err := net.Interfaces()
	if err != nil {
		return addrs
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		ifaceAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range ifaceAddrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			v4 := ipnet.IP.To4()
			if v4 == nil {
				continue
			}
			mask := ipnet.Mask
			if len(mask) == 16 {
				mask = mask[12:]
			}
			bcast := make(net.IP, 4)
			for i := 0; i < 4; i++ {
				bcast[i] = v4[i] | ^mask[i]
			}
			addrs = append(addrs, bcast)
		}
	}
	return addrs
}

// handleBeacon processes one received datagram. The sender IP is used as
// the host address directly; loopback senders are accepted so two daemons
// on one machine can pair.
func (d *Discovery) handleBeacon(payload []byte, sender *net.UDPAddr) {
	var beacon Beacon
	if err := json.Unmarshal(payload, &beacon); err != nil {
		return
	}
	if beacon.Magic != BeaconMagic {
		return
	}
	d.observe(models.PeerHost{
		InstanceID:   beacon.InstanceID,
		Hostname:     beacon.Hostname,
		IdentityHash: beacon.IdentityHash,
		Address:      sender.IP.String(),
		Port:         beacon.Port,
		Status:       models.HostDiscovered,
	})
}

// observe admits a host sighting: own instance and foreign identities are
// ignored; known hosts get their last-seen refreshed. A discovery update
// never overwrites connecting/connected status.
func (d *Discovery) observe(host models.PeerHost) {
	if host.InstanceID == "" || host.InstanceID == d.identity.InstanceID {
		return
	}
	if host.IdentityHash != d.identity.IdentityHash {
		return
	}

	d.mu.Lock()
	d.lastSeen[host.InstanceID] = time.Now()
	existing, known := d.hosts[host.InstanceID]
	if known {
		existing.Address = host.Address
		existing.Port = host.Port
		existing.Hostname = host.Hostname
		d.mu.Unlock()
		return
	}
	d.hosts[host.InstanceID] = &host
	d.mu.Unlock()

	d.logger.WithFields(logrus.Fields{"instanceId": host.InstanceID, "addr": host.Address}).Info("Host found")
	if d.events.OnHostFound != nil {
		d.events.OnHostFound(host)
	}
}

// RegisterHost force-admits a host, used for reverse discovery when the
// server accepts a connection from a peer whose own announcements are
// blocked.
func (d *Discovery) RegisterHost(host models.PeerHost) {
	d.observe(host)
}

// SetStatus updates a known host's connection status and refreshes its
// last-seen time so an in-flight connection is not swept mid-handshake.
func (d *Discovery) SetStatus(instanceID string, status models.HostStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if host, ok := d.hosts[instanceID]; ok {
		host.Status = status
		d.lastSeen[instanceID] = time.Now()
	}
}

// Hosts returns a snapshot of known hosts.
func (d *Discovery) Hosts() []models.PeerHost {
	d.mu.Lock()
	defer d.mu.Unlock()
	result := make([]models.PeerHost, 0, len(d.hosts))
	for _, host := range d.hosts {
		result = append(result, *host)
	}
	return result
}

// Get returns one host by instance id.
func (d *Discovery) Get(instanceID string) (models.PeerHost, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	host, ok := d.hosts[instanceID]
	if !ok {
		return models.PeerHost{}, false
	}
	return *host, true
}

// sweep removes hosts that have gone silent past the timeout. Hosts in
// connecting or connected state persist until the transport signals
// disconnect.
func (d *Discovery) sweep() {
	now := time.Now()
	var lost []string

	d.mu.Lock()
	for id, host := range d.hosts {
		if host.Status == models.HostConnecting || host.Status == models.HostConnected {
			continue
		}
		if seen, ok := d.lastSeen[id]; ok && now.Sub(seen) > hostTimeout {
			delete(d.hosts, id)
			delete(d.lastSeen, id)
			lost = append(lost, id)
		}
	}
	d.mu.Unlock()

	for _, id := range lost {
		d.logger.WithField("instanceId", id).Info("Host lost")
		if d.events.OnHostLost != nil {
			d.events.OnHostLost(id)
		}
	}
}
