// Package pib implements the MAC sublayer's PAN Information Base: the
// durable attribute store IEEE 802.15.4-2020 clause 8.4.3 describes,
// shared between the CSMA and TSCH engines as the source of their default
// backoff/timing parameters and the record of a device's association
// state.
package pib

import (
	"sync"
	"time"

	"github.com/gowpan/dot15d4/frame"
)

// Default attribute values, matching the standard's defaults for an
// unassociated device.
const (
	DefaultMinBE           = 0
	DefaultMaxBE           = 8
	DefaultMaxCSMABackoffs = 16
	DefaultMaxFrameRetries = 3
	DefaultSifsPeriod      = time.Millisecond
	DefaultLifsPeriod      = 10 * time.Millisecond
	// DefaultPANID, like the unassigned short address below, is the
	// broadcast/unassigned sentinel 0xffff, carried until an association
	// assigns real values.
	DefaultPANID uint16 = 0xffff
)

var unassignedShortAddress = frame.ShortAddress([2]byte{0xff, 0xff})

// Pib holds one device's MAC attributes: its own addressing, its
// coordinator's addressing once associated, association state, and the
// CSMA/CA and inter-frame-spacing parameters the engines read their
// defaults from. All access is synchronized; engines on different
// goroutines (the TSCH scheduler, a CSMA Send call) read and update it
// concurrently.
type Pib struct {
	mu sync.RWMutex

	extendedAddress frame.Address
	shortAddress    frame.Address
	panID           uint16

	coordExtendedAddress frame.Address
	coordShortAddress    frame.Address
	associatedPANCoord   bool
	associationPermit    bool

	minBE           int
	maxBE           int
	maxFrameRetries int
	maxCSMABackoffs int

	sifsPeriod time.Duration
	lifsPeriod time.Duration

	promiscuousMode     bool
	rxOnWhenIdle        bool
	enhancedBeaconOrder uint8
}

// New builds a Pib carrying the standard's defaults: no extended address
// assigned, short address and PAN ID at the unassigned sentinel 0xffff,
// and the default CSMA backoff/retry/inter-frame-spacing parameters.
func New() *Pib {
	return &Pib{
		shortAddress:      unassignedShortAddress,
		panID:             DefaultPANID,
		coordShortAddress: unassignedShortAddress,
		minBE:             DefaultMinBE,
		maxBE:             DefaultMaxBE,
		maxFrameRetries:   DefaultMaxFrameRetries,
		maxCSMABackoffs:   DefaultMaxCSMABackoffs,
		sifsPeriod:        DefaultSifsPeriod,
		lifsPeriod:        DefaultLifsPeriod,
	}
}

// ExtendedAddress returns the device's own extended (EUI-64) address, or
// the absent address if none has been assigned.
func (p *Pib) ExtendedAddress() frame.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.extendedAddress
}

// SetExtendedAddress assigns the device's extended address. Normally set
// once at startup from hardware configuration, not by the join flow.
func (p *Pib) SetExtendedAddress(a frame.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extendedAddress = a
}

// ShortAddress returns the device's own short address, 0xffff until one
// has been assigned by an association.
func (p *Pib) ShortAddress() frame.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.shortAddress
}

// PANID returns the PAN this device currently belongs to.
func (p *Pib) PANID() uint16 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.panID
}

// CoordAddresses returns the associated PAN coordinator's extended and
// short addresses as last recorded by Associate. Before any association and
// after Disassociate, the extended address is absent and the short address
// is the unassigned sentinel 0xffff.
func (p *Pib) CoordAddresses() (extended, short frame.Address) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.coordExtendedAddress, p.coordShortAddress
}

// AssociatedPANCoord reports whether this device is currently associated
// with a PAN coordinator.
func (p *Pib) AssociatedPANCoord() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.associatedPANCoord
}

// AssociationPermit reports whether this device, acting as coordinator,
// currently accepts association requests.
func (p *Pib) AssociationPermit() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.associationPermit
}

// SetAssociationPermit toggles whether this device accepts association
// requests while acting as a coordinator.
func (p *Pib) SetAssociationPermit(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.associationPermit = v
}

// Associate records a successful association with a PAN coordinator: the
// adopted PAN ID, the coordinator's address (extended, short, or both —
// pass the absent address for whichever was not learned), and, if the
// association assigned one, this device's own short address.
func (p *Pib) Associate(panID uint16, coordExtended, coordShort, ownShort frame.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.panID = panID
	p.coordExtendedAddress = coordExtended
	p.coordShortAddress = coordShort
	p.associatedPANCoord = true
	if !ownShort.IsAbsent() {
		p.shortAddress = ownShort
	}
}

// Disassociate clears association state back to its unassociated
// defaults; PAN ID and own short address are left as-is, matching the
// standard's MLME-DISASSOCIATE behavior of not forgetting the device's own
// addressing.
func (p *Pib) Disassociate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.associatedPANCoord = false
	p.coordExtendedAddress = frame.AbsentAddress
	p.coordShortAddress = unassignedShortAddress
}

// CSMAParams returns the backoff-exponent bounds and the retry/backoff
// budgets CSMA/CA should use.
func (p *Pib) CSMAParams() (minBE, maxBE, maxFrameRetries, maxCSMABackoffs int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.minBE, p.maxBE, p.maxFrameRetries, p.maxCSMABackoffs
}

// SetCSMAParams overrides the backoff-exponent bounds and retry/backoff
// budgets, as an MLME-SET.request would.
func (p *Pib) SetCSMAParams(minBE, maxBE, maxFrameRetries, maxCSMABackoffs int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minBE, p.maxBE, p.maxFrameRetries, p.maxCSMABackoffs = minBE, maxBE, maxFrameRetries, maxCSMABackoffs
}

// InterFrameSpacing returns the short and long inter-frame spacing
// durations.
func (p *Pib) InterFrameSpacing() (sifs, lifs time.Duration) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sifsPeriod, p.lifsPeriod
}

// SetInterFrameSpacing overrides the short and long inter-frame spacing
// durations.
func (p *Pib) SetInterFrameSpacing(sifs, lifs time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sifsPeriod, p.lifsPeriod = sifs, lifs
}

// PromiscuousMode reports whether the device passes all received frames up
// regardless of address filtering.
func (p *Pib) PromiscuousMode() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.promiscuousMode
}

// SetPromiscuousMode toggles promiscuous mode.
func (p *Pib) SetPromiscuousMode(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.promiscuousMode = v
}

// RxOnWhenIdle reports whether the receiver should stay enabled outside of
// a scheduled link occurrence or CSMA transaction.
func (p *Pib) RxOnWhenIdle() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rxOnWhenIdle
}

// SetRxOnWhenIdle toggles whether the receiver stays enabled when idle.
func (p *Pib) SetRxOnWhenIdle(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rxOnWhenIdle = v
}

// EnhancedBeaconOrder returns the exponent controlling how often this
// device, acting as coordinator, transmits Enhanced Beacons.
func (p *Pib) EnhancedBeaconOrder() uint8 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enhancedBeaconOrder
}

// SetEnhancedBeaconOrder sets the Enhanced Beacon transmission order.
func (p *Pib) SetEnhancedBeaconOrder(v uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enhancedBeaconOrder = v
}
