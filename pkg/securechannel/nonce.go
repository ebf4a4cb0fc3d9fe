package securechannel

import (
	"encoding/binary"
	"fmt"

	"github.com/ockam/ockam/pkg/ockamerror"
)

// nonceWindowSize is the width of the replay bitmap: an inbound counter
// within this many positions below the high watermark is accepted
// exactly once, matching the IPsec/WireGuard-style sliding window.
const nonceWindowSize = 64

// maxSendCounter is the first counter a sender may not use: next
// refuses it, so the channel must be torn down and re-established
// before the counter would wrap.
const maxSendCounter = 1 << 63

// sendNonce is a monotonic per-direction counter. The low 8 bytes of the
// 12-byte AES-GCM nonce carry it big-endian; the high 4 bytes are always
// zero.
type sendNonce struct {
	counter uint64
}

// next returns the counter and the 12-byte nonce for the next message
// and advances the counter, or an error once maxSendCounter would be
// exceeded.
func (n *sendNonce) next() (uint64, [12]byte, error) {
	if n.counter >= maxSendCounter {
		return 0, [12]byte{}, fmt.Errorf("securechannel: %w: send counter exhausted", ockamerror.ErrConsistencyError)
	}
	counter := n.counter
	n.counter++
	return counter, counterNonce(counter), nil
}

// counterNonce encodes counter into the low 8 bytes of a 12-byte
// AES-GCM nonce, the high 4 bytes always zero.
func counterNonce(counter uint64) [12]byte {
	var nonce [12]byte
	binary.BigEndian.PutUint64(nonce[4:], counter)
	return nonce
}

// counterAAD encodes counter as the 8-byte big-endian wire nonce, bound
// to every running-phase frame as additional authenticated data so a
// frame's counter can't be swapped for another without invalidating the
// AEAD tag.
func counterAAD(counter uint64) []byte {
	var aad [8]byte
	binary.BigEndian.PutUint64(aad[:], counter)
	return aad[:]
}

// replayWindow rejects any inbound counter it has already accepted
// within the last nonceWindowSize positions, without ever being fooled
// by an out-of-order-but-fresh counter arriving late.
type replayWindow struct {
	highest uint64
	seen    uint64 // bitmap: bit i set means highest-i has been accepted
	started bool
}

// wouldAccept reports whether counter falls within the acceptable
// window, without mutating any state. Callers must check this before
// spending an AEADOpen on the frame, and must call record only after
// that AEADOpen has actually succeeded — a frame that merely claims a
// fresh counter but fails authentication must never move the window.
func (w *replayWindow) wouldAccept(counter uint64) bool {
	if !w.started {
		return true
	}
	if counter > w.highest {
		return true
	}
	diff := w.highest - counter
	if diff >= nonceWindowSize {
		return false
	}
	bit := uint64(1) << diff
	return w.seen&bit == 0
}

// record marks counter as seen, advancing the high watermark if counter
// is the new highest. Must only be called after the corresponding
// AEADOpen has verified.
func (w *replayWindow) record(counter uint64) {
	if !w.started {
		w.started = true
		w.highest = counter
		w.seen = 1
		return
	}

	if counter > w.highest {
		shift := counter - w.highest
		if shift >= nonceWindowSize {
			w.seen = 0
		} else {
			w.seen <<= shift
		}
		w.seen |= 1
		w.highest = counter
		return
	}

	diff := w.highest - counter
	bit := uint64(1) << diff
	w.seen |= bit
}

// checkAndRecord is a convenience for tests and for callers with no
// AEAD step of their own to gate on (it is not used on the decrypt
// path, which must gate on AEADOpen success first).
func (w *replayWindow) checkAndRecord(counter uint64) error {
	if !w.wouldAccept(counter) {
		return fmt.Errorf("securechannel: %w: counter %d", ockamerror.ErrReplayDetected, counter)
	}
	w.record(counter)
	return nil
}
