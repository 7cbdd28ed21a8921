package hook

import (
	"runtime"
	"testing"

	"golang.org/x/sync/errgroup"
)

// TestChainRaceInstallUninstall drives two installers and two uninstallers
// against a single shared VFT slot concurrently: installers keep producing
// hooks faster than the uninstallers can drain them, so at quiescence the
// slot carries a known-size residual chain built entirely under
// contention. Every hop in that residual chain must still carry the
// correct magic and the chain must still terminate at the untouched
// anchor, regardless of which of the installed hooks happened to be the
// ones removed.
func TestChainRaceInstallUninstall(t *testing.T) {
	const (
		installers     = 2
		perInstaller   = 300
		uninstallers   = 2
		perUninstaller = 200
	)

	capb := newMockCapability()
	chain := NewChain(capb)
	orig := newAnchor()
	slot := newFakeSlot(orig.addr())

	handles := make(chan *HookHandle, installers*perInstaller)

	var g errgroup.Group
	for i := 0; i < installers; i++ {
		g.Go(func() error {
			for j := 0; j < perInstaller; j++ {
				h, err := chain.Install(slot.addr(), uintptr(0x50000000+j), trivialTemplate())
				if err != nil {
					return err
				}
				handles <- h
			}
			return nil
		})
	}
	for i := 0; i < uninstallers; i++ {
		g.Go(func() error {
			for j := 0; j < perUninstaller; j++ {
				h := <-handles
				if err := h.Close(); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent install/uninstall: %v", err)
	}

	installed := installers * perInstaller
	uninstalled := uninstallers * perUninstaller
	wantResidual := installed - uninstalled

	bodies, original := chainBodies(slot.value())
	if original != orig.addr() {
		t.Fatalf("chain does not terminate at the original anchor: got %#x, want %#x", original, orig.addr())
	}
	if len(bodies) != wantResidual {
		t.Fatalf("residual chain length = %d, want %d (installed %d - uninstalled %d)",
			len(bodies), wantResidual, installed, uninstalled)
	}
	for _, b := range bodies {
		if got := magicAt(b); got != recordMagic {
			t.Errorf("chain hop %#x has magic %#x, want %#x", b, got, recordMagic)
		}
	}

	// Drain whatever installers produced but the uninstallers never
	// consumed, confirming every still-installed hook can still be cleanly
	// removed and the slot settles back to its original value with no
	// handle left dangling.
	close(handles)
	for h := range handles {
		if err := h.Close(); err != nil {
			t.Fatalf("draining residual handle: %v", err)
		}
	}

	if slot.value() != orig.addr() {
		t.Errorf("slot after full drain = %#x, want original anchor %#x", slot.value(), orig.addr())
	}

	runtime.KeepAlive(orig)
	runtime.KeepAlive(slot)
}

// TestChainRaceInstallUninstallPairs mirrors the stress scenario of four
// goroutines each performing its own install immediately followed by its
// own uninstall, repeatedly, against one shared slot. No goroutine ever
// holds a handle another goroutine touches, so this exercises contention
// on the shared slot and chain-head lookup without the bookkeeping of the
// producer/consumer split above.
func TestChainRaceInstallUninstallPairs(t *testing.T) {
	const (
		workers = 4
		pairs   = 500
	)

	capb := newMockCapability()
	chain := NewChain(capb)
	orig := newAnchor()
	slot := newFakeSlot(orig.addr())

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for j := 0; j < pairs; j++ {
				h, err := chain.Install(slot.addr(), uintptr(0x60000000+j), trivialTemplate())
				if err != nil {
					return err
				}
				if err := h.Close(); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent install/uninstall pairs: %v", err)
	}

	if slot.value() != orig.addr() {
		t.Errorf("slot after %d install/uninstall pairs = %#x, want original anchor %#x",
			workers*pairs, slot.value(), orig.addr())
	}

	runtime.KeepAlive(orig)
	runtime.KeepAlive(slot)
}
