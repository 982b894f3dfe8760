package vault

import "time"

// startAutoLock (re)arms the idle timer. Caller holds v.mu.
func (v *Vault) startAutoLock() {
	v.stopAutoLock()
	if v.autoLock <= 0 || v.sess == nil {
		return
	}
	gen := v.timerGen
	v.timer = time.AfterFunc(v.autoLock, func() { v.expire(gen) })
}

// stopAutoLock disarms the idle timer. A callback that already fired sees
// a newer generation and does nothing. Caller holds v.mu.
func (v *Vault) stopAutoLock() {
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	v.timerGen++
}

func (v *Vault) expire(gen uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if gen != v.timerGen || v.sess == nil {
		return
	}
	v.log.Info().Dur("idle", v.autoLock).Msg("Vault locked after inactivity")
	v.closeSession("auto_lock")
}

// Touch records activity and restarts the idle timer.
func (v *Vault) Touch() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.sess != nil {
		v.startAutoLock()
	}
}
