package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "github.com/Vaxity1/Aether/pkg/logx"
)

// notifyReady reports readiness to systemd and, when the unit configures a
// watchdog, starts the keepalive loop. Outside systemd both are no-ops.
func (a *App) notifyReady() {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		a.log.Debug("sd_notify failed", logx.Any("err", err))
		return
	}
	if !sent {
		return
	}
	a.log.Debug("sd_notify ready")

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("systemd watchdog probe failed", logx.Any("err", err))
		return
	}
	if interval <= 0 {
		return
	}

	// Ping at half the watchdog interval per the sd_watchdog contract.
	tick := interval / 2
	if tick < time.Second {
		tick = time.Second
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		t := time.NewTicker(tick)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
	a.log.Info("systemd watchdog armed", logx.Duration("interval", interval))
}

func (a *App) notifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}
