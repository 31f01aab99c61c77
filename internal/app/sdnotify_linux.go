//go:build linux

package app

import (
	"github.com/coreos/go-systemd/v22/daemon"

	logx "heraldbot/pkg/logx"
)

// sdNotifyReady tells systemd the service is up (Type=notify units). A false
// return just means no notification socket; that is normal outside systemd.
func sdNotifyReady(log logx.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		log.Warn("sd_notify failed", logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify: ready")
	}
}

func sdNotifyStopping(log logx.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		log.Warn("sd_notify failed", logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify: stopping")
	}
}
