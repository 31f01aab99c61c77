//go:build !linux

package app

import logx "heraldbot/pkg/logx"

func sdNotifyReady(logx.Logger)    {}
func sdNotifyStopping(logx.Logger) {}
