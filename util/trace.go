package util

import (
	"time"

	"go.uber.org/zap"
)

// Trace 记录耗时，用法: defer util.Trace("batch")()
func Trace(msg string) func() {
	start := time.Now()
	Logger.Info("enter " + msg)
	return func() {
		Logger.Info("exit "+msg, zap.Duration("cost", time.Since(start)))
	}
}
