package debuglog

import "go.uber.org/zap"

// ZapAdapter satisfies the small Logger interfaces that internal/radio
// and internal/comms define for themselves, so neither package needs to
// import zap directly.
type ZapAdapter struct {
	L *zap.Logger
}

func (a ZapAdapter) Debug(msg string)   { a.L.Debug(msg) }
func (a ZapAdapter) Info(msg string)    { a.L.Info(msg) }
func (a ZapAdapter) Warning(msg string) { a.L.Warn(msg) }
func (a ZapAdapter) Error(msg string)   { a.L.Error(msg) }
