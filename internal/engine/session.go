package engine

import (
	"context"
	"time"

	"ladder-trading-bot/internal/anchor"
	"ladder-trading-bot/internal/logger"
)

// Activity windows inside regular hours. Trading logic runs for the whole
// regular session; the AM/PM windows are tracked for the monitoring
// surface and edge-triggered logs only.
const (
	amStartMin = anchor.MarketOpenMin // 09:30
	amEndMin   = anchor.MiddayMin     // 11:00
	pmStartMin = 14 * 60              // 14:00
	pmEndMin   = anchor.MarketCloseMin
)

// sessionTracker is the OFF_SESSION/IN_SESSION state machine. Transitions
// are logged only on change.
type sessionTracker struct {
	wasInRTH    int8 // 0 unknown, 1 true, -1 false
	wasInWindow int8
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{}
}

func inRegularHours(now time.Time) bool {
	m := anchor.MinuteOfDay(now)
	return m >= amStartMin && m < pmEndMin
}

func inActivityWindow(now time.Time) bool {
	m := anchor.MinuteOfDay(now)
	return (m >= amStartMin && m < amEndMin) || (m >= pmStartMin && m < pmEndMin)
}

// observe reports the current session phase, logging edges.
func (s *sessionTracker) observe(ctx context.Context, now time.Time) (inRTH, inWindow bool) {
	inRTH = inRegularHours(now)
	inWindow = inActivityWindow(now)

	if cur := toTri(inWindow); cur != s.wasInWindow {
		if inWindow {
			logger.Info(ctx, "Inside trading session window; live logic active")
		} else {
			logger.Info(ctx, "Outside trading session window; continuing with regular-hours logic only")
		}
		s.wasInWindow = cur
	}
	if cur := toTri(inRTH); cur != s.wasInRTH {
		if inRTH {
			logger.Info(ctx, "Within regular trading hours; core logic enabled")
		} else {
			logger.Info(ctx, "Outside regular trading hours; idling until market reopens")
		}
		s.wasInRTH = cur
	}
	return inRTH, inWindow
}

func toTri(b bool) int8 {
	if b {
		return 1
	}
	return -1
}
