package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ladder-trading-bot/internal/anchor"
	"ladder-trading-bot/internal/interfaces"
	"ladder-trading-bot/internal/logger"
	"ladder-trading-bot/internal/metrics"
	"ladder-trading-bot/internal/store"
	"ladder-trading-bot/internal/tradelog"
	"ladder-trading-bot/internal/types"
	"ladder-trading-bot/internal/vwv"
)

// symbolState is the per-symbol record owned exclusively by the engine's
// tick loop. Position and average cost mirror broker truth via the
// reconciler; the rest is session-local.
type symbolState struct {
	target      types.SymbolTarget
	pos         int
	avg         float64
	trailHigh   float64
	realizedPnL float64
	vwv         *vwv.Tracker
	anchors     anchor.Anchors
	lastBuyAt   time.Time
}

// applyBuy folds a confirmed buy fill into the position.
func (st *symbolState) applyBuy(px float64, filled int) {
	newPos := st.pos + filled
	if st.pos > 0 {
		st.avg = (st.avg*float64(st.pos) + px*float64(filled)) / float64(newPos)
	} else {
		st.avg = px
	}
	st.pos = newPos
	if px > st.trailHigh {
		st.trailHigh = px
	}
}

// applySell folds a confirmed sell fill into the position and returns the
// realized PnL contribution. Average cost and the trailing high-water
// mark reset together when the position reaches zero.
func (st *symbolState) applySell(px float64, filled int) float64 {
	rp := (px - st.avg) * float64(filled)
	st.realizedPnL += rp
	st.pos -= filled
	if st.pos <= 0 {
		st.pos = 0
		st.avg = 0
		st.trailHigh = 0
	}
	return rp
}

// Engine is the control loop: it owns the broker connection, sequences
// reconciliation, ladder evaluation, and risk exits per symbol per tick,
// and supervises reconnection. Single-threaded by design; all state is
// mutated only by the tick loop itself.
type Engine struct {
	cfg     *store.Config
	brk     interfaces.Broker
	shape   ladderShape
	clips   *clipSizer
	router  *orderRouter
	recon   *positionReconciler
	risk    *riskManager
	session *sessionTracker

	syms      map[string]*symbolState
	symOrder  []string
	now       func() time.Time
	snapshots func(types.Snapshot)
}

func New(cfg *store.Config, brk interfaces.Broker) *Engine {
	e := &Engine{
		cfg:     cfg,
		brk:     brk,
		shape:   newLadderShape(cfg),
		clips:   newClipSizer(cfg, cfg.Targets),
		router:  newOrderRouter(brk),
		session: newSessionTracker(),
		syms:    make(map[string]*symbolState, len(cfg.Targets)),
		now:     func() time.Time { return time.Now().In(eastern) },
	}
	for _, tgt := range cfg.Targets {
		e.syms[tgt.Symbol] = &symbolState{
			target: tgt,
			vwv:    vwv.New(cfg.VWVWindow),
		}
		e.symOrder = append(e.symOrder, tgt.Symbol)
	}
	e.recon = newPositionReconciler(brk, e.router, e.recordFill)
	e.risk = newRiskManager(cfg, e.router, e.recordFill)
	return e
}

// OnSnapshot registers a sink for per-tick telemetry snapshots.
func (e *Engine) OnSnapshot(fn func(types.Snapshot)) {
	e.snapshots = fn
}

// Run is the outer supervisory loop: connect, run the tick loop, and on
// any unrecoverable fault disconnect cleanly, back off, and reconnect.
// Only context cancellation ends it.
func (e *Engine) Run(ctx context.Context) error {
	for {
		err := e.runSession(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.ErrorWithErr(ctx, "Session loop failed; reconnecting", err,
			"backoff", e.cfg.ReconnectBackoff().String())
		metrics.IncReconnect()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.ReconnectBackoff()):
		}
	}
}

// runSession holds one broker connection for as long as it stays healthy.
func (e *Engine) runSession(ctx context.Context) error {
	if err := e.brk.Connect(ctx); err != nil {
		return fmt.Errorf("broker connect: %w", err)
	}
	defer e.brk.Close()
	logger.Info(ctx, "Connected to broker", "symbols", len(e.symOrder))

	e.seedAnchors(ctx)

	ticker := time.NewTicker(e.cfg.TickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				return err
			}
		}
	}
}

// seedAnchors loads today's minute bars per symbol and derives the anchor
// snapshot. Failures are logged and leave the symbol on fallback pricing.
func (e *Engine) seedAnchors(ctx context.Context) {
	day := e.now().In(anchor.Eastern)
	for _, sym := range e.symOrder {
		st := e.syms[sym]
		bars, err := e.brk.MinuteBars(ctx, sym, day)
		if err != nil {
			logger.Warn(ctx, "Anchor seed failed", "symbol", sym, "error", err)
			continue
		}
		st.anchors = anchor.ComputeAnchors(bars)
		logger.Debug(ctx, "Anchors seeded", "symbol", sym,
			"pre_market", st.anchors.PreMarketMid,
			"opening_range", st.anchors.OpeningRangeMid,
			"session", st.anchors.SessionMid)
	}
}

// tick performs one pass: connectivity check, reconciliation, session
// gate, then per-symbol evaluation with fault isolation. A returned error
// means the connection is gone and the outer loop must reconnect.
func (e *Engine) tick(ctx context.Context) error {
	if !e.brk.IsConnected() {
		return errors.New("broker connection lost")
	}
	op := logger.StartOperation(ctx, "engine.tick")
	ctx = op.GetContext()

	now := e.now()
	e.recon.syncAll(ctx, now, e.syms)

	inRTH, _ := e.session.observe(ctx, now)
	if !inRTH {
		op.End()
		return nil
	}

	var rows []tradelog.PnLRow
	for _, sym := range e.symOrder {
		if err := e.evalSymbol(ctx, now, sym, &rows); err != nil {
			logger.ErrorWithErr(ctx, "Symbol evaluation failed", err, "symbol", sym)
			metrics.IncSymbolError(sym)
		}
	}
	if err := tradelog.AppendPnL(rows); err != nil {
		logger.Warn(ctx, "PnL append failed", "error", err)
	}

	metrics.IncTick()
	op.End()
	return nil
}

// evalSymbol runs the decision pipeline for one symbol: quote, spread
// filter, reference/volatility/ladder computation, entry and exit logic,
// then telemetry.
func (e *Engine) evalSymbol(ctx context.Context, now time.Time, sym string, rows *[]tradelog.PnLRow) error {
	st := e.syms[sym]

	tick, err := e.brk.Quote(ctx, sym)
	if err != nil {
		return fmt.Errorf("quote fetch: %w", err)
	}

	last, ok := firstValidPrice(tick.Last, tick.Close)
	if !ok {
		logger.Debug(ctx, "No usable price this tick", "symbol", sym)
		return nil
	}
	bid, _ := sanitizePrice(tick.Bid)
	ask, _ := sanitizePrice(tick.Ask)

	// Wide markets skip trading logic only; reconciliation already ran.
	if spr, okSpr := spreadBps(bid, ask); okSpr && spr > e.cfg.SpreadLimitFor(st.target.Class) {
		logger.Debug(ctx, "Spread over ceiling; skipping symbol", "symbol", sym,
			"spread_bps", spr, "limit_bps", e.cfg.SpreadLimitFor(st.target.Class))
		return nil
	}

	// During the opening range the session open is the better fallback;
	// afterwards prefer the previous close over a stale last.
	fallback := last
	m := anchor.MinuteOfDay(now)
	if m >= anchor.MarketOpenMin && m <= anchor.OpeningRangeMin {
		if p, okOpen := sanitizePrice(tick.Open); okOpen {
			fallback = p
		}
	} else if p, okClose := sanitizePrice(tick.Close); okClose {
		fallback = p
	}

	ref := anchor.BlendedReference(now, st.anchors, fallback)
	z := st.vwv.Update(last, tick.Volume)
	clip := e.clips.clipUSD(st.target, last)
	plan := e.shape.plan(ref, last, z, st.target, clip, st.pos)

	e.ladderEntry(ctx, now, st, plan, bid, ask, last)
	e.ladderTrim(ctx, st, plan, bid, last)
	e.risk.evaluate(ctx, st, last, bid, plan.SellMomentumOK)

	e.emitTelemetry(ctx, now, st, plan, ref, last, z, clip, rows)
	return nil
}

// ladderEntry fires when price has fallen through more buy rungs than the
// position has filled, the cooldown has elapsed, and momentum is not
// against us. The cooldown clock advances on every attempt, filled or
// not.
func (e *Engine) ladderEntry(ctx context.Context, now time.Time, st *symbolState, plan ladderPlan, bid, ask, last float64) {
	if !plan.BuyMomentumOK || plan.DesiredBuyLayers <= plan.ActiveLayers {
		return
	}
	if now.Sub(st.lastBuyAt) < e.cfg.Cooldown() {
		return
	}
	target := plan.Cumulative[plan.DesiredBuyLayers-1]
	qty := target - st.pos
	if qty <= 0 {
		return
	}

	px, filled, err := e.router.placeBuy(ctx, st.target.Symbol, qty, bid, ask, last, urgencyNormal)
	st.lastBuyAt = now
	if err != nil {
		logger.ErrorWithErr(ctx, "Ladder buy failed", err, "symbol", st.target.Symbol, "qty", qty)
		return
	}
	if filled > 0 {
		st.applyBuy(px, filled)
		e.recordFill(ctx, types.Fill{
			Symbol: st.target.Symbol, Side: "BUY", Qty: filled, Price: px, Tag: "ladder_buy",
		})
	}
}

// ladderTrim reduces layers as price rallies through sell rungs.
func (e *Engine) ladderTrim(ctx context.Context, st *symbolState, plan ladderPlan, bid, last float64) {
	if st.pos <= 0 || !plan.SellMomentumOK {
		return
	}
	layersAfter := plan.ActiveLayers - plan.SellLevelsHit
	if layersAfter < 0 {
		layersAfter = 0
	}
	if layersAfter >= plan.ActiveLayers {
		return
	}
	target := 0
	if layersAfter > 0 {
		target = plan.Cumulative[layersAfter-1]
	}
	qty := st.pos - target
	if qty <= 0 {
		return
	}

	px, filled, err := e.router.placeSell(ctx, st.target.Symbol, qty, bid, last, urgencyNormal)
	if err != nil {
		logger.ErrorWithErr(ctx, "Ladder sell failed", err, "symbol", st.target.Symbol, "qty", qty)
		return
	}
	if filled > 0 {
		rp := st.applySell(px, filled)
		e.recordFill(ctx, types.Fill{
			Symbol: st.target.Symbol, Side: "SELL", Qty: filled, Price: px,
			Tag: "ladder_sell", RealizedPnL: rp,
		})
	}
}

func (e *Engine) recordFill(ctx context.Context, f types.Fill) {
	logger.Trade(ctx, f.Symbol, f.Side, f.Qty, f.Price, f.Tag, "realized_pnl", f.RealizedPnL)
	metrics.RecordFill(f.Side, f.Tag, f.Qty)
	if err := tradelog.AppendFill(f); err != nil {
		logger.Warn(ctx, "Fill append failed", "error", err, "symbol", f.Symbol)
	}
}

func (e *Engine) emitTelemetry(ctx context.Context, now time.Time, st *symbolState, plan ladderPlan, ref, last, z, clip float64, rows *[]tradelog.PnLRow) {
	upnl := 0.0
	if st.pos > 0 && st.avg > 0 {
		upnl = (last - st.avg) * float64(st.pos)
	}
	dispBuys, dispSells := e.shape.displayLevels(ref, plan, st.target.Class)

	if e.snapshots != nil {
		e.snapshots(types.Snapshot{
			Ts:            now.Format(time.RFC3339),
			Symbol:        st.target.Symbol,
			Last:          last,
			Ref:           ref,
			Z:             z,
			Pos:           st.pos,
			Avg:           st.avg,
			UnrealizedPnL: upnl,
			RealizedPnL:   st.realizedPnL,
			BuyLevels:     dispBuys,
			SellLevels:    dispSells,
			ActiveLayers:  plan.ActiveLayers,
			DesiredLayers: plan.DesiredBuyLayers,
			ClipUSD:       clip,
		})
	}
	metrics.SetSymbolState(st.target.Symbol, last, st.avg, upnl, st.realizedPnL, z, st.pos, plan.ActiveLayers)
	*rows = append(*rows, tradelog.PnLRow{
		Symbol:        st.target.Symbol,
		Pos:           st.pos,
		Avg:           st.avg,
		Last:          last,
		UnrealizedPnL: upnl,
		RealizedPnL:   st.realizedPnL,
	})
	logger.Debug(ctx, "Symbol tick", "symbol", st.target.Symbol,
		"last", last, "ref", ref, "z", z,
		"pos", st.pos, "avg", st.avg,
		"active_layers", plan.ActiveLayers, "desired_layers", plan.DesiredBuyLayers,
		"clip_usd", clip, "upnl", upnl)
}
