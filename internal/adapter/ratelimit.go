package adapter

import (
	"context"
	"math/rand"
	"time"
)

// Pacer throttles upstream requests. Wait blocks for the pacer's current
// delay or until the context is cancelled.
type Pacer interface {
	Wait(ctx context.Context) error
}

// FixedPacer sleeps a base delay plus optional uniform jitter per request.
type FixedPacer struct {
	Base   time.Duration
	Jitter time.Duration
}

func (p *FixedPacer) Wait(ctx context.Context) error {
	return sleep(ctx, p.delay())
}

func (p *FixedPacer) delay() time.Duration {
	d := p.Base
	if p.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return d
}

// WecomPacer steps its delay up as the per-run request count grows:
// 1200ms for the first 100 requests, 1800ms through 200, then 2500ms.
// Reset returns it to the fastest band for the next run.
type WecomPacer struct {
	count int
}

func (p *WecomPacer) Wait(ctx context.Context) error {
	p.count++
	return sleep(ctx, p.currentDelay())
}

func (p *WecomPacer) currentDelay() time.Duration {
	switch {
	case p.count <= 100:
		return 1200 * time.Millisecond
	case p.count <= 200:
		return 1800 * time.Millisecond
	default:
		return 2500 * time.Millisecond
	}
}

func (p *WecomPacer) Reset() {
	p.count = 0
}

// TaobaoPacer paces at ~2000ms plus up to 1000ms jitter and takes a
// 60-second break every 100 requests.
type TaobaoPacer struct {
	count int
}

const (
	taobaoBase      = 2000 * time.Millisecond
	taobaoJitter    = 1000 * time.Millisecond
	taobaoBreak     = 60 * time.Second
	taobaoBreakStep = 100
)

func (p *TaobaoPacer) Wait(ctx context.Context) error {
	p.count++
	if p.count%taobaoBreakStep == 0 {
		if err := sleep(ctx, taobaoBreak); err != nil {
			return err
		}
	}
	return sleep(ctx, taobaoBase+time.Duration(rand.Int63n(int64(taobaoJitter))))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
