package feed

import (
	"context"
	"log"
	"sync"
	"time"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

// Fetcher loads the latest messages of a chat.
type Fetcher interface {
	ListMessages(ctx context.Context, token string, chatID, limit int) ([]models.Message, error)
}

// Sink receives poll results. gen is the value passed to Start and lets the
// receiver reject results that belong to an older selection.
type Sink interface {
	Messages(gen uint64, chatID int, msgs []models.Message)
	Failed(gen uint64, chatID int, err error)
}

// Poller refreshes one chat's messages on a fixed interval. At most one
// cycle runs at a time; starting a new one cancels the previous.
type Poller struct {
	fetcher  Fetcher
	sink     Sink
	interval time.Duration
	limit    int

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewPoller builds a Poller.
func NewPoller(fetcher Fetcher, sink Sink, interval time.Duration, limit int) *Poller {
	return &Poller{fetcher: fetcher, sink: sink, interval: interval, limit: limit}
}

// Start cancels any running cycle and polls chatID: once immediately, then
// on every tick until Stop or the next Start. After Close it does nothing.
func (p *Poller) Start(token string, chatID int, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go p.run(ctx, token, chatID, gen)
}

// Stop cancels the running cycle. An in-flight fetch is aborted and its
// result dropped. Stop does not wait for the goroutine; see Wait.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Close stops the running cycle for good. Wait may be called afterwards
// without racing a later Start.
func (p *Poller) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Active reports whether a cycle is running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Wait blocks until every cancelled cycle has exited.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, token string, chatID int, gen uint64) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.poll(ctx, token, chatID, gen)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context, token string, chatID int, gen uint64) {
	msgs, err := p.fetcher.ListMessages(ctx, token, chatID, p.limit)
	if ctx.Err() != nil {
		observability.IncFeedPoll("discarded")
		return
	}
	if err != nil {
		observability.IncFeedPoll("error")
		log.Printf("feed: poll chat_id=%d failed: %v", chatID, err)
		p.sink.Failed(gen, chatID, err)
		return
	}
	observability.IncFeedPoll("ok")
	p.sink.Messages(gen, chatID, msgs)
}
