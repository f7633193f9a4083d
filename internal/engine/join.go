package engine

import (
	"sync"

	"github.com/shalom-ormsby/sagestocks/internal/domain"
)

type outcome struct {
	sub      domain.Subscriber
	recordID string
	err      error
}

// joinAll runs fn once per subscriber concurrently and waits for every
// goroutine, collecting one outcome each. There is no fail-fast: a
// failure in one goroutine never cancels its siblings, which is what
// keeps one tenant's broken delivery target from blocking the rest of
// the broadcast.
func joinAll(subs []domain.Subscriber, fn func(domain.Subscriber) (string, error)) []outcome {
	outcomes := make([]outcome, len(subs))

	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub domain.Subscriber) {
			defer wg.Done()
			id, err := fn(sub)
			outcomes[i] = outcome{sub: sub, recordID: id, err: err}
		}(i, sub)
	}
	wg.Wait()

	return outcomes
}
