package aggregator

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/scrypster/chorus/internal/registry"
)

// PlayCount is one member's play count for a track.
type PlayCount struct {
	DisplayName string
	Username    string
	Count       int
}

// MemberPlayCounts looks up how often each registered member has played
// the track. Lookups run concurrently and are all collected before the
// answer is produced; a failing member is logged and excluded rather than
// failing the batch. Results are sorted by count descending, then by
// display name for a stable order.
func (a *Aggregator) MemberPlayCounts(ctx context.Context, artist, title string, members []registry.Member) []PlayCount {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []PlayCount
	)

	for _, m := range members {
		wg.Add(1)
		go func(m registry.Member) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, a.timeouts.Base)
			defer cancel()

			count, err := a.scrobble.TrackPlayCount(callCtx, m.Username, artist, title)
			if err != nil {
				log.Printf("Play count lookup for %s failed: %v", m.Username, err)
				return
			}

			mu.Lock()
			results = append(results, PlayCount{
				DisplayName: m.DisplayName,
				Username:    m.Username,
				Count:       count,
			})
			mu.Unlock()
		}(m)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		return results[i].DisplayName < results[j].DisplayName
	})
	return results
}
