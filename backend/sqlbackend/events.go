package sqlbackend

import (
	"context"
	"strings"
	"time"

	"github.com/saryou/taskkit/event"
)

// pollInterval is how often SubscribeEvents checks for new rows. SQL has
// no push notification mechanism this backend relies on, so delivery
// latency is bounded by this interval rather than being instantaneous.
const pollInterval = 200 * time.Millisecond

// PublishEvent appends e as a row to the events table.
func (b *Backend) PublishEvent(ctx context.Context, e event.Event) error {
	model := &eventModel{
		Kind:      uint8(e.Kind),
		Groups:    strings.Join(e.Groups, ","),
		CreatedAt: time.Now(),
	}
	_, err := b.db.NewInsert().Model(model).Exec(ctx)
	return err
}

// SubscribeEvents starts a polling goroutine that delivers every event
// row inserted after the subscription begins. The returned channel is
// closed when closeFn is called or ctx is done; events published while no
// subscriber is polling (e.g. across a restart) are not replayed, per
// Backend.PublishEvent's documented contract.
func (b *Backend) SubscribeEvents(ctx context.Context) (<-chan event.Event, func(), error) {
	var lastID int64
	if err := b.db.NewSelect().
		Model((*eventModel)(nil)).
		ColumnExpr("COALESCE(MAX(id), 0)").
		Scan(ctx, &lastID); err != nil {
		return nil, nil, err
	}

	ch := make(chan event.Event)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(ch)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-subCtx.Done():
				return
			case <-ticker.C:
				rows, newLastID, err := b.pollEvents(subCtx, lastID)
				if err != nil {
					continue // transient poll failure; try again next tick
				}
				lastID = newLastID
				for _, e := range rows {
					select {
					case ch <- e:
					case <-subCtx.Done():
						return
					}
				}
			}
		}
	}()

	return ch, cancel, nil
}

func (b *Backend) pollEvents(ctx context.Context, afterID int64) ([]event.Event, int64, error) {
	var rows []*eventModel
	if err := b.db.NewSelect().
		Model(&rows).
		Where("id > ?", afterID).
		Order("id ASC").
		Scan(ctx); err != nil {
		return nil, afterID, err
	}
	if len(rows) == 0 {
		return nil, afterID, nil
	}
	events := make([]event.Event, len(rows))
	for i, r := range rows {
		var groups []string
		if r.Groups != "" {
			groups = strings.Split(r.Groups, ",")
		}
		events[i] = event.Event{Kind: event.Kind(r.Kind), Groups: groups}
	}
	return events, rows[len(rows)-1].ID, nil
}
