package tasks

import (
	"context"
	"time"
)

// Announcer is the lobby surface the day-change rollover posts to.
type Announcer interface {
	SystemNotice(text string)
	PruneChat(now time.Time)
}

// DayChange posts the date to every lobby once at startup and then
// just after each local midnight, pruning expired chat on the way.
// The date line keeps idle lobbies' chat history anchored in time.
type DayChange struct {
	announce Announcer
}

func NewDayChange(a Announcer) *DayChange {
	return &DayChange{announce: a}
}

func (d *DayChange) Run(ctx context.Context) error {
	d.post(time.Now())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(untilTomorrow(time.Now())):
			d.post(time.Now())
		}
	}
}

func (d *DayChange) post(now time.Time) {
	d.announce.SystemNotice(dateLine(now))
	d.announce.PruneChat(now)
}

// dateLine renders the announcement the way the games show it.
func dateLine(now time.Time) string {
	zone, _ := now.Zone()
	return "Date: " + now.Format(time.ANSIC) + " " + zone
}

// untilTomorrow returns the wait until one second past the next local
// midnight. The extra second keeps the announcement on the new date
// even when the timer fires a little early.
func untilTomorrow(now time.Time) time.Duration {
	year, month, day := now.Date()
	next := time.Date(year, month, day+1, 0, 0, 1, 0, now.Location())
	return next.Sub(now)
}
