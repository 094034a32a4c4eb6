package publishers

import "github.com/samvad-hq/samvad-briefing/internal/domain"

// EventDailyBriefing tags events carrying a freshly generated briefing.
const EventDailyBriefing = "daily_briefing"

// Event is the envelope delivered to every publisher.
type Event struct {
	Type string          `json:"type"`
	Data domain.Briefing `json:"data"`
}

// NewBriefingEvent wraps b for delivery.
func NewBriefingEvent(b domain.Briefing) Event {
	return Event{Type: EventDailyBriefing, Data: b}
}
