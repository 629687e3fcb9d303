package trading

import (
	"fmt"
	"time"

	"nse-agent/pkg/utils"
)

// MarketSession represents different market sessions.
type MarketSession string

const (
	SessionPreOpen MarketSession = "PRE_OPEN"
	SessionNormal  MarketSession = "NORMAL"
	SessionClosed  MarketSession = "CLOSED"
	SessionHoliday MarketSession = "HOLIDAY"
)

// SessionInfo represents information about the market session at a time.
type SessionInfo struct {
	Session     MarketSession `json:"session"`
	StartTime   time.Time     `json:"start_time,omitempty"`
	EndTime     time.Time     `json:"end_time,omitempty"`
	Description string        `json:"description"`
	Open        bool          `json:"open"`
}

// NSE cash segment timings, minutes from midnight IST.
const (
	preOpenStart = 9 * 60
	normalStart  = 9*60 + 15
	normalEnd    = 15*60 + 30
)

// SessionManager answers market-hours questions for the NSE cash segment.
type SessionManager struct {
	location *time.Location
	holidays map[string]bool // Date string -> is holiday
}

// NewSessionManager creates a session manager. Holidays are YYYY-MM-DD dates.
func NewSessionManager(holidays []string) (*SessionManager, error) {
	m := &SessionManager{
		location: utils.IndiaLocation,
		holidays: make(map[string]bool),
	}
	for _, h := range holidays {
		d, err := time.ParseInLocation("2006-01-02", h, m.location)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		m.AddHoliday(d)
	}
	return m, nil
}

// AddHoliday adds a market holiday.
func (m *SessionManager) AddHoliday(date time.Time) {
	m.holidays[date.In(m.location).Format("2006-01-02")] = true
}

// IsHoliday checks if a date is a market holiday.
func (m *SessionManager) IsHoliday(date time.Time) bool {
	return m.holidays[date.In(m.location).Format("2006-01-02")]
}

// IsMarketOpen reports whether t falls inside the normal trading session.
func (m *SessionManager) IsMarketOpen(t time.Time) bool {
	return m.GetSessionAt(t).Open
}

// GetSessionAt returns the market session at a specific time.
func (m *SessionManager) GetSessionAt(t time.Time) *SessionInfo {
	t = t.In(m.location)

	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return &SessionInfo{Session: SessionClosed, Description: "Weekend - Market Closed"}
	}
	if m.IsHoliday(t) {
		return &SessionInfo{Session: SessionHoliday, Description: "Market Holiday"}
	}

	minutes := t.Hour()*60 + t.Minute()
	switch {
	case minutes >= preOpenStart && minutes < normalStart:
		return &SessionInfo{
			Session:     SessionPreOpen,
			StartTime:   timeAt(t, 9, 0),
			EndTime:     timeAt(t, 9, 15),
			Description: "Pre-Open Session",
		}
	case minutes >= normalStart && minutes < normalEnd:
		return &SessionInfo{
			Session:     SessionNormal,
			StartTime:   timeAt(t, 9, 15),
			EndTime:     timeAt(t, 15, 30),
			Description: "Normal Trading Session",
			Open:        true,
		}
	default:
		return &SessionInfo{Session: SessionClosed, Description: "Market Closed"}
	}
}

// NextOpen returns the next normal-session start strictly after t, or t
// itself when the market is already open.
func (m *SessionManager) NextOpen(t time.Time) time.Time {
	t = t.In(m.location)
	if m.IsMarketOpen(t) {
		return t
	}
	next := timeAt(t, 9, 15)
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday || m.IsHoliday(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// timeAt creates a time on the same day at specified hour and minute.
func timeAt(t time.Time, hour, minute int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
}

func (s MarketSession) String() string {
	switch s {
	case SessionPreOpen:
		return "Pre-Open (9:00-9:15)"
	case SessionNormal:
		return "Normal Trading (9:15-15:30)"
	case SessionClosed:
		return "Closed"
	case SessionHoliday:
		return "Holiday"
	default:
		return string(s)
	}
}
