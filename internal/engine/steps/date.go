package steps

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/openevent-ai/conversation-engine/internal/engine/catalog"
	"github.com/openevent-ai/conversation-engine/internal/engine/model"
)

// monthHintFromText scans free text for a month name, used to seed
// suggest_dates when the client names a month but no specific day.
func monthHintFromText(text string) (time.Month, bool) {
	return catalog.ParseMonthHint(text)
}

// operatingHoursStart/End are the venue defaults used when a confirmation
// supplies only a date (a room already locked) — the times are backfilled
// rather than prompting again.
const (
	operatingHoursStart = "14:00"
	operatingHoursEnd   = "22:00"
)

var (
	isoDatePattern    = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	dottedDatePattern = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)
	timePattern       = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)

	relativeWeekdayPattern = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	nextWeekPattern        = regexp.MustCompile(`(?i)\bnext week\b`)
)

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

// ParsedDate is the result of a best-effort resolution of a date/time window
// out of free text.
type ParsedDate struct {
	Date      time.Time
	StartTime string
	EndTime   string
}

// resolveDateFromText implements the bulk of §4.6.2's confirmation parsing:
// explicit ISO/dotted dates, bare relative weekday phrases ("Thursday
// works", "Friday next week"), resolved against now.
func resolveDateFromText(text string, now time.Time) (time.Time, bool) {
	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, now.Location()), true
	}
	if m := dottedDatePattern.FindStringSubmatch(text); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, now.Location()), true
	}
	if m := relativeWeekdayPattern.FindStringSubmatch(strings.ToLower(text)); m != nil {
		wd := weekdayNames[strings.ToLower(m[1])]
		d := nextOccurrence(now, wd)
		if nextWeekPattern.MatchString(text) {
			d = d.AddDate(0, 0, 7)
		}
		return d, true
	}
	return time.Time{}, false
}

func nextOccurrence(now time.Time, target time.Weekday) time.Time {
	base := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for i := 1; i <= 7; i++ {
		d := base.AddDate(0, 0, i)
		if d.Weekday() == target {
			return d
		}
	}
	return base
}

// resolveConfirmationWindow normalizes any parsed start/end times: drops an
// end time that is not strictly after start, and backfills a missing end
// time by scanning the remainder of the message for a second time token.
func resolveConfirmationWindow(text string) (start, end string) {
	matches := timePattern.FindAllString(text, 2)
	if len(matches) > 0 {
		start = matches[0]
	}
	if len(matches) > 1 {
		end = matches[1]
	}
	if start != "" && end != "" && !timeAfter(end, start) {
		end = ""
	}
	return start, end
}

func timeAfter(a, b string) bool {
	pa, pb := parseHHMM(a), parseHHMM(b)
	return pa > pb
}

func parseHHMM(s string) int {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return -1
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return h*60 + m
}

// HandleDate runs Step 2: date confirmation. On detour re-entry (caller_step
// set, or extras.change_detour) the Q&A path is skipped entirely — a
// detoured re-entry is already a validated routing decision.
func HandleDate(hc *Context, conv *model.Conversation, event *model.Event, in Input, sig model.UnifiedSignals) model.StepDecision {
	now := hc.now()
	detourReentry := conv.CallerStep != nil || conv.Extras.ChangeDetour

	if event.EventDate == nil {
		if d, ok := resolveDateFromText(in.Message, now); ok {
			return confirmDate(hc, conv, event, d, in.Message)
		}
		if !detourReentry && sig.IsQuestion && len(sig.QnATypes) > 0 {
			return model.Halt(&model.Draft{Body: qnaHoldingBody(sig.QnATypes)})
		}
		return suggestDatesDraft(hc, event, in.Message, now)
	}

	// A date is already on file: a bare date-only reply with a room already
	// locked fills default operating hours rather than re-prompting.
	if d, ok := resolveDateFromText(in.Message, now); ok {
		return confirmDate(hc, conv, event, d, in.Message)
	}

	if conv.CallerStep != nil {
		return model.ReturnToCaller()
	}
	return model.Advance(model.StepRoom)
}

func confirmDate(hc *Context, conv *model.Conversation, event *model.Event, d time.Time, rawText string) model.StepDecision {
	start, end := resolveConfirmationWindow(rawText)
	if start == "" {
		start = operatingHoursStart
	}
	if end == "" {
		end = operatingHoursEnd
	}

	if lo, hi, ok := venueOperatingHours(hc); ok {
		if !inRange(start, lo, hi) || !inRange(end, lo, hi) {
			conv.Extras.TimeWarning = fmt.Sprintf("requested time %s–%s falls outside our usual %s–%s hours", start, end, lo, hi)
		}
	}

	event.EventDate = &d
	event.StartTime = start
	event.EndTime = end

	if conv.CallerStep != nil {
		return model.ReturnToCaller()
	}
	return model.Advance(model.StepRoom)
}

// venueOperatingHours reads the first configured room's operating-hours
// window as the venue-wide default (rooms share one operating window in this
// catalog). Falls back to not-found when no venue or room is configured.
func venueOperatingHours(hc *Context) (lo, hi string, ok bool) {
	if hc.Venue == nil || len(hc.Venue.Rooms) == 0 || len(hc.Venue.Rooms[0].OperatingHours) == 0 {
		return "", "", false
	}
	parts := strings.SplitN(hc.Venue.Rooms[0].OperatingHours[0], "-", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func inRange(t, lo, hi string) bool {
	return parseHHMM(t) >= parseHHMM(lo) && parseHHMM(t) <= parseHHMM(hi)
}

func suggestDatesDraft(hc *Context, event *model.Event, rawText string, now time.Time) model.StepDecision {
	var monthHint *time.Month
	if m, ok := monthHintFromText(rawText); ok {
		monthHint = &m
	}
	var dates []time.Time
	if hc.Venue != nil {
		dates = hc.Venue.SuggestDates(now, monthHint)
	}

	var labels []string
	for _, d := range dates {
		labels = append(labels, d.Format("02.01.2006"))
	}
	facts := model.FactsBundle{Dates: labels}
	body := "Here are a few dates we currently have open: " + strings.Join(labels, ", ")
	if event.ParticipantsCount > 0 {
		body += fmt.Sprintf(" for your event of %d guests", event.ParticipantsCount)
		facts.ParticipantCounts = []int{event.ParticipantsCount}
	}
	body += ". Would any of these work for you?"
	return model.Halt(&model.Draft{Body: body, Facts: facts})
}

func qnaHoldingBody(types []string) string {
	return "Happy to help with that — " + strings.Join(types, ", ") + ". Could you also confirm a date that works for you?"
}
