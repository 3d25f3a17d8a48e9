package recorder

import "time"

// Spanish calendar names used in event fields. The collector's reports
// are in Spanish; indexes follow Go's time package (Sunday=0, January=1).
var (
	spanishDays = [7]string{
		"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado",
	}
	spanishMonths = [13]string{
		"", // time.Month is 1-based
		"enero", "febrero", "marzo", "abril", "mayo", "junio",
		"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
	}
)

// OccupancyEvent is one closed occupancy period. Field names match the
// collector's table columns exactly.
//
// Events are built only for off-transitions, so ValueBool is always
// false; the column is kept for the collector's schema.
type OccupancyEvent struct {
	EventDate              string `json:"event_date"`
	DayOfWeek              string `json:"day_of_week"`
	MonthName              string `json:"month_name"`
	EventTime              string `json:"event_time"`
	ValueBool              bool   `json:"value_bool"`
	DurationInStateSeconds int64  `json:"duration_in_state_seconds"`
	Zone                   string `json:"zone"`
	ZoneID                 string `json:"zone_id"`
	ZonePath               string `json:"zone_path"`
	DeviceID               string `json:"deviceId"`
	Name                   string `json:"name"`
	UserID                 string `json:"user_id"`
	UserName               string `json:"user_name"`
}

// fillEventTime fills the calendar fields from a timestamp in the site's
// timezone. Date and time use the collector's es-AR formats, dd/mm/yyyy
// and HH:mm.
func fillEventTime(e *OccupancyEvent, ts time.Time, loc *time.Location) {
	local := ts.In(loc)
	e.EventDate = local.Format("02/01/2006")
	e.EventTime = local.Format("15:04")
	e.DayOfWeek = spanishDays[local.Weekday()]
	e.MonthName = spanishMonths[local.Month()]
}

// durationSeconds converts the elapsed on-period to whole seconds.
//
// Non-positive spans (clock skew, duplicate timestamps) clamp to zero.
// Any positive span shorter than a second still counts as one second so
// brief real occupancy is never recorded as zero.
func durationSeconds(diffMs int64) int64 {
	if diffMs <= 0 {
		return 0
	}
	secs := diffMs / 1000
	if secs < 1 {
		return 1
	}
	return secs
}
