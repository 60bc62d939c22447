package archive

import "time"

// DOSDateTime converts t to MS-DOS time and date fields, using t's own
// location. Seconds are stored with two-second resolution and years are
// clamped to the 1980..2107 range the format can hold.
func DOSDateTime(t time.Time) (dosTime uint16, dosDate uint16) {
	year := t.Year()
	switch {
	case year < 1980:
		return 0, 1<<5 | 1
	case year > 2107:
		year = 2107
	}

	dosTime = uint16(t.Hour()<<11 | t.Minute()<<5 | t.Second()/2)
	dosDate = uint16((year-1980)<<9 | int(t.Month())<<5 | t.Day())
	return dosTime, dosDate
}
