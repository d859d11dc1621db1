package models

import "testing"

func TestParseCalendarType(t *testing.T) {
	tests := []struct {
		raw      string
		expected CalendarType
	}{
		{"odpt.Calendar:Weekday", Weekday},
		{"Weekday", Weekday},
		{"odpt.Calendar:SaturdayHoliday", SaturdayHoliday},
		{" odpt.Calendar:Sunday ", Sunday},
		{"odpt.Calendar:Specific.Toei.Holiday", Specific("odpt.Calendar:Specific.Toei.Holiday")},
		{"平日", Specific("平日")},
		{"S1@weekday", SpecificAs("S1", DisplayWeekday)},
		{"a@b@holiday", SpecificAs("a@b", DisplayHoliday)},
		{"user@example", Specific("user@example")},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got := ParseCalendarType(tc.raw)
			if got != tc.expected {
				t.Errorf("ParseCalendarType(%q) = %v, expected %v", tc.raw, got, tc.expected)
			}
			if back := ParseCalendarType(got.String()); back != got {
				t.Errorf("round trip of %v gave %v", got, back)
			}
		})
	}
}

func TestCalendarTypeDisplay(t *testing.T) {
	tests := []struct {
		calendar CalendarType
		expected DisplayCalendarType
	}{
		{Weekday, DisplayWeekday},
		{Wednesday, DisplayWeekday},
		{Saturday, DisplaySaturday},
		{SaturdayHoliday, DisplayHoliday},
		{Sunday, DisplayHoliday},
		{Holiday, DisplayHoliday},
		{Specific("odpt.Calendar:Specific.Toei.Weekday"), DisplayWeekday},
		{Specific("odpt.Calendar:Specific.Keio.Saturday"), DisplaySaturday},
		{Specific("odpt.Calendar:Specific.Keio.SaturdayHoliday"), DisplayHoliday},
		{Specific("平日"), DisplayWeekday},
		{Specific("土曜"), DisplaySaturday},
		{Specific("土休日"), DisplayHoliday},
		{Specific("service-42"), DisplayHoliday},
		{SpecificAs("service-42", DisplayWeekday), DisplayWeekday},
		{SpecificAs("Holiday-ish", DisplaySaturday), DisplaySaturday},
	}

	for _, tc := range tests {
		t.Run(tc.calendar.String(), func(t *testing.T) {
			if got := tc.calendar.Display(); got != tc.expected {
				t.Errorf("%v.Display() = %q, expected %q", tc.calendar, got, tc.expected)
			}
		})
	}
}

func TestSortCalendarTypes(t *testing.T) {
	types := []CalendarType{Specific("b"), Holiday, Specific("a"), Weekday, Saturday}
	SortCalendarTypes(types)

	expected := []CalendarType{Weekday, Saturday, Holiday, Specific("a"), Specific("b")}
	for i := range expected {
		if types[i] != expected[i] {
			t.Fatalf("position %d: got %v, expected %v (full: %v)", i, types[i], expected[i], types)
		}
	}
}

func TestCalendarTypeTag(t *testing.T) {
	if got := Weekday.Tag(); got != "Weekday" {
		t.Errorf("Weekday.Tag() = %q", got)
	}
	if got := Specific("odpt.Calendar:Specific.Toei.Holiday").Tag(); got != "Specific.Toei.Holiday" {
		t.Errorf("Specific tag = %q", got)
	}
}

func TestSpecificDisplayInTag(t *testing.T) {
	weekday := SpecificAs("12", DisplayWeekday)
	holiday := SpecificAs("12", DisplayHoliday)
	if weekday == holiday {
		t.Fatal("calendars with different display types must differ")
	}
	if got := weekday.Tag(); got != "12@weekday" {
		t.Errorf("Tag() = %q", got)
	}
	if weekday.Tag() == holiday.Tag() {
		t.Error("tags must differ")
	}
}
