package archive

import (
	"sort"
	"time"
)

const day = 24 * time.Hour

// IsUploadDue reports whether more than intervalDays whole days have elapsed since the
// newest object was uploaded. An empty listing is always due.
func IsUploadDue(objects []Object, intervalDays int, now time.Time) bool {
	last, ok := LastUpload(objects)
	if !ok {
		return true
	}
	return DaysSince(last, now) > intervalDays
}

// LastUpload returns the newest LastModified in the listing.
func LastUpload(objects []Object) (time.Time, bool) {
	if len(objects) == 0 {
		return time.Time{}, false
	}
	last := objects[0].LastModified
	for _, obj := range objects[1:] {
		if obj.LastModified.After(last) {
			last = obj.LastModified
		}
	}
	return last, true
}

// DaysSince counts whole days between t and now, rounding down.
func DaysSince(t, now time.Time) int {
	d := now.Sub(t)
	if d < 0 {
		return 0
	}
	return int(d / day)
}

// NextUploadDue returns the first instant at which IsUploadDue becomes true,
// or the zero time when the listing is empty.
func NextUploadDue(objects []Object, intervalDays int) time.Time {
	last, ok := LastUpload(objects)
	if !ok {
		return time.Time{}
	}
	return last.Add(time.Duration(intervalDays+1) * day)
}

// ObjectsToDelete returns every object except the keep most recent ones, oldest first.
func ObjectsToDelete(objects []Object, keep int) []Object {
	if keep < 0 {
		keep = 0
	}
	if len(objects) <= keep {
		return nil
	}
	sorted := SortByAge(objects)
	return sorted[:len(sorted)-keep]
}

// SortByAge returns a copy of objects, oldest first. Objects with identical timestamps are
// ordered by key so repeated runs agree.
func SortByAge(objects []Object) []Object {
	sorted := make([]Object, len(objects))
	copy(sorted, objects)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].LastModified.Equal(sorted[j].LastModified) {
			return sorted[i].LastModified.Before(sorted[j].LastModified)
		}
		return sorted[i].Key < sorted[j].Key
	})
	return sorted
}

func Keys(objects []Object) []string {
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	return keys
}
