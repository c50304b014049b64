package archive

import (
	"reflect"
	"testing"
	"time"
)

func TestIsUploadDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	daysAgo := func(n int) time.Time { return now.AddDate(0, 0, -n) }

	t.Run("empty listing is due", func(t *testing.T) {
		if !IsUploadDue(nil, 90, now) {
			t.Error("empty listing should be due")
		}
	})

	t.Run("newest older than interval", func(t *testing.T) {
		objs := []Object{
			{Key: "a.tar.gpg", LastModified: daysAgo(100)},
			{Key: "b.tar.gpg", LastModified: daysAgo(91)},
		}
		if !IsUploadDue(objs, 90, now) {
			t.Error("91 days since newest upload should be due with interval 90")
		}
	})

	t.Run("newest object decides", func(t *testing.T) {
		objs := []Object{
			{Key: "a.tar.gpg", LastModified: daysAgo(100)},
			{Key: "b.tar.gpg", LastModified: daysAgo(10)},
		}
		if IsUploadDue(objs, 90, now) {
			t.Error("10 days since newest upload should not be due")
		}
	})

	t.Run("single recent object", func(t *testing.T) {
		objs := []Object{{Key: "a.tar.gpg", LastModified: daysAgo(50)}}
		if IsUploadDue(objs, 90, now) {
			t.Error("50 days should not be due with interval 90")
		}
	})

	t.Run("exactly interval days is not due", func(t *testing.T) {
		objs := []Object{{Key: "a.tar.gpg", LastModified: daysAgo(90)}}
		if IsUploadDue(objs, 90, now) {
			t.Error("exactly 90 days should not be due")
		}
	})

	t.Run("partial day past boundary is not due", func(t *testing.T) {
		objs := []Object{{Key: "a.tar.gpg", LastModified: daysAgo(90).Add(-23 * time.Hour)}}
		if IsUploadDue(objs, 90, now) {
			t.Error("90 days and 23 hours should not be due")
		}
	})

	t.Run("one whole day past boundary", func(t *testing.T) {
		objs := []Object{{Key: "a.tar.gpg", LastModified: daysAgo(91)}}
		if !IsUploadDue(objs, 90, now) {
			t.Error("91 whole days should be due")
		}
	})

	t.Run("zero interval", func(t *testing.T) {
		objs := []Object{{Key: "a.tar.gpg", LastModified: now.Add(-time.Hour)}}
		if IsUploadDue(objs, 0, now) {
			t.Error("same-day upload should not be due with interval 0")
		}
		objs[0].LastModified = daysAgo(1)
		if !IsUploadDue(objs, 0, now) {
			t.Error("one day old upload should be due with interval 0")
		}
	})

	t.Run("timestamp in the future", func(t *testing.T) {
		objs := []Object{{Key: "a.tar.gpg", LastModified: now.Add(time.Hour)}}
		if IsUploadDue(objs, 0, now) {
			t.Error("future timestamp should not be due")
		}
	})
}

func TestNextUploadDue(t *testing.T) {
	last := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	objs := []Object{{Key: "a", LastModified: last}}

	next := NextUploadDue(objs, 90)
	want := last.AddDate(0, 0, 91)
	if !next.Equal(want) {
		t.Fatalf("NextUploadDue = %v, want %v", next, want)
	}
	if IsUploadDue(objs, 90, next.Add(-time.Second)) {
		t.Error("should not be due just before NextUploadDue")
	}
	if !IsUploadDue(objs, 90, next) {
		t.Error("should be due at NextUploadDue")
	}
	if !NextUploadDue(nil, 90).IsZero() {
		t.Error("empty listing should return zero time")
	}
}

func TestObjectsToDelete(t *testing.T) {
	day1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	objs := []Object{
		{Key: "C", LastModified: day1.AddDate(0, 0, 9)},
		{Key: "A", LastModified: day1},
		{Key: "B", LastModified: day1.AddDate(0, 0, 4)},
	}

	tests := []struct {
		name string
		keep int
		want []string
	}{
		{"keep 1", 1, []string{"A", "B"}},
		{"keep 2", 2, []string{"A"}},
		{"keep equals count", 3, []string{}},
		{"keep above count", 5, []string{}},
		{"keep 0", 0, []string{"A", "B", "C"}},
		{"negative keep", -1, []string{"A", "B", "C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Keys(ObjectsToDelete(objs, tt.keep))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ObjectsToDelete(keep=%d) = %v, want %v", tt.keep, got, tt.want)
			}
		})
	}

	if objs[0].Key != "C" || objs[1].Key != "A" {
		t.Error("input slice must not be reordered")
	}
}

func TestObjectsToDelete_TiesAreDeterministic(t *testing.T) {
	ts := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	objs := []Object{
		{Key: "z.tar.gpg", LastModified: ts},
		{Key: "m.tar.gpg", LastModified: ts},
		{Key: "a.tar.gpg", LastModified: ts},
	}
	got := Keys(ObjectsToDelete(objs, 1))
	want := []string{"a.tar.gpg", "m.tar.gpg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ties: got %v, want %v", got, want)
	}

	reversed := []Object{objs[2], objs[1], objs[0]}
	if got2 := Keys(ObjectsToDelete(reversed, 1)); !reflect.DeepEqual(got2, want) {
		t.Errorf("ties depend on input order: got %v, want %v", got2, want)
	}
}

func TestSortByAge(t *testing.T) {
	ts := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	objs := []Object{
		{Key: "new.tar.gpg", LastModified: ts.Add(time.Hour)},
		{Key: "b.tar.gpg", LastModified: ts},
		{Key: "a.tar.gpg", LastModified: ts},
	}
	got := Keys(SortByAge(objs))
	want := []string{"a.tar.gpg", "b.tar.gpg", "new.tar.gpg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortByAge = %v, want %v", got, want)
	}
	if objs[0].Key != "new.tar.gpg" {
		t.Error("SortByAge must not reorder its input")
	}
	if len(SortByAge(nil)) != 0 {
		t.Error("SortByAge(nil) should be empty")
	}
}

func TestObjectsToDelete_Idempotent(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var objs []Object
	for i := 0; i < 7; i++ {
		objs = append(objs, Object{Key: string(rune('a' + i)), LastModified: base.AddDate(0, i, 0)})
	}
	for keep := 1; keep <= 8; keep++ {
		deleted := ObjectsToDelete(objs, keep)
		max := len(objs) - keep
		if max < 0 {
			max = 0
		}
		if len(deleted) > max {
			t.Fatalf("keep=%d: deleted %d objects, max %d", keep, len(deleted), max)
		}
		gone := make(map[string]bool)
		for _, d := range deleted {
			gone[d.Key] = true
		}
		var remaining []Object
		for _, o := range objs {
			if !gone[o.Key] {
				remaining = append(remaining, o)
			}
		}
		if again := ObjectsToDelete(remaining, keep); len(again) != 0 {
			t.Errorf("keep=%d: second pass deleted %v", keep, Keys(again))
		}
		newest := objs[len(objs)-1].Key
		if gone[newest] {
			t.Errorf("keep=%d: newest object %s was selected", keep, newest)
		}
	}
}

func TestParseStorageClass(t *testing.T) {
	tests := []struct {
		in      string
		want    StorageClass
		wantErr bool
	}{
		{"standard", StorageStandard, false},
		{"STANDARD", StorageStandard, false},
		{"infrequent-access", StorageInfrequentAccess, false},
		{"STANDARD_IA", StorageInfrequentAccess, false},
		{"archive", StorageArchive, false},
		{"glacier", StorageArchive, false},
		{"deep-archive", StorageDeepArchive, false},
		{"DEEP_ARCHIVE", StorageDeepArchive, false},
		{"cold", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStorageClass(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStorageClass(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseStorageClass(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
