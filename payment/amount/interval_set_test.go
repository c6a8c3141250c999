package amount

import "testing"

func TestIntervalSet(t *testing.T) {
	intervalSet := NewIntervalSet()

	for _, x := range []int64{1, 2, 3, 5, 6, 7, 9, 10} {
		intervalSet.Add(x)
	}

	cases := []struct{ from, want int64 }{
		{1, 4}, {4, 4}, {5, 8}, {7, 8}, {8, 8}, {11, 11}, {12, 12},
	}
	for _, c := range cases {
		if got := intervalSet.NextMissing(c.from); got != c.want {
			t.Errorf("NextMissing(%d): expected %d, got %d", c.from, c.want, got)
		}
	}

	if intervalSet.Len() != 8 {
		t.Errorf("expected 8 members, got %d", intervalSet.Len())
	}
}

func TestIntervalSetAddRemove(t *testing.T) {
	s := NewIntervalSet()
	s.Add(5000000)
	if s.NextMissing(5000000) != 5000001 {
		t.Error("Expected 5000001, got", s.NextMissing(5000000))
	}

	s.Add(5000001)
	if s.NextMissing(5000000) != 5000002 {
		t.Error("Expected 5000002, got", s.NextMissing(5000000))
	}

	s.Add(5000003)
	if s.NextMissing(5000000) != 5000002 {
		t.Error("Expected 5000002, got", s.NextMissing(5000000))
	}

	s.Remove(5000001)
	if s.NextMissing(5000000) != 5000001 {
		t.Error("Expected 5000001, got", s.NextMissing(5000000))
	}

	s.Remove(5000000)
	if s.NextMissing(5000000) != 5000000 {
		t.Error("Expected 5000000, got", s.NextMissing(5000000))
	}

	s.Add(5000000)
	s.Add(5000001)
	s.Add(5000002) // bridges [5000000,5000001] and [5000003]
	if s.NextMissing(5000000) != 5000004 {
		t.Error("Expected 5000004, got", s.NextMissing(5000000))
	}

	s.Add(5000002) // duplicate add is a no-op
	if s.Len() != 4 {
		t.Error("Expected 4 members, got", s.Len())
	}

	s.Remove(5000002)
	if !s.Contains(5000001) || s.Contains(5000002) || !s.Contains(5000003) {
		t.Error("Remove did not split the interval correctly")
	}
}
