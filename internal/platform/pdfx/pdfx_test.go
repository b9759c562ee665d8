package pdfx

import (
	"fmt"
	"testing"

	"github.com/yungbote/dats-backend/internal/platform/pdfx/pdfxtest"
)

func TestRanges(t *testing.T) {
	cases := []struct {
		total, size int
		want        string
	}{
		{12, 5, "[[1 5] [6 10] [11 12]]"},
		{10, 5, "[[1 5] [6 10]]"},
		{3, 5, "[[1 3]]"},
		{1, 1, "[[1 1]]"},
		{0, 5, "[]"},
	}
	for _, tc := range cases {
		if got := fmt.Sprint(Ranges(tc.total, tc.size)); got != tc.want {
			t.Fatalf("Ranges(%d, %d): want=%s got=%s", tc.total, tc.size, tc.want, got)
		}
	}
}

func TestRangesCoverEveryPageOnce(t *testing.T) {
	for total := 1; total <= 40; total++ {
		for size := 1; size <= 12; size++ {
			next := 1
			rs := Ranges(total, size)
			for _, r := range rs {
				if r[0] != next || r[1] < r[0] || r[1]-r[0]+1 > size {
					t.Fatalf("Ranges(%d, %d) bad range %v", total, size, r)
				}
				next = r[1] + 1
			}
			if next != total+1 || len(rs) != (total+size-1)/size {
				t.Fatalf("Ranges(%d, %d) = %v", total, size, rs)
			}
		}
	}
}

func TestPageCountAndPages(t *testing.T) {
	raw := pdfxtest.Minimal(12)
	n, err := PageCount(raw)
	if err != nil || n != 12 {
		t.Fatalf("PageCount: n=%d err=%v", n, err)
	}
	part, err := Pages(raw, 6, 10)
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if n, err := PageCount(part); err != nil || n != 5 {
		t.Fatalf("chunk PageCount: n=%d err=%v", n, err)
	}
	if _, err := Pages(raw, 3, 2); err == nil {
		t.Fatalf("inverted range accepted")
	}
}
