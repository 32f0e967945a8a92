package migrate

import "testing"

func TestDirection(t *testing.T) {
	cases := []struct {
		current, target int64
		want            int
	}{
		{0, 20260901090300, 1},
		{20260901090300, 20260901090100, -1},
		{20260901090300, 20260901090300, 0},
	}
	for _, tc := range cases {
		if got := direction(tc.current, tc.target); got != tc.want {
			t.Errorf("direction(%d, %d) = %d, want %d", tc.current, tc.target, got, tc.want)
		}
	}
}

func TestNewRunnerRequiresDB(t *testing.T) {
	if _, err := NewRunner(nil, nil, nil); err == nil {
		t.Fatalf("expected error without db")
	}
}
