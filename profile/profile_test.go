package profile

import "testing"

func TestStartWithoutMode(t *testing.T) {
	s := Start(WithPath(t.TempDir()), WithQuiet(true))
	if _, ok := s.(ignore); !ok {
		t.Errorf("Start without mode returned %T, want no-op", s)
	}

	s.Stop()
}

func TestStartUnknownMode(t *testing.T) {
	s := Start(WithMode("nope"), WithPath(t.TempDir()), WithQuiet(true))
	if _, ok := s.(ignore); !ok {
		t.Errorf("Start with unknown mode returned %T, want no-op", s)
	}

	s.Stop()
}

func TestModesSorted(t *testing.T) {
	prev := ""

	for m := range Modes() {
		if m <= prev {
			t.Errorf("mode %q out of order after %q", m, prev)
		}

		prev = m
	}
}
