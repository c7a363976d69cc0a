package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/corvid-lab/dmrg/mpo"
	"github.com/corvid-lab/dmrg/mps"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n         int
		maxD      int
		gaugeSite int
		stage     int
	}{
		{n: 4, maxD: 2, gaugeSite: 0, stage: 0},
		{n: 6, maxD: 3, gaugeSite: 2, stage: 1},
	}

	for _, test := range tests {
		t.Run(fmt.Sprintf("n=%d/maxD=%d", test.n, test.maxD), func(t *testing.T) {
			t.Parallel()
			dir, err := os.MkdirTemp("", "")
			if err != nil {
				t.Fatalf("%+v", err)
			}
			defer os.RemoveAll(dir)

			w := mpo.List{mpo.Ising(test.n, 1)}
			ms, err := mps.Generate(w, test.maxD)
			if err != nil {
				t.Fatalf("%+v", err)
			}

			s, err := Open(filepath.Join(dir, "run.db"))
			if err != nil {
				t.Fatalf("%+v", err)
			}
			defer s.Close()

			if err := s.Save(ms, test.gaugeSite, test.stage); err != nil {
				t.Fatalf("%+v", err)
			}

			got, gaugeSite, err := s.Load(test.stage)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if gaugeSite != test.gaugeSite {
				t.Fatalf("gaugeSite %d, want %d", gaugeSite, test.gaugeSite)
			}
			if len(got) != len(ms) {
				t.Fatalf("len %d, want %d", len(got), len(ms))
			}
			for i := range ms {
				if err := got[i].Equal(ms[i], 1e-6); err != nil {
					t.Fatalf("site %d: %+v", i, err)
				}
			}
		})
	}
}

func TestSaveOverwritesStage(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	w := mpo.List{mpo.Ising(4, 1)}
	first, err := mps.Generate(w, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	second, err := mps.Generate(w, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	s, err := Open(filepath.Join(dir, "run.db"))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer s.Close()

	if err := s.Save(first, 1, 0); err != nil {
		t.Fatalf("%+v", err)
	}
	if err := s.Save(second, 3, 0); err != nil {
		t.Fatalf("%+v", err)
	}

	got, gaugeSite, err := s.Load(0)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if gaugeSite != 3 {
		t.Fatalf("gaugeSite %d, want 3", gaugeSite)
	}
	for i := range second {
		if err := got[i].Equal(second[i], 1e-6); err != nil {
			t.Fatalf("site %d: %+v", i, err)
		}
	}
}
