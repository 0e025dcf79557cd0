package sampler

import (
	stderrors "errors"
	"math"
	"math/rand/v2"
	"testing"

	"gaussfit/internal/errors"
	"gaussfit/internal/histogram"

	"github.com/montanaflynn/stats"
)

func TestNew_RejectsInvalidInputs(t *testing.T) {
	src := rand.NewPCG(1, 1)
	cases := map[string]struct {
		mean, sigma float64
		src         rand.Source
	}{
		"negative sigma": {0, -1, src},
		"zero sigma":     {0, 0, src},
		"nan sigma":      {0, math.NaN(), src},
		"inf mean":       {math.Inf(1), 1, src},
		"nil source":     {0, 1, nil},
	}
	for name, tc := range cases {
		_, err := New(tc.mean, tc.sigma, tc.src)
		if !stderrors.Is(err, errors.ErrInvalidConfiguration) {
			t.Errorf("%s: expected InvalidConfiguration, got %v", name, err)
		}
	}
}

func TestDraw_NegativeCount(t *testing.T) {
	s, err := New(0, 1, rand.NewPCG(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Draw(-1); !stderrors.Is(err, errors.ErrInvalidConfiguration) {
		t.Errorf("expected InvalidConfiguration, got %v", err)
	}
	empty, err := s.Draw(0)
	if err != nil || len(empty) != 0 {
		t.Errorf("Draw(0) = %v, %v", empty, err)
	}
}

func TestDraw_MatchesDistribution(t *testing.T) {
	s, err := New(20, 10, rand.NewPCG(42, 7))
	if err != nil {
		t.Fatal(err)
	}
	xs, err := s.Draw(20000)
	if err != nil {
		t.Fatal(err)
	}

	mean, _ := stats.Mean(xs)
	sd, _ := stats.StandardDeviation(xs)
	// 5 standard errors on the mean; sigma of 20000 draws is known to ~0.5%
	if math.Abs(mean-20) > 5*10/math.Sqrt(20000) {
		t.Errorf("sample mean %.3f too far from 20", mean)
	}
	if math.Abs(sd-10) > 0.3 {
		t.Errorf("sample sd %.3f too far from 10", sd)
	}
}

func TestDraw_Reproducible(t *testing.T) {
	a, _ := New(0, 1, rand.NewPCG(9, 9))
	b, _ := New(0, 1, rand.NewPCG(9, 9))
	xa, _ := a.Draw(50)
	xb, _ := b.Draw(50)
	for i := range xa {
		if xa[i] != xb[i] {
			t.Fatalf("draw %d differs: %v vs %v", i, xa[i], xb[i])
		}
	}
}

func TestDrawInto_ConservesCount(t *testing.T) {
	s, _ := New(50, 10, rand.NewPCG(3, 4))
	h, err := histogram.New("fill", 100, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DrawInto(h, 1000); err != nil {
		t.Fatal(err)
	}
	if h.Entries() != 1000 {
		t.Errorf("expected 1000 entries, got %d", h.Entries())
	}
}
