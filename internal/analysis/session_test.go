package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/BroWo1/factcheck-backend/internal/storage/models"
)

func TestNewSession(t *testing.T) {
	s, err := NewSession(NewSessionRequest{Input: "  <b>Water</b>   boils at 100C  "})
	if err != nil {
		t.Fatal(err)
	}
	if s.Input != "Water boils at 100C" {
		t.Errorf("Input = %q", s.Input)
	}
	if s.Mode != models.ModeFactCheck || s.Variant != models.VariantTraditional || s.Status != models.SessionPending {
		t.Errorf("session = %+v", s)
	}
	if s.ID == "" {
		t.Error("ID not assigned")
	}
}

func TestNewSessionValidation(t *testing.T) {
	_, err := NewSession(NewSessionRequest{Input: "<p>  </p>"})
	if !IsValidation(err) {
		t.Errorf("empty input error = %v, want ValidationError", err)
	}

	_, err = NewSession(NewSessionRequest{Input: "x", Mode: "deep_dive"})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "mode" {
		t.Errorf("bad mode error = %v", err)
	}
}

func TestSanitizeInputCapsLength(t *testing.T) {
	long := strings.Repeat("é", MaxInputChars+10)
	if got := utf8.RuneCountInString(SanitizeInput(long)); got != MaxInputChars {
		t.Errorf("sanitized length = %d, want %d", got, MaxInputChars)
	}
}

func TestSelectVariant(t *testing.T) {
	tests := []struct {
		mode models.Mode
		web  bool
		want models.Variant
	}{
		{models.ModeFactCheck, false, models.VariantTraditional},
		{models.ModeFactCheck, true, models.VariantSearchAugmented},
		{models.ModeResearch, false, models.VariantResearch},
		{models.ModeResearch, true, models.VariantResearch},
	}
	for _, tt := range tests {
		if got := SelectVariant(tt.mode, tt.web); got != tt.want {
			t.Errorf("SelectVariant(%s, %v) = %s, want %s", tt.mode, tt.web, got, tt.want)
		}
	}
}

type refusingGuard struct{ err error }

func (g refusingGuard) Acquire(context.Context, string) (func(), error) { return nil, g.err }

func TestChainGuardsReleasesOnRefusal(t *testing.T) {
	local := NewLocalGuard()
	chain := ChainGuards(local, refusingGuard{err: errors.New("lease held elsewhere")})

	if _, err := chain.Acquire(context.Background(), "s1"); err == nil {
		t.Fatal("Acquire() succeeded through a refusing guard")
	}
	if local.Running("s1") {
		t.Error("local guard still held after chain refusal")
	}
}

func TestLocalGuard(t *testing.T) {
	g := NewLocalGuard()
	release, err := g.Acquire(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Acquire(context.Background(), "s1"); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second Acquire() error = %v, want ErrRunInProgress", err)
	}
	release()
	release()
	if g.Running("s1") {
		t.Error("guard still held after release")
	}
}
