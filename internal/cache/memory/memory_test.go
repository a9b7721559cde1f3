package memory

import (
	"context"
	"testing"
	"time"
)

type entry struct {
	Title string `json:"title"`
	Score int    `json:"score"`
}

func TestCacheRoundTrip(t *testing.T) {
	c := New(time.Minute, time.Minute)
	ctx := context.Background()

	var got []entry
	hit, err := c.GetJSON(ctx, "k", &got)
	if err != nil || hit {
		t.Fatalf("GetJSON() on empty cache = %v, %v", hit, err)
	}

	want := []entry{{Title: "a", Score: 1}}
	if err := c.SetJSON(ctx, "k", want, 0); err != nil {
		t.Fatal(err)
	}

	hit, err = c.GetJSON(ctx, "k", &got)
	if err != nil || !hit {
		t.Fatalf("GetJSON() = %v, %v", hit, err)
	}
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("GetJSON() value = %+v", got)
	}

	want[0].Title = "mutated"
	var again []entry
	c.GetJSON(ctx, "k", &again)
	if again[0].Title != "a" {
		t.Error("cached value shares memory with the caller")
	}
}

func TestCacheExpires(t *testing.T) {
	c := New(time.Minute, time.Minute)
	ctx := context.Background()

	if err := c.SetJSON(ctx, "k", "v", 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	var v string
	if hit, _ := c.GetJSON(ctx, "k", &v); hit {
		t.Error("expired entry still returned")
	}
}
