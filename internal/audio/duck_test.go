package audio

import (
	"context"
	"strings"
	"sync"
	"testing"
)

const sinkInputs = `Sink Input #41
	Driver: protocol-native.c
	Volume: front-left: 52428 /  80% / -5.81 dB,   front-right: 52428 /  80% / -5.81 dB
	Properties:
		application.name = "Firefox"
Sink Input #57
	Volume: front-left: 65536 / 100% / 0.00 dB
	Properties:
		application.name = "rivoo"
`

type fakePactl struct {
	mu   sync.Mutex
	sets []string
}

func (f *fakePactl) run(_ context.Context, args ...string) ([]byte, error) {
	if args[0] == "list" {
		return []byte(sinkInputs), nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, strings.Join(args[1:], " "))
	return nil, nil
}

func TestParseSinkInputs(t *testing.T) {
	got := parseSinkInputs(sinkInputs)
	if len(got) != 2 {
		t.Fatalf("parsed %d inputs", len(got))
	}
	if got[0] != (sinkInput{ID: 41, Volume: 80, AppName: "Firefox"}) {
		t.Fatalf("first input = %+v", got[0])
	}
	if got[1].AppName != "rivoo" || got[1].Volume != 100 {
		t.Fatalf("second input = %+v", got[1])
	}
}

func TestDuckAndRestoreSkipSelf(t *testing.T) {
	p := &fakePactl{}
	d := NewDucker([]string{"rivoo"}, 0.25, 10, 0)
	d.run = p.run

	if err := d.Duck(context.Background()); err != nil {
		t.Fatalf("Duck: %v", err)
	}
	if err := d.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	want := []string{"41 20%", "41 80%"}
	if strings.Join(p.sets, ",") != strings.Join(want, ",") {
		t.Fatalf("volume changes = %v, want %v", p.sets, want)
	}
}

func TestDuckRespectsFloor(t *testing.T) {
	p := &fakePactl{}
	d := NewDucker(nil, 0.01, 30, 0)
	d.run = p.run

	_ = d.Duck(context.Background())
	_ = d.Duck(context.Background())

	if len(p.sets) != 2 || p.sets[0] != "41 30%" || p.sets[1] != "57 30%" {
		t.Fatalf("volume changes = %v", p.sets)
	}
}
