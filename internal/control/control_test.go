package control

import (
	"context"
	"errors"
	"strings"
	"testing"

	"rivoo/internal/assistant"
)

type fakeCtrl struct {
	state     assistant.State
	calls     []string
	submitted []string
	voices    []assistant.Voice
	startErr  error
}

func (f *fakeCtrl) Submit(_ context.Context, text string) error {
	f.calls = append(f.calls, "submit")
	f.submitted = append(f.submitted, text)
	return nil
}

func (f *fakeCtrl) SubmitText(_ context.Context, text string) error {
	f.calls = append(f.calls, "submit-text")
	f.submitted = append(f.submitted, text)
	return nil
}

func (f *fakeCtrl) StartListening() error {
	f.calls = append(f.calls, "start")
	if f.startErr != nil {
		return f.startErr
	}
	f.state.Status = assistant.StatusListening
	return nil
}

func (f *fakeCtrl) StopListening(context.Context) error {
	f.calls = append(f.calls, "stop")
	f.state.Status = assistant.StatusIdle
	return nil
}

func (f *fakeCtrl) StopSpeaking() { f.calls = append(f.calls, "hush") }

func (f *fakeCtrl) SetAutoMode(on bool) { f.state.AutoMode = on }

func (f *fakeCtrl) SetVoiceMode(on bool) error {
	f.state.VoiceMode = on
	return nil
}

func (f *fakeCtrl) SelectVoice(name string) error {
	for _, v := range f.voices {
		if v.Name == name {
			f.state.Voice = name
			return nil
		}
	}
	return assistant.ErrUnknownVoice
}

func (f *fakeCtrl) Voices() []assistant.Voice { return f.voices }

func (f *fakeCtrl) State() assistant.State { return f.state }

type fakeFiles struct {
	text string
	err  error
	path string
}

func (f *fakeFiles) TranscribeFile(_ context.Context, path string) (string, error) {
	f.path = path
	return f.text, f.err
}

func TestDispatchToggle(t *testing.T) {
	ctrl := &fakeCtrl{}
	d := New(ctrl, nil)
	ctx := context.Background()

	if r := d.Dispatch(ctx, Message{Cmd: "toggle"}); !r.OK {
		t.Fatalf("first toggle: %s", r.Error)
	}
	if r := d.Dispatch(ctx, Message{Cmd: "toggle"}); !r.OK {
		t.Fatalf("second toggle: %s", r.Error)
	}

	if got := strings.Join(ctrl.calls, ","); got != "start,stop" {
		t.Fatalf("calls = %s", got)
	}
}

func TestDispatchSay(t *testing.T) {
	ctrl := &fakeCtrl{}
	r := New(ctrl, nil).Dispatch(context.Background(), Message{Cmd: "say", Arg: "should I go?"})
	if !r.OK {
		t.Fatalf("say: %s", r.Error)
	}
	if len(ctrl.submitted) != 1 || ctrl.submitted[0] != "should I go?" {
		t.Fatalf("submitted = %v", ctrl.submitted)
	}
	if r.State == nil {
		t.Fatal("reply carries no state")
	}
}

func TestDispatchSwitches(t *testing.T) {
	ctrl := &fakeCtrl{}
	d := New(ctrl, nil)
	ctx := context.Background()

	d.Dispatch(ctx, Message{Cmd: "auto", Arg: "on"})
	if !ctrl.state.AutoMode {
		t.Fatal("auto on did not enable auto mode")
	}
	d.Dispatch(ctx, Message{Cmd: "auto", Arg: "toggle"})
	if ctrl.state.AutoMode {
		t.Fatal("auto toggle did not disable auto mode")
	}
	d.Dispatch(ctx, Message{Cmd: "voice"})
	if !ctrl.state.VoiceMode {
		t.Fatal("bare voice did not toggle voice mode")
	}

	r := d.Dispatch(ctx, Message{Cmd: "auto", Arg: "maybe"})
	if r.OK || r.Error == "" {
		t.Fatalf("bad switch accepted: %+v", r)
	}
}

func TestDispatchVoices(t *testing.T) {
	ctrl := &fakeCtrl{voices: []assistant.Voice{{Name: "en-us", Language: "en"}}}
	d := New(ctrl, nil)
	ctx := context.Background()

	r := d.Dispatch(ctx, Message{Cmd: "voices"})
	if len(r.Voices) != 1 {
		t.Fatalf("voices = %v", r.Voices)
	}

	if r := d.Dispatch(ctx, Message{Cmd: "use-voice", Arg: " en-us "}); !r.OK {
		t.Fatalf("use-voice: %s", r.Error)
	}
	if ctrl.state.Voice != "en-us" {
		t.Fatalf("voice = %q", ctrl.state.Voice)
	}

	if r := d.Dispatch(ctx, Message{Cmd: "use-voice", Arg: "klingon"}); r.OK {
		t.Fatal("unknown voice accepted")
	}
}

func TestDispatchFile(t *testing.T) {
	ctx := context.Background()

	ctrl := &fakeCtrl{}
	r := New(ctrl, nil).Dispatch(ctx, Message{Cmd: "file", Arg: "a.wav"})
	if r.OK || r.Error != assistant.ErrUnsupported.Error() {
		t.Fatalf("file without transcriber: %+v", r)
	}

	files := &fakeFiles{text: "take the job"}
	r = New(ctrl, files).Dispatch(ctx, Message{Cmd: "file", Arg: "a.wav"})
	if !r.OK {
		t.Fatalf("file: %s", r.Error)
	}
	if files.path != "a.wav" || ctrl.submitted[0] != "take the job" {
		t.Fatalf("path %q submitted %v", files.path, ctrl.submitted)
	}

	files.err = errors.New("decode failed")
	if r := New(ctrl, files).Dispatch(ctx, Message{Cmd: "file", Arg: "a.wav"}); r.OK {
		t.Fatal("transcription error not reported")
	}
}

func TestDispatchErrors(t *testing.T) {
	ctrl := &fakeCtrl{startErr: assistant.ErrBusy}
	d := New(ctrl, nil)
	ctx := context.Background()

	if r := d.Dispatch(ctx, Message{Cmd: "listen"}); r.OK || r.Error != assistant.ErrBusy.Error() {
		t.Fatalf("listen while busy: %+v", r)
	}
	if r := d.Dispatch(ctx, Message{Cmd: "dance"}); r.OK || !strings.Contains(r.Error, "unknown command") {
		t.Fatalf("unknown command: %+v", r)
	}
	if r := d.Dispatch(ctx, Message{Cmd: "STATUS"}); !r.OK || r.State == nil {
		t.Fatalf("status: %+v", r)
	}
}
