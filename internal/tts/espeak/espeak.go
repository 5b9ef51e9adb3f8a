// Package espeak binds espeak-ng through cgo.
package espeak

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
rivoo_init(void)
{
	return espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0);
}

static int
rivoo_say(const char *text, const char *voice)
{
	if (!text)
	{ return -1; }

	if (voice && voice[0] && espeak_SetVoiceByName(voice) != EE_OK)
	{ return -2; }

	if (espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL) != EE_OK)
	{ return -3; }

	return espeak_Synchronize() == EE_OK ? 0 : -4;
}

static int
rivoo_voice_count(void)
{
	const espeak_VOICE **v = espeak_ListVoices(NULL);
	int n = 0;
	while (v && v[n])
	{ n++; }
	return n;
}

static const char *
rivoo_voice_name(int i)
{
	return espeak_ListVoices(NULL)[i]->name;
}

// languages is a priority byte followed by the language name.
static const char *
rivoo_voice_lang(int i)
{
	const char *l = espeak_ListVoices(NULL)[i]->languages;
	return (l && l[0]) ? l + 1 : "";
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"rivoo/internal/assistant"
)

// Engine drives espeak-ng in synchronous playback mode.
type Engine struct {
	mu sync.Mutex
}

func New() (*Engine, error) {
	if rate := C.rivoo_init(); rate < 0 {
		return nil, fmt.Errorf("espeak_Initialize failed: %d", int(rate))
	}

	return &Engine{}, nil
}

// Say blocks until text has been played or Cancel is called.
func (e *Engine) Say(text, voice string) error {
	if text == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	cvoice := C.CString(voice)
	defer C.free(unsafe.Pointer(cvoice))

	if rc := C.rivoo_say(ctext, cvoice); rc != 0 {
		return fmt.Errorf("espeak say failed: %d", int(rc))
	}

	return nil
}

func (e *Engine) Cancel() {
	C.espeak_Cancel()
}

func (e *Engine) Voices() []assistant.Voice {
	n := int(C.rivoo_voice_count())
	voices := make([]assistant.Voice, 0, n)
	for i := 0; i < n; i++ {
		voices = append(voices, assistant.Voice{
			Name:     C.GoString(C.rivoo_voice_name(C.int(i))),
			Language: C.GoString(C.rivoo_voice_lang(C.int(i))),
		})
	}

	return voices
}

func (e *Engine) Close() {
	C.espeak_Terminate()
}
