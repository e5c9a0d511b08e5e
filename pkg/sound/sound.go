// Package sound plays short WAV cues through the robot's speaker.
package sound

import (
	"os"
	"time"

	"github.com/edaniels/golog"
	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/pkg/errors"
)

// Player plays one sound at a time; starting a new one cuts off the last.
type Player struct {
	soundsToPlay chan string
	logger       golog.Logger
}

// New opens the speaker in the background.  If there is no speaker, sounds are logged and
// dropped.
func New(logger golog.Logger) *Player {
	p := &Player{
		soundsToPlay: make(chan string, 4),
		logger:       logger.Named("sound"),
	}
	go p.loop()
	return p
}

// Play queues the sound at path without waiting for it.
func (p *Player) Play(path string) {
	select {
	case p.soundsToPlay <- path:
	default:
		p.logger.Debugw("sound queue full, dropping", "sound", path)
	}
}

func (p *Player) Close() {
	close(p.soundsToPlay)
}

func (p *Player) loop() {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("speaker failed", "panic", r)
		}
		for s := range p.soundsToPlay {
			p.logger.Debugw("unable to play", "sound", s)
		}
	}()
	sampleRate := beep.SampleRate(44100)
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/5)); err != nil {
		p.logger.Warnw("failed to open speaker", "error", err)
		return
	}
	var ctrl *beep.Ctrl
	var s beep.StreamSeekCloser
	for soundToPlay := range p.soundsToPlay {
		if ctrl != nil {
			speaker.Lock()
			ctrl.Paused = true
			ctrl.Streamer = nil
			speaker.Unlock()
			ctrl = nil
		}
		if s != nil {
			s.Close()
			s = nil
		}

		var err error
		if s, err = Load(soundToPlay); err != nil {
			p.logger.Warnw("failed to load sound", "error", err)
			continue
		}
		ctrl = &beep.Ctrl{Streamer: s}
		speaker.Play(ctrl)
	}
}

// Load opens and decodes a WAV file.
func Load(path string) (beep.StreamSeekCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open sound")
	}
	s, _, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return s, nil
}
