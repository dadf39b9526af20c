package clip

import (
	"image"

	"github.com/ivlev/kenburns/internal/config"
	"github.com/ivlev/kenburns/internal/errs"
)

// Sequence plays clips back to back. All parts share one frame size and fps.
type Sequence struct {
	id     string
	clips  []Clip
	starts []int
	total  int
	size   config.FrameSize
	fps    int
}

func NewSequence(id string, clips []Clip) (*Sequence, error) {
	if len(clips) == 0 {
		return nil, errs.InvalidArgument("sequence", "%s has no clips", id)
	}
	s := &Sequence{
		id:     id,
		clips:  clips,
		starts: make([]int, len(clips)),
		size:   clips[0].Size(),
		fps:    clips[0].FPS(),
	}
	for i, c := range clips {
		if c.Size() != s.size || c.FPS() != s.fps {
			return nil, errs.InvalidArgument("sequence", "%s: clip %s is %v@%d, want %v@%d",
				id, c.ID(), c.Size(), c.FPS(), s.size, s.fps)
		}
		s.starts[i] = s.total
		s.total += c.FrameCount()
	}
	return s, nil
}

func (s *Sequence) ID() string             { return s.id }
func (s *Sequence) FrameCount() int        { return s.total }
func (s *Sequence) FPS() int               { return s.fps }
func (s *Sequence) Size() config.FrameSize { return s.size }

func (s *Sequence) Duration() float64 {
	return float64(s.total) / float64(s.fps)
}

// Clips returns the parts in play order.
func (s *Sequence) Clips() []Clip { return s.clips }

// Start returns the first frame index of part k.
func (s *Sequence) Start(k int) int { return s.starts[k] }

// Locate finds the part that owns frame i and the frame's index inside it. Sequences
// are short, a linear scan is enough.
func (s *Sequence) Locate(i int) (Clip, int, error) {
	if err := checkIndex(s.id, i, s.total); err != nil {
		return nil, 0, err
	}
	for k, c := range s.clips {
		if i < s.starts[k]+c.FrameCount() {
			return c, i - s.starts[k], nil
		}
	}
	return nil, 0, errs.InvalidArgument("locate", "%s: frame %d not found", s.id, i)
}

func (s *Sequence) Frame(i int) (*image.RGBA, error) {
	c, local, err := s.Locate(i)
	if err != nil {
		return nil, err
	}
	return c.Frame(local)
}

func (s *Sequence) FrameAt(t float64) (*image.RGBA, error) {
	i, err := IndexAt(t, s.total, s.fps)
	if err != nil {
		return nil, err
	}
	return s.Frame(i)
}

func (s *Sequence) Release() {
	for _, c := range s.clips {
		c.Release()
	}
}
