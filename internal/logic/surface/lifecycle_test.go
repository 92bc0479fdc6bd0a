package surface

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/SnapGo/internal/domain"
)

type recordingBinder struct {
	opened   []*Surface
	releases int
}

func (b *recordingBinder) Open(s *Surface) { b.opened = append(b.opened, s) }
func (b *recordingBinder) Release()        { b.releases++ }

func TestLifecycle_CreateChangeDestroy(t *testing.T) {
	b := &recordingBinder{}
	l := NewLifecycle(b)
	s := New(nil, 640, 480)

	l.OnCreated(s)
	require.Len(t, b.opened, 1)
	assert.Same(t, s, b.opened[0])
	assert.True(t, l.Valid())

	l.OnChanged(FormatJPEG, 800, 600)
	_, w, h := s.Format()
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)

	l.OnDestroyed()
	assert.Equal(t, 1, b.releases)
	assert.False(t, s.Valid())
	assert.Nil(t, l.Current())
}

func TestLifecycle_ChangedWhileInvalidIgnored(t *testing.T) {
	b := &recordingBinder{}
	l := NewLifecycle(b)
	l.OnChanged(FormatJPEG, 10, 10)
	assert.Empty(t, b.opened)
	assert.Zero(t, b.releases)
}

func TestLifecycle_DestroyWhenInvalidStillReleases(t *testing.T) {
	b := &recordingBinder{}
	l := NewLifecycle(b)
	l.OnDestroyed()
	l.OnDestroyed()
	assert.Equal(t, 2, b.releases)
}

func TestLifecycle_DoubleCreateIsImplicitDestroy(t *testing.T) {
	b := &recordingBinder{}
	l := NewLifecycle(b)
	first := New(nil, 1, 1)
	second := New(nil, 1, 1)

	l.OnCreated(first)
	l.OnCreated(second)

	assert.Len(t, b.opened, 2)
	assert.Equal(t, 1, b.releases)
	assert.False(t, first.Valid())
	assert.True(t, second.Valid())
	assert.Same(t, second, l.Current())
}

func TestLifecycle_RandomSequences(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for run := 0; run < 200; run++ {
		b := &recordingBinder{}
		l := NewLifecycle(b)
		created, destroyed := 0, 0
		for i := 0; i < 50; i++ {
			switch r.IntN(3) {
			case 0:
				created++
				l.OnCreated(New(nil, 1, 1))
			case 1:
				l.OnChanged(FormatJPEG, r.IntN(100), r.IntN(100))
			case 2:
				destroyed++
				l.OnDestroyed()
			}
		}
		assert.LessOrEqual(t, len(b.opened), created)
		assert.GreaterOrEqual(t, b.releases, destroyed)
	}
}

func TestSurface_RenderRefusedWhenInvalid(t *testing.T) {
	var frames [][]byte
	s := New(func(f []byte) error {
		frames = append(frames, f)
		return nil
	}, 2, 2)

	require.NoError(t, s.Render([]byte{1}))
	s.Invalidate()
	err := s.Render([]byte{2})
	assert.True(t, errors.Is(err, domain.ErrSurfaceInvalid))
	assert.Len(t, frames, 1)
}

func TestSurface_UniqueIDs(t *testing.T) {
	a, b := New(nil, 1, 1), New(nil, 1, 1)
	assert.NotEqual(t, a.ID, b.ID)
	var nilSurface *Surface
	assert.False(t, nilSurface.Valid())
}
