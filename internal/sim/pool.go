package sim

import (
	"sync"

	"github.com/san-kum/becsim/internal/bec"
)

// BufferPool recycles state buffers keyed by layout.
type BufferPool struct {
	mu    sync.Mutex
	pools map[string]*sync.Pool
}

func NewBufferPool() *BufferPool {
	return &BufferPool{pools: make(map[string]*sync.Pool)}
}

func (p *BufferPool) pool(l bec.Layout) *sync.Pool {
	key := l.String()

	p.mu.Lock()
	defer p.mu.Unlock()

	sp, ok := p.pools[key]
	if !ok {
		layout := bec.Layout{Components: l.Components, Trajectories: l.Trajectories, Shape: append([]int(nil), l.Shape...)}
		sp = &sync.Pool{
			New: func() any {
				return bec.NewState(layout)
			},
		}
		p.pools[key] = sp
	}
	return sp
}

// Get returns a zeroed buffer of layout l.
func (p *BufferPool) Get(l bec.Layout) *bec.State {
	return p.pool(l).Get().(*bec.State)
}

func (p *BufferPool) Put(s *bec.State) {
	if s == nil {
		return
	}
	s.Zero()
	p.pool(s.Layout).Put(s)
}

func (p *BufferPool) GetAndCopy(src *bec.State) *bec.State {
	dst := p.Get(src.Layout)
	copy(dst.Data, src.Data)
	return dst
}
