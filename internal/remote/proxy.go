package remote

import (
	"sync"

	"github.com/GriffinCanCode/shellhost/internal/shared/id"
)

// Proxy mirrors one controller-side shell.
type Proxy struct {
	ref id.Ref

	mu         sync.RWMutex
	buffer     *Buffer
	chunks     [][]byte
	keepChunks bool
	confirmed  bool
	exited     bool
	exitCode   int
	detached   bool
}

func newProxy(ref id.Ref, bufferBytes int, keepChunks bool) *Proxy {
	return &Proxy{
		ref:        ref,
		buffer:     NewBuffer(bufferBytes),
		keepChunks: keepChunks,
	}
}

// Ref returns the proxy's reference; the controller knows it as a remote ref.
func (p *Proxy) Ref() id.Ref { return p.ref }

// Buffer returns the accumulated output as text.
func (p *Proxy) Buffer() string { return p.buffer.String() }

// Bytes returns the accumulated output.
func (p *Proxy) Bytes() []byte { return p.buffer.Bytes() }

// Dropped returns how many output bytes the buffer bound discarded.
func (p *Proxy) Dropped() int64 { return p.buffer.Dropped() }

// Chunks returns every output chunk in arrival order. Empty unless chunk
// retention was enabled.
func (p *Proxy) Chunks() [][]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([][]byte, len(p.chunks))
	copy(out, p.chunks)
	return out
}

// ChunkCount returns the number of retained chunks.
func (p *Proxy) ChunkCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.chunks)
}

// Confirmed reports whether the controller has announced the shell alive.
func (p *Proxy) Confirmed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.confirmed
}

// Exited reports whether the shell process exited and with which code.
func (p *Proxy) Exited() (bool, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exited, p.exitCode
}

// Detached reports whether the proxy was removed from its router.
func (p *Proxy) Detached() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.detached
}

func (p *Proxy) add(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detached {
		return false
	}
	_, _ = p.buffer.Write(data)
	if p.keepChunks {
		chunk := make([]byte, len(data))
		copy(chunk, data)
		p.chunks = append(p.chunks, chunk)
	}
	return true
}

func (p *Proxy) confirm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = true
}

func (p *Proxy) markExited(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exited = true
	p.exitCode = code
}

func (p *Proxy) detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detached = true
}
