package proxy

import (
	"bytes"
	"io"
	"sync"
)

// teeBody passes a response body through to the client while keeping up to
// limit bytes for the hook. done runs once, at EOF, read error or Close.
type teeBody struct {
	rc        io.ReadCloser
	limit     int
	buf       bytes.Buffer
	truncated bool
	once      sync.Once
	done      func(body []byte, truncated bool)
}

func newTeeBody(rc io.ReadCloser, limit int, done func([]byte, bool)) *teeBody {
	return &teeBody{rc: rc, limit: limit, done: done}
}

func (t *teeBody) Read(p []byte) (int, error) {
	n, err := t.rc.Read(p)
	if n > 0 {
		t.keep(p[:n])
	}
	if err != nil {
		t.finish()
	}
	return n, err
}

func (t *teeBody) Close() error {
	err := t.rc.Close()
	t.finish()
	return err
}

func (t *teeBody) keep(p []byte) {
	if t.limit <= 0 {
		t.buf.Write(p)
		return
	}
	room := t.limit - t.buf.Len()
	if room <= 0 {
		t.truncated = true
		return
	}
	if len(p) > room {
		p = p[:room]
		t.truncated = true
	}
	t.buf.Write(p)
}

func (t *teeBody) finish() {
	t.once.Do(func() {
		t.done(t.buf.Bytes(), t.truncated)
	})
}
