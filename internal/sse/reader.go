// Package sse lee frames Server-Sent Events de un cuerpo HTTP en streaming.
package sse

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

const (
	readerInitialBuffer = 64 * 1024
	// MaxLineSize limita el tamaño de una línea individual del stream.
	MaxLineSize = 2 * 1024 * 1024
)

var ErrLineTooLong = errors.New("sse: line too long")

var dataPrefix = []byte("data:")

// Reader entrega el payload de cada línea "data:" completa. Las lecturas de
// red pueden partir o juntar registros; solo se procesan líneas terminadas en '\n'.
type Reader struct {
	r       *bufio.Reader
	maxLine int
	partial []byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:       bufio.NewReaderSize(r, readerInitialBuffer),
		maxLine: MaxLineSize,
	}
}

// Next devuelve el siguiente payload de datos. Devuelve io.EOF cuando el stream
// termina; un fragmento final sin '\n' se descarta.
func (r *Reader) Next() ([]byte, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		if payload, ok := dataPayload(line); ok && len(payload) > 0 {
			return payload, nil
		}
	}
}

func (r *Reader) readLine() ([]byte, error) {
	r.partial = r.partial[:0]
	for {
		chunk, err := r.r.ReadSlice('\n')
		if len(r.partial)+len(chunk) > r.maxLine {
			return nil, ErrLineTooLong
		}
		r.partial = append(r.partial, chunk...)
		switch {
		case err == nil:
			line := bytes.TrimSuffix(r.partial[:len(r.partial)-1], []byte("\r"))
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return nil, err
		}
	}
}

// Pending indica si quedó un fragmento sin terminar al cortarse el stream.
func (r *Reader) Pending() bool {
	return len(r.partial) > 0
}

func dataPayload(line []byte) ([]byte, bool) {
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	payload := line[len(dataPrefix):]
	if len(payload) > 0 && payload[0] == ' ' {
		payload = payload[1:]
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, true
}
