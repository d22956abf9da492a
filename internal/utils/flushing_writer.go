package utils

import (
	"io"
	"sync"
)

// FlushingWriter forwards writes to the wrapped writer and flushes it after
// every write so log entries land on disk as soon as they are emitted.
type FlushingWriter struct {
	writer io.Writer
	mutex  sync.Mutex
}

// NewFlushingWriter wraps the provided writer. Writers without a Flush method
// are passed through unchanged on each write, and an already wrapped writer is
// returned as is.
func NewFlushingWriter(writer io.Writer) io.Writer {
	if writer == nil {
		return nil
	}
	if _, alreadyWrapped := writer.(*FlushingWriter); alreadyWrapped {
		return writer
	}
	return &FlushingWriter{writer: writer}
}

// Write forwards the data to the wrapped writer and flushes it when the
// writer supports flushing. Concurrent writers are serialized.
func (flushingWriter *FlushingWriter) Write(data []byte) (int, error) {
	if flushingWriter == nil || flushingWriter.writer == nil {
		return 0, nil
	}

	flushingWriter.mutex.Lock()
	defer flushingWriter.mutex.Unlock()

	bytesWritten, writeError := flushingWriter.writer.Write(data)
	if writeError != nil {
		return bytesWritten, writeError
	}

	flushableWriter, implementsFlush := flushingWriter.writer.(interface{ Flush() error })
	if !implementsFlush {
		return bytesWritten, nil
	}
	if flushError := flushableWriter.Flush(); flushError != nil {
		return bytesWritten, flushError
	}

	return bytesWritten, nil
}
