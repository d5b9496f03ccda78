package logsink

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gmcstatus/internal/config"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

const (
	defaultFlushEvery = 2 * time.Second
	// append blocks are capped at 4 MiB
	maxBatch      = 1 << 20
	appendTimeout = 10 * time.Second
)

type appender interface {
	Append(ctx context.Context, name string, data []byte) error
}

// Sink is an io.Writer that batches log lines and appends them to one blob
// per host per day. Lines are dropped rather than blocking the caller.
type Sink struct {
	appender   appender
	host       string
	now        func() time.Time
	flushEvery time.Duration

	mu     sync.RWMutex
	closed bool
	ch     chan []byte
	done   chan struct{}
}

func New(ctx context.Context, cfg config.LogSinkConfig) (*Sink, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("log sink needs account name, key and container")
	}
	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	if _, err := client.CreateContainer(ctx, cfg.Container, nil); err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil, fmt.Errorf("failed to ensure log container %s: %w", cfg.Container, err)
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "gmcstatus"
	}
	blobs := &blobAppender{container: client.ServiceClient().NewContainerClient(cfg.Container)}
	return newSink(blobs, host, defaultFlushEvery, time.Now), nil
}

func newSink(a appender, host string, flushEvery time.Duration, now func() time.Time) *Sink {
	s := &Sink{
		appender:   a,
		host:       host,
		now:        now,
		flushEvery: flushEvery,
		ch:         make(chan []byte, 1024),
		done:       make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Sink) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return len(p), nil
	}
	select {
	case s.ch <- append([]byte(nil), p...):
	default:
	}
	return len(p), nil
}

// Close flushes buffered lines and stops the sink.
func (s *Sink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
	<-s.done
	return nil
}

func (s *Sink) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()

	var buf []byte
	flush := func() {
		if len(buf) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		defer cancel()
		// slog would feed back into this sink
		if err := s.appender.Append(ctx, BlobName(s.now(), s.host), buf); err != nil {
			fmt.Fprintf(os.Stderr, "logsink: dropped %d bytes: %v\n", len(buf), err)
		}
		buf = buf[:0]
	}

	for {
		select {
		case line, ok := <-s.ch:
			if !ok {
				flush()
				return
			}
			buf = append(buf, line...)
			if len(buf) >= maxBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

type blobAppender struct {
	container *container.Client
	created   string
}

func (b *blobAppender) Append(ctx context.Context, name string, data []byte) error {
	ab := b.container.NewAppendBlobClient(name)
	if b.created != name {
		if _, err := ab.Create(ctx, nil); err != nil && !bloberror.HasCode(err, bloberror.BlobAlreadyExists) {
			return fmt.Errorf("create append blob %s: %w", name, err)
		}
		b.created = name
	}
	if _, err := ab.AppendBlock(ctx, streaming.NopCloser(bytes.NewReader(data)), nil); err != nil {
		return fmt.Errorf("append to %s: %w", name, err)
	}
	return nil
}
