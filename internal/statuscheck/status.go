package statuscheck

import (
	"context"
	"errors"
	"time"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// BucketHeader is satisfied by the S3 storage backend.
type BucketHeader interface {
	HeadBucket(ctx context.Context) error
}

// WritableDir is satisfied by the local storage backend.
type WritableDir interface {
	Writable() error
}

// Checker aggregates health checks for the services the viewer depends on.
type Checker struct {
	redis  RedisPinger
	s3     BucketHeader
	upload WritableDir
}

// Options configures the Checker. Nil fields are reported as not configured.
type Options struct {
	Redis  RedisPinger
	S3     BucketHeader
	Upload WritableDir
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis     Status `json:"redis"`
	S3        Status `json:"s3"`
	UploadDir Status `json:"upload_dir"`
	MuPDF     Status `json:"mupdf"`
}

// Healthy reports whether every configured subsystem is up.
func (s Summary) Healthy() bool {
	for _, st := range []Status{s.Redis, s.S3, s.UploadDir, s.MuPDF} {
		if !st.OK && st.Message != msgNotConfigured {
			return false
		}
	}
	return true
}

const msgNotConfigured = "Not configured"

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{redis: opts.Redis, s3: opts.S3, upload: opts.Upload}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:     c.checkRedis(ctx),
		S3:        c.checkS3(ctx),
		UploadDir: c.checkUpload(),
		MuPDF:     c.checkMuPDF(),
	}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: false, Message: msgNotConfigured}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3 == nil {
		return Status{OK: false, Message: msgNotConfigured}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.s3.HeadBucket(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkUpload() Status {
	if c.upload == nil {
		return Status{OK: false, Message: msgNotConfigured}
	}
	if err := c.upload.Writable(); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Writable"}
}

// MuPDF is linked into the binary, so there is nothing to look up.
func (c *Checker) checkMuPDF() Status {
	return Status{OK: true, Message: "Embedded"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
