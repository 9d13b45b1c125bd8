package chat

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"
)

// RecorderState is the audio capture lifecycle.
type RecorderState string

const (
	RecIdle       RecorderState = "idle"
	RecRequesting RecorderState = "requesting"
	RecRecording  RecorderState = "recording"
	RecStopped    RecorderState = "stopped"
	RecUploading  RecorderState = "uploading"
	RecSent       RecorderState = "sent"
	RecFailed     RecorderState = "failed"
	RecCancelled  RecorderState = "cancelled"
)

// Recorder drives microphone capture for voice messages:
// idle → requesting → recording → stopped → uploading → sent | failed,
// with cancelled reachable from requesting, recording and stopped.
// Invariant: on every exit path the media tracks are released.
type Recorder struct {
	mic Microphone

	mu      sync.Mutex
	state   RecorderState
	stream  MediaStream
	chunks  [][]byte
	elapsed int

	stopTick chan struct{}
	drain    sync.WaitGroup
}

func NewRecorder(mic Microphone) *Recorder {
	return &Recorder{mic: mic, state: RecIdle}
}

func (r *Recorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// ElapsedSeconds is the running capture duration shown by the UI,
// incremented at one-second resolution.
func (r *Recorder) ElapsedSeconds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// Start acquires the microphone and begins capturing. On permission denial
// the recorder transitions to failed and no media handle is retained.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case RecIdle, RecSent, RecFailed, RecCancelled:
	default:
		r.mu.Unlock()
		return fmt.Errorf("chat: recording already in progress (state %s)", r.state)
	}
	r.state = RecRequesting
	r.mu.Unlock()

	stream, err := r.mic.Request(ctx)
	if err != nil {
		r.mu.Lock()
		r.state = RecFailed
		r.stream = nil
		r.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrMicPermission, err)
	}

	r.mu.Lock()
	if r.state != RecRequesting {
		// Cancelled while the permission prompt was open.
		r.mu.Unlock()
		stream.ReleaseTracks()
		return ErrNotRecording
	}
	r.state = RecRecording
	r.stream = stream
	r.chunks = nil
	r.elapsed = 0
	r.stopTick = make(chan struct{})
	r.mu.Unlock()

	go r.tick(r.stopTick)

	r.drain.Add(1)
	go func() {
		defer r.drain.Done()
		for chunk := range stream.Chunks() {
			r.mu.Lock()
			r.chunks = append(r.chunks, chunk)
			r.mu.Unlock()
		}
	}()

	return nil
}

func (r *Recorder) tick(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.state == RecRecording {
				r.elapsed++
			}
			r.mu.Unlock()
		}
	}
}

// Stop ends the capture and assembles the accumulated chunks into a single
// blob. The microphone tracks are released before Stop returns.
func (r *Recorder) Stop() ([]byte, error) {
	r.mu.Lock()
	if r.state != RecRecording {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	stream := r.stream
	close(r.stopTick)
	r.stopTick = nil
	r.mu.Unlock()

	err := stream.Stop()
	r.drain.Wait()
	stream.ReleaseTracks()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stream = nil
	if err != nil {
		r.state = RecFailed
		return nil, fmt.Errorf("chat: stopping capture: %w", err)
	}
	r.state = RecStopped

	var buf bytes.Buffer
	for _, chunk := range r.chunks {
		buf.Write(chunk)
	}
	r.chunks = nil
	return buf.Bytes(), nil
}

// Cancel aborts from requesting, recording or stopped. Always releases the
// media tracks; safe to call on a recorder that never started.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	stream := r.stream
	r.stream = nil
	if r.stopTick != nil {
		close(r.stopTick)
		r.stopTick = nil
	}
	wasRecording := r.state == RecRecording
	r.state = RecCancelled
	r.elapsed = 0
	r.chunks = nil
	r.mu.Unlock()

	if stream != nil {
		if wasRecording {
			_ = stream.Stop()
			r.drain.Wait()
		}
		stream.ReleaseTracks()
	}
}

// markUploading / markSent / markFailed are driven by the session while the
// blob moves through the send pipeline.
func (r *Recorder) markUploading() {
	r.mu.Lock()
	r.state = RecUploading
	r.mu.Unlock()
}

func (r *Recorder) markSent() {
	r.mu.Lock()
	r.state = RecSent
	r.elapsed = 0
	r.mu.Unlock()
}

func (r *Recorder) markFailed() {
	r.mu.Lock()
	r.state = RecFailed
	r.mu.Unlock()
}
