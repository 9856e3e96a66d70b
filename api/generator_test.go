package api

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type scriptedText struct {
	errs  []error
	text  string
	calls int
}

func (s *scriptedText) GenerateText(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return "", s.errs[s.calls-1]
	}
	return s.text, nil
}

type scriptedVision struct {
	description string
	urls        []string
}

func (s *scriptedVision) DescribeImages(ctx context.Context, urls []string, prompt string) (string, error) {
	s.urls = urls
	return s.description, nil
}

func testGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{MaxRetries: 2, InitialBackoff: time.Millisecond}
}

func TestGeneratorRetries(t *testing.T) {
	transient := NewTransientError(errors.New("503"))
	fatal := NewFatalError(errors.New("400"))

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{name: "success first try", wantCalls: 1},
		{name: "transient then success", errs: []error{transient}, wantCalls: 2},
		{name: "transient until retries run out", errs: []error{transient, transient, transient, transient}, wantCalls: 3, wantErr: true},
		{name: "fatal is not retried", errs: []error{fatal}, wantCalls: 1, wantErr: true},
		{name: "unclassified is not retried", errs: []error{errors.New("boom")}, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := &scriptedText{errs: tt.errs, text: "Reaction: Like\nComment: Nice work on the rollout."}
			gen := NewGeneratorWithClients(testGeneratorConfig(), text, nil, quietLogger())

			out, err := gen.Generate(context.Background(), "prompt")
			assert.Equal(t, tt.wantCalls, text.calls)
			if tt.wantErr {
				require.Error(t, err)
				assert.Empty(t, out)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, text.text, out)
		})
	}
}

func TestGeneratorFatalKeepsClassification(t *testing.T) {
	text := &scriptedText{errs: []error{NewFatalError(ErrSafetyBlocked)}}
	gen := NewGeneratorWithClients(testGeneratorConfig(), text, nil, quietLogger())

	_, err := gen.Generate(context.Background(), "prompt")
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrSafetyBlocked)
}

func TestGeneratorWithoutVision(t *testing.T) {
	gen := NewGeneratorWithClients(testGeneratorConfig(), &scriptedText{}, nil, quietLogger())

	_, err := gen.DescribeImages(context.Background(), []string{"https://media/1.jpg"}, "describe")
	assert.ErrorIs(t, err, ErrVisionUnavailable)
}

func TestGeneratorDescribeImages(t *testing.T) {
	vision := &scriptedVision{description: "Two people shaking hands on stage"}
	gen := NewGeneratorWithClients(testGeneratorConfig(), &scriptedText{}, vision, quietLogger())

	out, err := gen.DescribeImages(context.Background(), []string{"a", "b"}, "describe")
	require.NoError(t, err)
	assert.Equal(t, vision.description, out)
	assert.Equal(t, []string{"a", "b"}, vision.urls)
}

func TestGeneratorHonorsCancellation(t *testing.T) {
	cfg := testGeneratorConfig()
	cfg.RequestsPerMinute = 1
	text := &scriptedText{text: "ok"}
	gen := NewGeneratorWithClients(cfg, text, nil, quietLogger())

	// the first call takes the only token
	_, err := gen.Generate(context.Background(), "prompt")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = gen.Generate(ctx, "prompt")
	require.Error(t, err)
	assert.Equal(t, 1, text.calls)
}

func TestNewGeneratorRequiresGeminiKey(t *testing.T) {
	_, err := NewGenerator(context.Background(), GeneratorConfig{TextModel: "gemini-2.0-flash"}, "", "", quietLogger())
	assert.Error(t, err)
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{401, false},
		{404, false},
	}

	for _, tt := range tests {
		err := classifyStatus("gemini", tt.status, "message")
		assert.Equal(t, tt.transient, IsTransient(err), "status %d", tt.status)
		assert.Equal(t, !tt.transient, IsFatal(err), "status %d", tt.status)
	}

	assert.True(t, IsFatal(classifyTransport("gemini", context.Canceled)))
	assert.True(t, IsTransient(classifyTransport("gemini", errors.New("connection reset"))))
}
