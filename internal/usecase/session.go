package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/trustlens/internal/imageprocessor"
	"github.com/example/trustlens/internal/inference"
	"github.com/example/trustlens/internal/logging"
)

// State is the single displayed state of a session.
type State string

const (
	StateEmpty          State = "empty"
	StateImageSelected  State = "image_selected"
	StateAnalyzing      State = "analyzing"
	StateResultReady    State = "result_ready"
	StateAnalysisFailed State = "analysis_failed"
)

// ErrorKindValidation marks failures caught locally, before anything goes over the wire.
const ErrorKindValidation = "validation"

const (
	msgNoImage          = "No image file provided."
	msgUnsupportedType  = "Unsupported file type. Please upload a JPEG, PNG, WebP, GIF, or BMP image."
	msgBlankCredential  = "Please enter your Gemini API key first."
	msgAnalysisFallback = "Analysis failed. Please check your API key and try again."
)

var (
	// ErrBlankCredential is wrapped by the ValidationError returned when no credential is set.
	ErrBlankCredential = errors.New("credential is blank")
	// ErrAnalysisSuperseded is returned when a newer selection, reset or trigger
	// replaced the request while it was in flight. Its outcome was dropped.
	ErrAnalysisSuperseded = errors.New("analysis superseded")
	// ErrNoImageSelected is returned by AwaitPreview when the session holds no image.
	ErrNoImageSelected = errors.New("no image selected")
)

// ValidationError is a locally detected input problem. Message is user facing.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Err }

type sessionError struct {
	kind    string
	message string
}

// SessionController owns the state of one upload/analyze session and enforces
// its transitions. All methods are safe for concurrent use; the inference call
// runs without holding the lock.
type SessionController struct {
	id          string
	owner       string
	analyzer    inference.Analyzer
	credentials CredentialSource
	metrics     *Metrics
	logger      *zap.Logger

	mu sync.Mutex
	// generation changes whenever the selected image changes or is cleared.
	generation uint64
	// analysisToken identifies the latest trigger within a generation.
	analysisToken uint64
	image         *imageprocessor.Image
	preview       string
	previewDone   chan struct{}
	analyzing     bool
	result        *inference.AnalysisResult
	err           *sessionError
	promptVisible bool
}

// NewSessionController builds an empty session. The credential prompt starts
// visible only when no credential is available.
func NewSessionController(id, owner string, analyzer inference.Analyzer, credentials CredentialSource, metrics *Metrics, logger *zap.Logger) *SessionController {
	return &SessionController{
		id:            id,
		owner:         owner,
		analyzer:      analyzer,
		credentials:   credentials,
		metrics:       metrics,
		logger:        logger.Named("session"),
		promptVisible: strings.TrimSpace(credentials.Current()) == "",
	}
}

// ID returns the session identifier.
func (c *SessionController) ID() string { return c.id }

// Owner returns the subject the session belongs to.
func (c *SessionController) Owner() string { return c.owner }

// Select replaces the current image. A missing or unsupported file only sets the
// error field and leaves everything else as it was.
func (c *SessionController) Select(img *imageprocessor.Image) (Snapshot, error) {
	if err := imageprocessor.Validate(img); err != nil {
		verr := &ValidationError{Message: msgUnsupportedType, Err: err}
		if errors.Is(err, imageprocessor.ErrNoImage) {
			verr.Message = msgNoImage
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.analyzing {
			c.err = &sessionError{kind: ErrorKindValidation, message: verr.Message}
		}
		logging.WithOperation(c.logger, "session.select", c.id).Info("image rejected", zap.Error(err))
		return c.snapshotLocked(), verr
	}

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.image = img
	c.preview = ""
	c.result = nil
	c.err = nil
	c.analyzing = false
	done := make(chan struct{})
	c.previewDone = done
	snap := c.snapshotLocked()
	c.mu.Unlock()

	go c.decodePreview(gen, img, done)

	logging.WithOperation(c.logger, "session.select", c.id).Info("image selected",
		zap.String("name", img.Name),
		zap.String("mime_type", img.MIMEType),
		zap.Int64("size", img.Size()),
	)
	return snap, nil
}

func (c *SessionController) decodePreview(gen uint64, img *imageprocessor.Image, done chan struct{}) {
	defer close(done)
	preview := img.DataURL()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.preview = preview
	}
}

// AwaitPreview blocks until the preview of the current image is decoded and
// returns it as a data URL.
func (c *SessionController) AwaitPreview(ctx context.Context) (string, error) {
	for {
		c.mu.Lock()
		if c.image == nil {
			c.mu.Unlock()
			return "", ErrNoImageSelected
		}
		gen := c.generation
		done := c.previewDone
		c.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return "", ctx.Err()
		}

		c.mu.Lock()
		if c.generation == gen {
			preview := c.preview
			c.mu.Unlock()
			return preview, nil
		}
		c.mu.Unlock()
	}
}

// Analyze sends the selected image for inference. It is a no-op without an
// image and fails fast, revealing the credential prompt, when the credential is
// blank. Otherwise exactly one inference call is made.
func (c *SessionController) Analyze(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if c.image == nil {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, nil
	}

	credential := strings.TrimSpace(c.credentials.Current())
	if credential == "" {
		c.err = &sessionError{kind: ErrorKindValidation, message: msgBlankCredential}
		c.promptVisible = true
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, &ValidationError{Message: msgBlankCredential, Err: ErrBlankCredential}
	}

	c.analyzing = true
	c.result = nil
	c.err = nil
	c.analysisToken++
	gen, token, img := c.generation, c.analysisToken, c.image
	c.mu.Unlock()

	opLogger := logging.WithOperation(c.logger, "session.analyze", c.id)
	opLogger.Info("analysis started", zap.String("name", img.Name))

	started := time.Now()
	result, err := c.analyzer.Analyze(ctx, img, credential)
	latency := time.Since(started)
	if err == nil && result == nil {
		err = errors.New(msgAnalysisFallback)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen || c.analysisToken != token {
		c.metrics.recordSuperseded()
		opLogger.Info("discarding superseded analysis outcome", zap.Bool("failed", err != nil))
		return c.snapshotLocked(), ErrAnalysisSuperseded
	}

	c.analyzing = false
	if err != nil {
		c.err = failureFromError(err)
		c.metrics.recordFailure(c.err.kind, latency)
		opLogger.Warn("analysis failed", zap.Error(err), zap.String("kind", c.err.kind), zap.Duration("latency", latency))
		return c.snapshotLocked(), err
	}

	c.result = result
	category := ClassifyVerdict(result.Verdict)
	c.metrics.recordSuccess(category, latency)
	opLogger.Info("analysis completed",
		zap.String("verdict", result.Verdict),
		zap.String("category", string(category)),
		zap.Duration("latency", latency),
	)
	return c.snapshotLocked(), nil
}

func failureFromError(err error) *sessionError {
	var infErr *inference.Error
	if errors.As(err, &infErr) {
		message := infErr.Message
		if message == "" {
			message = msgAnalysisFallback
		}
		return &sessionError{kind: string(infErr.Kind), message: message}
	}
	message := err.Error()
	if message == "" {
		message = msgAnalysisFallback
	}
	return &sessionError{kind: string(inference.KindRemote), message: message}
}

// SaveCredential persists a non-blank credential, hides the prompt and clears
// any error. Blank input changes nothing.
func (c *SessionController) SaveCredential(ctx context.Context, value string) (Snapshot, error) {
	saved, err := c.credentials.Save(ctx, value)
	if err != nil {
		logging.WithOperation(c.logger, "session.save_credential", c.id).Error("failed to save credential", zap.Error(err))
		return c.Snapshot(), logging.NewOperationError("session.save_credential", c.id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if saved {
		c.promptVisible = false
		c.err = nil
	}
	return c.snapshotLocked(), nil
}

// ToggleCredentialPrompt shows or hides the credential prompt.
func (c *SessionController) ToggleCredentialPrompt() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.promptVisible = !c.promptVisible
	return c.snapshotLocked()
}

// Reset returns the session to empty from any state. An in-flight analysis is
// left running but its outcome will be dropped.
func (c *SessionController) Reset() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.image = nil
	c.preview = ""
	c.previewDone = nil
	c.result = nil
	c.err = nil
	c.analyzing = false
	return c.snapshotLocked()
}

// Snapshot returns the current read model.
func (c *SessionController) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *SessionController) stateLocked() State {
	switch {
	case c.analyzing:
		return StateAnalyzing
	case c.err != nil:
		return StateAnalysisFailed
	case c.result != nil:
		return StateResultReady
	case c.image != nil:
		return StateImageSelected
	default:
		return StateEmpty
	}
}
