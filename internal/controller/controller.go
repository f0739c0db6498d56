// Package controller orchestrates the submission flow: it validates
// input, drives the generate endpoint through the client wrapper, and
// writes results into the session store. It is single-threaded by
// design; callers drive it from one goroutine.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"vlshowcase/internal/client"
	"vlshowcase/internal/imageproc"
	"vlshowcase/internal/models"
	"vlshowcase/internal/session"
)

// State tracks where the current submission is in its lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateLoading    State = "loading"
	StateSuccess    State = "success"
	StateError      State = "error"
)

// MaxPromptLength is the submission limit in characters.
const MaxPromptLength = 4000

// transientPrefix marks image references that only exist for the
// lifetime of the originating view and cannot be rehydrated.
const transientPrefix = "blob:"

var (
	// ErrNoSelection is returned when a follow-up is submitted with no
	// exchange selected.
	ErrNoSelection = errors.New("no exchange selected")
	// ErrNothingToRetry is returned when Retry is called before any
	// submission.
	ErrNothingToRetry = errors.New("nothing to retry")
)

// ValidationError lists why a submission was rejected before any
// network call was made.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// ImageKind tags the composer's image field.
type ImageKind string

const (
	ImageFile ImageKind = "file"
	ImageURL  ImageKind = "url"
)

// ImageInput is the composer's image field. For file inputs, Data is a
// data URI and Preview may hold a transient display reference; Release
// frees whatever transient local resource backs the input.
type ImageInput struct {
	Kind    ImageKind
	Data    string
	Preview string
	Release func()

	released bool
}

// NewFileImage encodes local image bytes into a submittable input.
func NewFileImage(data []byte) (*ImageInput, error) {
	uri, err := imageproc.EncodeBytes(data)
	if err != nil {
		return nil, err
	}
	return &ImageInput{Kind: ImageFile, Data: uri}, nil
}

// NewURLImage wraps a remote image URL.
func NewURLImage(url string) *ImageInput {
	return &ImageInput{Kind: ImageURL, Data: url}
}

// release frees the backing resource exactly once.
func (i *ImageInput) release() {
	if i == nil || i.released {
		return
	}
	i.released = true
	if i.Release != nil {
		i.Release()
	}
}

// exchangeRef is the reference stored on the exchange for this input.
func (i *ImageInput) exchangeRef() string {
	if i == nil {
		return ""
	}
	if i.Kind == ImageURL {
		return i.Data
	}
	if i.Preview != "" {
		return i.Preview
	}
	return i.Data
}

func (i *ImageInput) attachment() *client.ImageAttachment {
	if i == nil {
		return nil
	}
	return &client.ImageAttachment{Type: string(i.Kind), Data: i.Data}
}

// Generator is the client-side API surface the controller drives.
type Generator interface {
	Generate(ctx context.Context, prompt string, image *client.ImageAttachment, history []models.ConversationTurn) (*client.Result, error)
}

// Controller is the top-level submission/follow-up/edit flow.
type Controller struct {
	api   Generator
	store *session.Store

	state          State
	prompt         string
	image          *ImageInput
	response       *client.Result
	errMsg         string
	validationMsgs []string
	lastPrompt     string
}

// New builds a controller over a store and an API wrapper.
func New(api Generator, store *session.Store) *Controller {
	return &Controller{api: api, store: store, state: StateIdle}
}

// State returns the current lifecycle state.
func (c *Controller) State() State { return c.state }

// Prompt returns the current composer text.
func (c *Controller) Prompt() string { return c.prompt }

// Image returns the current composer image input, or nil.
func (c *Controller) Image() *ImageInput { return c.image }

// Response returns the current live result, or nil.
func (c *Controller) Response() *client.Result { return c.response }

// ErrorMessage returns the displayed failure message, or "".
func (c *Controller) ErrorMessage() string { return c.errMsg }

// ValidationMessages lists why the last submission was rejected.
func (c *Controller) ValidationMessages() []string { return c.validationMsgs }

// Store exposes the underlying session store for display purposes.
func (c *Controller) Store() *session.Store { return c.store }

// SetPrompt updates the composer text. Typing a non-empty prompt while
// a historical exchange is selected returns focus to live composition.
func (c *Controller) SetPrompt(text string) {
	c.prompt = text
	if strings.TrimSpace(text) != "" && c.store.SelectedID() != "" {
		c.store.Select("")
	}
}

// SetImage replaces the composer image, releasing the replaced input's
// transient resource.
func (c *Controller) SetImage(input *ImageInput) {
	c.image.release()
	c.image = input
}

// Close releases any transient image resource still held.
func (c *Controller) Close() {
	c.image.release()
}

func (c *Controller) validate() []string {
	var msgs []string
	if strings.TrimSpace(c.prompt) == "" {
		msgs = append(msgs, "Please enter a text prompt")
	}
	if utf8.RuneCountInString(c.prompt) > MaxPromptLength {
		msgs = append(msgs, fmt.Sprintf("Prompt exceeds maximum length of %d characters", MaxPromptLength))
	}
	return msgs
}

// Submit sends the composed prompt (and image, if any) as a new
// exchange. Validation failures never reach the network.
func (c *Controller) Submit(ctx context.Context) error {
	c.state = StateValidating
	if msgs := c.validate(); len(msgs) > 0 {
		c.validationMsgs = msgs
		c.state = StateIdle
		return &ValidationError{Messages: msgs}
	}
	c.validationMsgs = nil
	c.lastPrompt = c.prompt
	c.state = StateLoading

	result, err := c.api.Generate(ctx, c.prompt, c.image.attachment(), nil)
	if err != nil {
		c.state = StateError
		c.errMsg = err.Error()
		c.response = nil
		return err
	}

	c.errMsg = ""
	c.response = result
	c.store.AddExchange(c.prompt, result.Content, c.image.exchangeRef())
	c.state = StateSuccess
	return nil
}

// SubmitFollowUp continues the selected exchange with another question,
// sending its accumulated history and no image. A failure leaves the
// previously displayed response untouched.
func (c *Controller) SubmitFollowUp(ctx context.Context, question string) error {
	id := c.store.SelectedID()
	if id == "" {
		return ErrNoSelection
	}
	question = strings.TrimSpace(question)
	if question == "" {
		msgs := []string{"Please enter a follow-up question"}
		c.validationMsgs = msgs
		return &ValidationError{Messages: msgs}
	}
	ex, err := c.store.Get(id)
	if err != nil {
		return err
	}
	c.validationMsgs = nil
	c.state = StateLoading

	result, err := c.api.Generate(ctx, question, nil, ex.ConversationHistory)
	if err != nil {
		c.state = StateError
		c.errMsg = err.Error()
		return err
	}
	if err := c.store.AddFollowUp(id, question, result.Content); err != nil {
		c.state = StateError
		c.errMsg = err.Error()
		return err
	}

	c.errMsg = ""
	c.response = result
	c.state = StateSuccess
	return nil
}

// Edit copies a past exchange's prompt back into the composer, clears
// the selection and any in-flight state, and pre-populates the image
// only when its stored reference is not a transient local one.
func (c *Controller) Edit(exchangeID string) error {
	ex, err := c.store.Get(exchangeID)
	if err != nil {
		return err
	}
	c.prompt = ex.Prompt
	c.store.Select("")
	c.response = nil
	c.errMsg = ""
	c.validationMsgs = nil
	c.state = StateIdle

	c.image.release()
	c.image = nil
	if ex.ImageURL != "" && !strings.HasPrefix(ex.ImageURL, transientPrefix) {
		c.image = NewURLImage(ex.ImageURL)
	}
	return nil
}

// Retry resubmits the last submitted prompt after a failure.
func (c *Controller) Retry(ctx context.Context) error {
	if c.lastPrompt == "" {
		return ErrNothingToRetry
	}
	c.prompt = c.lastPrompt
	return c.Submit(ctx)
}
