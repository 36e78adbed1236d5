// Package models defines the core data structures for AutoSherpa.
//
// It holds the session, inventory, lead and reply types shared by the dialogue
// engine, the storage backends and the messaging channels.
package models

import (
	"errors"
	"time"
)

// MaxReplyOptions is the largest number of quick-reply options a reply may carry.
const MaxReplyOptions = 10

// ErrTooManyOptions is returned by Reply.Validate when the option list is too long.
var ErrTooManyOptions = errors.New("reply has more than 10 options")

// Attachment is sent before the reply text, e.g. a car photo.
type Attachment struct {
	Type    string `json:"type"`
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// AttachmentImage is the only attachment type the flows emit.
const AttachmentImage = "image"

// Reply is what the dialogue engine returns for one turn.
type Reply struct {
	Message  string       `json:"message"`
	Options  []string     `json:"options,omitempty"`
	Messages []Attachment `json:"messages,omitempty"`
}

// Validate checks the option bound.
func (r Reply) Validate() error {
	if len(r.Options) > MaxReplyOptions {
		return ErrTooManyOptions
	}
	return nil
}

// MessageKind classifies how an inbound message was entered.
type MessageKind string

const (
	MessageKindText        MessageKind = "text"
	MessageKindInteractive MessageKind = "interactive"
)

// InboundMessage is a message received from a user on any channel.
type InboundMessage struct {
	ID   string      `json:"id"`
	From string      `json:"from"`
	Body string      `json:"body"`
	Kind MessageKind `json:"kind"`
	Time int64       `json:"time"`
}

// MessageLog is one row of the per-turn audit log.
type MessageLog struct {
	PhoneNumber     string            `json:"phone_number"`
	MessageType     MessageKind       `json:"message_type"`
	MessageContent  string            `json:"message_content"`
	ResponseSent    bool              `json:"response_sent"`
	ResponseContent string            `json:"response_content,omitempty"`
	SessionID       string            `json:"session_id"`
	Intent          Intent            `json:"intent,omitempty"`
	Entities        map[string]string `json:"entities,omitempty"`
	Confidence      float64           `json:"confidence"`
	CreatedAt       time.Time         `json:"created_at"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse is the JSON envelope of every API endpoint.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
