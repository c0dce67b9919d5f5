package models

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// SignalKind tags an asynchronous browser event
type SignalKind string

const (
	SignalDialog          SignalKind = "dialog"
	SignalDownload        SignalKind = "download"
	SignalNetworkResponse SignalKind = "network_response"
	SignalConsole         SignalKind = "console"
	SignalPageError       SignalKind = "page_error"
)

// IsValidSignalKind checks if kind is one of the known signal kinds
func IsValidSignalKind(kind SignalKind) bool {
	switch kind {
	case SignalDialog, SignalDownload, SignalNetworkResponse, SignalConsole, SignalPageError:
		return true
	default:
		return false
	}
}

// DialogPolicy decides how native dialogs are handled for a session
type DialogPolicy string

const (
	DialogAccept  DialogPolicy = "accept"
	DialogDismiss DialogPolicy = "dismiss"
)

// Signal is one normalized event appended to a session's signal log.
// Exactly one payload pointer is set, matching Kind.
type Signal struct {
	Seq       int64      `json:"seq"`
	Kind      SignalKind `json:"kind"`
	Timestamp time.Time  `json:"timestamp"`

	Dialog    *DialogPayload    `json:"dialog,omitempty"`
	Download  *DownloadPayload  `json:"download,omitempty"`
	Response  *ResponsePayload  `json:"response,omitempty"`
	Console   *ConsolePayload   `json:"console,omitempty"`
	PageError *PageErrorPayload `json:"page_error,omitempty"`
}

type DialogPayload struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Accepted bool   `json:"accepted"`
}

type DownloadPayload struct {
	GUID              string `json:"guid"`
	URL               string `json:"url"`
	SuggestedFilename string `json:"suggested_filename"`
}

type ResponsePayload struct {
	URL      string `json:"url"`
	Method   string `json:"method,omitempty"`
	Status   int    `json:"status"`
	MimeType string `json:"mime_type,omitempty"`
	Body     string `json:"body,omitempty"`
}

type ConsolePayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

type PageErrorPayload struct {
	Message string `json:"message"`
}

// Text returns the human-readable text of the signal (dialog message, console text, etc.)
func (s Signal) Text() string {
	switch {
	case s.Dialog != nil:
		return s.Dialog.Message
	case s.Download != nil:
		return s.Download.SuggestedFilename
	case s.Response != nil:
		return s.Response.Body
	case s.Console != nil:
		return s.Console.Text
	case s.PageError != nil:
		return s.PageError.Message
	}
	return ""
}

// SignalMatch is a declarative filter over signals, used by waits and assertions
type SignalMatch struct {
	Kind            SignalKind        `toml:"kind" yaml:"kind" json:"kind" validate:"required"`
	URLContains     string            `toml:"url_contains" yaml:"url_contains" json:"url_contains,omitempty"`
	Status          int               `toml:"status" yaml:"status" json:"status,omitempty"`
	Method          string            `toml:"method" yaml:"method" json:"method,omitempty"`
	MessageContains string            `toml:"message_contains" yaml:"message_contains" json:"message_contains,omitempty"`
	TextContains    string            `toml:"text_contains" yaml:"text_contains" json:"text_contains,omitempty"`
	FilenameSuffix  string            `toml:"filename_suffix" yaml:"filename_suffix" json:"filename_suffix,omitempty"`
	JSON            map[string]string `toml:"json" yaml:"json" json:"json,omitempty"`
}

// Matches reports whether sig satisfies every populated field of m
func (m SignalMatch) Matches(sig Signal) bool {
	if m.Kind != "" && sig.Kind != m.Kind {
		return false
	}

	switch sig.Kind {
	case SignalDialog:
		if sig.Dialog == nil {
			return false
		}
		if m.MessageContains != "" && !containsFold(sig.Dialog.Message, m.MessageContains) {
			return false
		}
	case SignalDownload:
		if sig.Download == nil {
			return false
		}
		if m.URLContains != "" && !strings.Contains(sig.Download.URL, m.URLContains) {
			return false
		}
		if m.FilenameSuffix != "" && !strings.HasSuffix(sig.Download.SuggestedFilename, m.FilenameSuffix) {
			return false
		}
	case SignalNetworkResponse:
		if sig.Response == nil {
			return false
		}
		if m.URLContains != "" && !strings.Contains(sig.Response.URL, m.URLContains) {
			return false
		}
		if m.Status != 0 && sig.Response.Status != m.Status {
			return false
		}
		if m.Method != "" && !strings.EqualFold(sig.Response.Method, m.Method) {
			return false
		}
		if len(m.JSON) > 0 {
			if !gjson.Valid(sig.Response.Body) {
				return false
			}
			for path, expected := range m.JSON {
				if gjson.Get(sig.Response.Body, path).String() != expected {
					return false
				}
			}
		}
	case SignalConsole, SignalPageError:
		// text_contains below
	}

	if m.TextContains != "" && !containsFold(sig.Text(), m.TextContains) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
