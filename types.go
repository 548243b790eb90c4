package reconciler

import (
	"github.com/jward/reconciler/internal/diag"
	"github.com/jward/reconciler/internal/text"
)

// Public type aliases for the internal text and diag types used in the
// Reconciler API. External consumers use these names; no conversion is needed.

type Region = text.Region
type Listener = text.Listener
type Event = text.Event
type Document = text.Document
type Diagnostic = diag.Diagnostic
type Severity = diag.Severity

// NewDocument returns an in-memory Buffer holding content.
func NewDocument(content string) *Document {
	return text.NewDocument(content)
}
