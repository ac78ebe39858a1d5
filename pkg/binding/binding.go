// Package binding associates backend workers with regions of an HTML
// document. The document itself is the system of record: a binding is two
// data attributes written onto the matched element, and it lives exactly
// as long as the element does. There is no separate registry to clean up.
package binding

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	apperrors "github.com/greentic-ai-org/greentic-gui/pkg/errors"
)

const (
	// WorkerAttr carries the bound worker identity.
	WorkerAttr = "data-greentic-worker"
	// RoutesAttr carries the bound route list, comma-joined.
	RoutesAttr = "data-greentic-routes"
)

// Attachment describes a worker binding request.
type Attachment struct {
	WorkerID string
	Selector string
	Routes   []string
}

// AttachWorker resolves the selector against the document and writes the
// worker identity and route list onto the first matched element. A selector
// that matches nothing is a synchronous error; the document is left
// untouched. Re-attaching to the same element overwrites the prior binding.
func AttachWorker(doc *goquery.Document, att Attachment) (*goquery.Selection, error) {
	if strings.TrimSpace(att.WorkerID) == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "worker id must not be empty")
	}
	if strings.TrimSpace(att.Selector) == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "selector must not be empty")
	}

	sel := doc.Find(att.Selector).First()
	if sel.Length() == 0 {
		return nil, apperrors.New(apperrors.ErrCodeBindingResolution, "worker target not found").
			WithContext("selector", att.Selector).
			WithContext("worker_id", att.WorkerID)
	}

	sel.SetAttr(WorkerAttr, att.WorkerID)
	sel.SetAttr(RoutesAttr, strings.Join(att.Routes, ","))
	return sel, nil
}

// BoundWorker reads the binding attributes from an element. ok is false
// when the element carries no binding.
func BoundWorker(sel *goquery.Selection) (workerID string, routes []string, ok bool) {
	workerID, ok = sel.Attr(WorkerAttr)
	if !ok {
		return "", nil, false
	}
	raw, _ := sel.Attr(RoutesAttr)
	if raw == "" {
		return workerID, nil, true
	}
	return workerID, strings.Split(raw, ","), true
}
