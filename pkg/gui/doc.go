// Package gui is the client SDK for the Greentic GUI backend.
//
// An SDK instance binds backend-described workers to regions of a parsed
// HTML document and exchanges JSON messages with the backend's config,
// worker-message, events, and session endpoints. Each instance carries its
// own configuration and cookie jar, so multiple tenants can coexist in one
// process without shared mutable state.
//
// Typical use:
//
//	sdk, err := gui.New(gui.SDKOptions{})
//	if err != nil { ... }
//	defer sdk.Close()
//
//	sdk.Init(ctx, gui.Options{Origin: "https://gui.example.com"})
//	el, err := sdk.AttachWorker(doc, binding.Attachment{
//		WorkerID: "worker.chat",
//		Selector: "#chat-slot",
//		Routes:   []string{"/"},
//	})
//
// Init never fails: the implied configuration bootstrap is best-effort and
// its errors are absorbed so that initialization cannot take down a host
// application.
package gui
