// Package cli provides the interactive Quill command-line client.
//
// It wires configuration, local storage, the API client, and an
// interactive REPL that supports online/offline operation. Typical flow:
// prompt for credentials, start a background connectivity watcher and
// the periodic sync loop, and execute user commands.
//
// Key features:
//   - Register / Login / Logout (online with offline fallback)
//   - Add, edit, list, show, and delete notes
//   - Tag notes
//   - Sync with the server (manual and periodic)
//   - Export and import encrypted backups
//
// The REPL is started via App.Run(ctx), which blocks until the user
// exits. See App, StartOnlineStatusWatcher, and runREPL for details.
package cli
