package buffer

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/tokline/tokenizer"
	"github.com/fsnotify/fsnotify"
)

// MaxTokenizableBytes is the file-size threshold the demo CLI treats as
// "too large for tokenization" (§4.4's external isTooLarge predicate).
const MaxTokenizableBytes = 2 * 1024 * 1024

// FileBuffer is a concrete Buffer over a single file on disk, watched
// with fsnotify so external edits (from another editor, a build step, a
// git checkout) flush the engine the same way a buffer flush event does
// in §4.4. It is the Buffer the demo CLI (§10.4) drives.
//
// FileBuffer's own field access is synchronized (the fsnotify watcher
// delivers events on its own goroutine), but the engine itself is not
// safe for concurrent use (§5) — so every notification is handed to
// Dispatch rather than invoked inline, letting the caller marshal it onto
// whatever single logical thread drives the engine (the demo CLI sets
// Dispatch to the same tuihost.Host that schedules background slices).
type FileBuffer struct {
	mu sync.Mutex

	path       string
	lines      []string
	languageID string
	attached   bool
	tooLarge   bool
	tokens     map[int][]tokenizer.Token

	// Dispatch, if set, wraps every subscriber notification — e.g.
	// host.Host.ScheduleZeroDelay, so a watcher-goroutine-detected change
	// is applied on the engine's owning goroutine instead of concurrently
	// with it. If nil, notifications fire synchronously on the calling
	// goroutine (fine for the initial construction and for tests).
	Dispatch func(func())

	watcher *fsnotify.Watcher
	done    chan struct{}

	onContentChanged  []func(changes []Change, isFlush bool)
	onLanguageChanged []func(languageID string)
	onAttachedChanged []func(attached bool)
}

// OpenFile reads path, guesses nothing about languageID (callers resolve
// it via registry.GuessLanguageID), and starts watching the file for
// external changes.
func OpenFile(path, languageID string) (*FileBuffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	fb := &FileBuffer{
		path:       path,
		lines:      strings.Split(string(data), "\n"),
		languageID: languageID,
		attached:   true,
		tooLarge:   len(data) > MaxTokenizableBytes,
		tokens:     map[int][]tokenizer.Token{},
		watcher:    watcher,
		done:       make(chan struct{}),
	}
	go fb.watchLoop()
	return fb, nil
}

// Close stops the file watcher. The buffer remains readable afterward;
// it simply stops reacting to external changes.
func (fb *FileBuffer) Close() error {
	close(fb.done)
	return fb.watcher.Close()
}

func (fb *FileBuffer) watchLoop() {
	for {
		select {
		case <-fb.done:
			return
		case evt, ok := <-fb.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				fb.reload()
			}
			if evt.Op&fsnotify.Remove != 0 {
				fb.setAttached(false)
			}
		case _, ok := <-fb.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (fb *FileBuffer) reload() {
	data, err := os.ReadFile(fb.path)
	if err != nil {
		return
	}
	fb.mu.Lock()
	fb.lines = strings.Split(string(data), "\n")
	fb.tooLarge = len(data) > MaxTokenizableBytes
	fb.mu.Unlock()

	fb.notifyContentChanged(nil, true)
}

func (fb *FileBuffer) dispatch(fn func()) {
	if fb.Dispatch != nil {
		fb.Dispatch(fn)
		return
	}
	fn()
}

func (fb *FileBuffer) notifyContentChanged(changes []Change, isFlush bool) {
	fb.mu.Lock()
	subs := append([]func([]Change, bool){}, fb.onContentChanged...)
	fb.mu.Unlock()
	fb.dispatch(func() {
		for _, fn := range subs {
			if fn != nil {
				fn(changes, isFlush)
			}
		}
	})
}

func (fb *FileBuffer) setAttached(attached bool) {
	fb.mu.Lock()
	fb.attached = attached
	subs := append([]func(bool){}, fb.onAttachedChanged...)
	fb.mu.Unlock()
	fb.dispatch(func() {
		for _, fn := range subs {
			if fn != nil {
				fn(attached)
			}
		}
	})
}

func (fb *FileBuffer) LineCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.lines)
}

func (fb *FileBuffer) Line(lineNumber int) string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if lineNumber < 1 || lineNumber > len(fb.lines) {
		return ""
	}
	return fb.lines[lineNumber-1]
}

func (fb *FileBuffer) LeadingWhitespaceColumn(lineNumber int) int {
	return leadingWhitespaceColumn(fb.Line(lineNumber))
}

func (fb *FileBuffer) Attached() bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.attached
}

func (fb *FileBuffer) TooLarge() bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.tooLarge
}

func (fb *FileBuffer) LanguageID() string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.languageID
}

func (fb *FileBuffer) SetTokens(batch []LineTokens, completed bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, lt := range batch {
		fb.tokens[lt.Line] = lt.Tokens
	}
}

func (fb *FileBuffer) ClearTokens() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.tokens = map[int][]tokenizer.Token{}
}

// TokensFor returns the last published tokens for lineNumber, or nil.
func (fb *FileBuffer) TokensFor(lineNumber int) []tokenizer.Token {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.tokens[lineNumber]
}

// SetLanguageID overrides the language identifier (the demo CLI's
// --lang flag) and notifies subscribers, the same as an editor's
// "change syntax" command.
func (fb *FileBuffer) SetLanguageID(languageID string) {
	fb.mu.Lock()
	fb.languageID = languageID
	subs := append([]func(string){}, fb.onLanguageChanged...)
	fb.mu.Unlock()
	fb.dispatch(func() {
		for _, fn := range subs {
			if fn != nil {
				fn(languageID)
			}
		}
	})
}

func (fb *FileBuffer) OnContentChanged(fn func(changes []Change, isFlush bool)) func() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.onContentChanged = append(fb.onContentChanged, fn)
	idx := len(fb.onContentChanged) - 1
	return func() {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		fb.onContentChanged[idx] = nil
	}
}

func (fb *FileBuffer) OnLanguageChanged(fn func(languageID string)) func() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.onLanguageChanged = append(fb.onLanguageChanged, fn)
	idx := len(fb.onLanguageChanged) - 1
	return func() {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		fb.onLanguageChanged[idx] = nil
	}
}

func (fb *FileBuffer) OnAttachedChanged(fn func(attached bool)) func() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.onAttachedChanged = append(fb.onAttachedChanged, fn)
	idx := len(fb.onAttachedChanged) - 1
	return func() {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		fb.onAttachedChanged[idx] = nil
	}
}
