package module

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360/swaybar/errors"
	"github.com/c360/swaybar/protocol"
)

// Static shows fixed text, the output of a shell command, or the contents
// of a file. Clicks run per-button commands and then refresh.
type Static struct {
	base
	opts    StaticOptions
	pattern *regexp.Regexp
	tmpl    *template.Template
	onClick map[int]string
	refresh chan struct{}
}

// staticView is what a static module's format template sees
type staticView struct {
	Name    string
	Value   string
	Matches []string
}

func newStatic(spec Spec, deps Deps) (*Static, error) {
	opts := *spec.Static
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultCommandTimeout
	}

	b, err := newBase(spec, deps)
	if err != nil {
		return nil, err
	}

	s := &Static{
		base:    b,
		opts:    opts,
		onClick: make(map[int]string, len(opts.OnClick)),
		refresh: make(chan struct{}, 1),
	}

	tmpl, err := parseFormat(spec.Name, opts.Format)
	if err != nil {
		return nil, err
	}
	s.tmpl = tmpl

	if opts.Pattern != "" {
		re, err := regexp.Compile(opts.Pattern)
		if err != nil {
			return nil, invalid("static %q: pattern: %v", spec.Name, err)
		}
		s.pattern = re
	}

	for key, cmd := range opts.OnClick {
		button, err := strconv.Atoi(key)
		if err != nil || button < 1 {
			return nil, invalid("static %q: on_click key %q is not a button number", spec.Name, key)
		}
		s.onClick[button] = cmd
	}

	return s, nil
}

// Run emits according to the configured source
func (s *Static) Run(ctx context.Context, sink Sink) error {
	switch {
	case s.opts.Command != "":
		return s.runCommand(ctx, sink)
	case s.opts.File != "":
		return s.runFile(ctx, sink)
	default:
		return s.runText(ctx, sink)
	}
}

func (s *Static) runText(ctx context.Context, sink Sink) error {
	for {
		if err := s.show(ctx, sink, s.opts.Text); err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.refresh:
		}
	}
}

// runCommand runs the command once, then on every interval tick (if an
// interval is set) and after every click.
func (s *Static) runCommand(ctx context.Context, sink Sink) error {
	p := s.newPolicy()

	for {
		out, err := s.exec(ctx, s.opts.Command)
		if err != nil {
			if err := p.failed(ctx, sink, err); err != nil {
				return stopErr(ctx, err)
			}
			continue
		}
		p.succeeded()
		if err := s.show(ctx, sink, firstLine(out)); err != nil {
			return nil
		}

		if !s.wait(ctx) {
			return nil
		}
	}
}

func (s *Static) wait(ctx context.Context) bool {
	var tick <-chan time.Time
	if s.opts.Interval > 0 {
		timer := time.NewTimer(s.opts.Interval)
		defer timer.Stop()
		tick = timer.C
	}

	select {
	case <-ctx.Done():
		return false
	case <-tick:
		return true
	case <-s.refresh:
		return true
	}
}

// runFile shows the file's first line and re-reads it whenever it changes.
// The parent directory is watched so editors that replace the file by
// rename are followed.
func (s *Static) runFile(ctx context.Context, sink Sink) error {
	p := s.newPolicy()
	path := filepath.Clean(s.opts.File)

	for {
		err := s.watchFile(ctx, sink, path, p)
		if ctx.Err() != nil {
			return nil
		}
		if err := p.failed(ctx, sink, err); err != nil {
			return stopErr(ctx, err)
		}
	}
}

func (s *Static) watchFile(ctx context.Context, sink Sink, path string, p *policy) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapTransient(err, "Static", "watchFile", "watcher setup")
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.WrapTransient(err, "Static", "watchFile", "watch "+filepath.Dir(path))
	}

	if err := s.showFile(ctx, sink, path); err != nil {
		return err
	}
	p.succeeded()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.refresh:
			if err := s.showFile(ctx, sink, path); err != nil {
				return err
			}
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.WrapTransient(errors.ErrConnectionLost, "Static", "watchFile", "watch events")
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if err := s.showFile(ctx, sink, path); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.WrapTransient(errors.ErrConnectionLost, "Static", "watchFile", "watch errors")
			}
			return errors.WrapTransient(err, "Static", "watchFile", "watch")
		}
	}
}

// showFile renders the file's first line; a missing file renders empty
func (s *Static) showFile(ctx context.Context, sink Sink, path string) error {
	data, err := os.ReadFile(path)
	switch {
	case stderrors.Is(err, os.ErrNotExist):
		data = nil
	case err != nil:
		return errors.WrapTransient(err, "Static", "showFile", "read "+path)
	}
	if err := s.show(ctx, sink, firstLine(data)); err != nil {
		return ctx.Err()
	}
	return nil
}

func (s *Static) show(ctx context.Context, sink Sink, value string) error {
	view := staticView{Name: s.name, Value: value}
	if s.pattern != nil {
		view.Matches = s.pattern.FindStringSubmatch(value)
		switch len(view.Matches) {
		case 0:
			view.Value = ""
		case 1:
			view.Value = view.Matches[0]
		default:
			view.Value = view.Matches[1]
		}
	}

	text, err := render(s.tmpl, view)
	if err != nil {
		s.logger.Warn("Format failed", "error", err)
		return s.emitError(ctx, sink, "format", err)
	}
	return s.emitText(ctx, sink, text, view, view.Value)
}

// exec runs command through sh -c and returns its stdout
func (s *Static) exec(ctx context.Context, command string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return nil, errors.WrapTransient(err, "Static", "exec", "command")
	}
	return stdout.Bytes(), nil
}

func firstLine(data []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}

// Click runs the command bound to the button, then refreshes the block
func (s *Static) Click(ctx context.Context, ev protocol.ClickEvent) error {
	command, ok := s.onClick[ev.Button]
	if !ok {
		return nil
	}
	if _, err := s.exec(ctx, command); err != nil {
		return err
	}
	poke(s.refresh)
	return nil
}
