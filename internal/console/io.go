package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Router is the console's notion of "current page". The request pipeline and
// the session manager use it as their navigator.
type Router struct {
	mu   sync.Mutex
	path string
	out  io.Writer
}

func NewRouter(out io.Writer) *Router {
	return &Router{path: "/", out: out}
}

func (r *Router) CurrentPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// Navigate is a redirect the user should notice.
func (r *Router) Navigate(path string) {
	r.mu.Lock()
	r.path = path
	r.mu.Unlock()
	fmt.Fprintf(r.out, "-> %s\n", path)
}

// Enter moves to path silently, as when the user opens a page themselves.
func (r *Router) Enter(path string) {
	r.mu.Lock()
	r.path = path
	r.mu.Unlock()
}

// Prompter reads answers from the same input the command loop reads.
type Prompter struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// ReadLine returns the next input line without its newline. io.EOF is
// returned only when nothing was read.
func (p *Prompter) ReadLine() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *Prompter) Ask(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.ReadLine()
	return strings.TrimSpace(line), err
}

// Confirm asks a y/N question. Anything but yes, including EOF or a canceled
// context, is a no.
func (p *Prompter) Confirm(ctx context.Context, prompt string) bool {
	if ctx.Err() != nil {
		return false
	}
	fmt.Fprintf(p.out, "%s [y/N]: ", prompt)
	line, err := p.ReadLine()
	if err != nil {
		fmt.Fprintln(p.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
