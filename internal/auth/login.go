package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Login runs the installed-app flow: it prints the consent URL to out, reads
// the authorization code with readCode and stores the resulting token.
func Login(ctx context.Context, p *Provider, out io.Writer, readCode func() (string, error)) error {
	url := p.AuthCodeURL(uuid.NewString())
	fmt.Fprintf(out, "Open the following link in your browser and authorize drivesync:\n\n  %s\n\n", url)
	fmt.Fprint(out, "Authorization code: ")

	code, err := readCode()
	if err != nil {
		return fmt.Errorf("reading authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("empty authorization code")
	}

	return p.Exchange(ctx, code)
}

// LineReader returns a readCode function that reads one line from r.
func LineReader(r io.Reader) func() (string, error) {
	br := bufio.NewReader(r)
	return func() (string, error) {
		line, err := br.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		return line, nil
	}
}
