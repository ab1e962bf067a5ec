package orchestrator

import (
	"bufio"
	"io"
	"strings"
)

// StopOnInput returns a channel closed when the operator enters "q" (or
// "quit"). End of input does not close it, so a detached stdin never stops a
// run.
func StopOnInput(r io.Reader) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			switch strings.ToLower(strings.TrimSpace(sc.Text())) {
			case "q", "quit":
				close(ch)
				return
			}
		}
	}()
	return ch
}

// WaitForEnter blocks until a line is read from r. It reports false on end of
// input.
func WaitForEnter(r io.Reader) bool {
	_, err := bufio.NewReader(r).ReadString('\n')
	return err == nil
}
