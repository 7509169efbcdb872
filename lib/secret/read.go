// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ReadFromPath reads a secret from path, or the first line of stdin when
// path is "-". Surrounding whitespace is trimmed; an empty result is an
// error.
func ReadFromPath(path string) (*Buffer, error) {
	var data []byte

	if path == "-" {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("reading stdin: %w", err)
			}
			return nil, fmt.Errorf("stdin is empty")
		}
		data = scanner.Bytes()
	} else {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	return fromTrimmed(data)
}

// ReadFromTerminal writes prompt to output and reads one line from the
// terminal on fd with echo disabled.
func ReadFromTerminal(fd int, prompt string, output io.Writer) (*Buffer, error) {
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("no terminal available for interactive prompt")
	}

	fmt.Fprint(output, prompt)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(output)
	if err != nil {
		return nil, fmt.Errorf("reading from terminal: %w", err)
	}
	return fromTrimmed(data)
}

func fromTrimmed(data []byte) (*Buffer, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		Zero(data)
		return nil, fmt.Errorf("secret is empty")
	}

	buffer, err := NewFromBytes(trimmed)
	Zero(data)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}
