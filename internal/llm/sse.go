package llm

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// readDeltas consumes `data: ` event lines until `data: [DONE]`. Lines that do
// not decode as JSON are skipped. EOF before the sentinel is ErrStreamTruncated.
func readDeltas(r io.Reader, onDelta func(string) error) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			done, handleErr := handleEventLine(strings.TrimRight(line, "\r\n"), onDelta)
			if handleErr != nil {
				return handleErr
			}
			if done {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrStreamTruncated
			}
			return err
		}
	}
}

func handleEventLine(line string, onDelta func(string) error) (bool, error) {
	if !strings.HasPrefix(line, "data:") {
		return false, nil
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "" {
		return false, nil
	}
	if data == "[DONE]" {
		return true, nil
	}
	var chunk streamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return false, nil
	}
	if chunk.Error != nil {
		return false, fmt.Errorf("upstream stream error: %s", chunk.Error.Message)
	}
	if len(chunk.Choices) == 0 {
		return false, nil
	}
	delta := chunk.Choices[0].Delta.Content
	if delta == "" || onDelta == nil {
		return false, nil
	}
	return false, onDelta(delta)
}
