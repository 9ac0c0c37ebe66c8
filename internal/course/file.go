package course

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileSource serves course content from a JSON file shaped like the
// course-content response. It backs offline sessions.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// FetchContent reads and decodes the file on every call. A courseID that does
// not match the file's course is an error; an empty courseID matches any.
func (f *FileSource) FetchContent(ctx context.Context, courseID, _ string) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read course file: %w", err)
	}
	var content Content
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("decode course file %s: %w", f.path, err)
	}
	if courseID != "" && content.Course.ID != courseID {
		return nil, fmt.Errorf("course file %s holds course %q, not %q", f.path, content.Course.ID, courseID)
	}
	return &content, nil
}
