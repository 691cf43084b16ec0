package parser

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"nbcollab/internal/core/errors"

	"github.com/bytedance/sonic"
)

// NotebookIDKey is the metadata key under which instrumented notebooks carry
// their telemetry identifier.
const NotebookIDKey = "unianalytics_notebook_id"

type rawNotebook struct {
	NBFormat int            `json:"nbformat"`
	Metadata map[string]any `json:"metadata"`
	Cells    []rawCell      `json:"cells"`
}

type rawCell struct {
	CellType string `json:"cell_type"`
	ID       string `json:"id"`
	Source   any    `json:"source"`
}

// LoadNotebook reads an .ipynb file, or a .zip archive holding one.
func LoadNotebook(path string) (*Notebook, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return loadZippedNotebook(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read notebook"), errors.CtxPath, path)
	}
	return DecodeNotebook(filepath.Base(path), data)
}

func loadZippedNotebook(path string) (*Notebook, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "open notebook archive"), errors.CtxPath, path)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(f.Name), ".ipynb") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "open archived notebook")
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "read archived notebook")
		}
		return DecodeNotebook(filepath.Base(f.Name), data)
	}

	return nil, errors.AddContext(errors.New(errors.CodeNotFound, "archive contains no .ipynb file"), errors.CtxPath, path)
}

// DecodeNotebook parses nbformat v4 JSON. Sources may be a string or a list of
// line strings.
func DecodeNotebook(name string, data []byte) (*Notebook, error) {
	var raw rawNotebook
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "decode notebook"), errors.CtxPath, name)
	}
	if raw.NBFormat != 0 && raw.NBFormat < 4 {
		return nil, errors.AddContext(
			errors.New(errors.CodeNotSupported, fmt.Sprintf("nbformat %d is not supported", raw.NBFormat)),
			errors.CtxPath, name,
		)
	}

	nb := &Notebook{
		Name:  name,
		Cells: make([]Cell, 0, len(raw.Cells)),
	}
	if id, ok := raw.Metadata[NotebookIDKey].(string); ok {
		nb.ID = id
	}

	for i, rc := range raw.Cells {
		cell := Cell{
			Index:  i,
			Kind:   parseCellKind(rc.CellType),
			Source: joinSource(rc.Source),
		}
		if cell.Kind == CellCode {
			cell.ID = rc.ID
		}
		nb.Cells = append(nb.Cells, cell)
	}
	return nb, nil
}

func parseCellKind(value string) CellKind {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "code":
		return CellCode
	case "markdown":
		return CellMarkdown
	default:
		return CellRaw
	}
}

func joinSource(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []any:
		var b strings.Builder
		for _, line := range v {
			if s, ok := line.(string); ok {
				b.WriteString(s)
			}
		}
		return b.String()
	}
	return ""
}
